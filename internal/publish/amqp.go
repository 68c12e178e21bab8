package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ContentType is the AMQP content type of published records.
const ContentType = "application/cbor"

// DefaultPublishTimeout bounds one AMQP publish.
const DefaultPublishTimeout = 5 * time.Second

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes records as persistent messages to a durable
// queue on the default exchange.
type AMQPPublisher struct {
	conn    io.Closer
	channel amqpChannel
	queue   string
	timeout time.Duration
	log     *slog.Logger
}

// Compile-time interface satisfaction check.
var _ Publisher = (*AMQPPublisher)(nil)

// DialAMQP connects to the broker at url and declares queue.
func DialAMQP(url, queue string, timeout time.Duration, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("publish: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("publish: open amqp channel: %w", err)
	}
	p, err := newAMQPPublisher(ch, conn, queue, timeout, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, conn io.Closer, queue string, timeout time.Duration, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("publish: declare queue %q: %w", queue, err)
	}
	logger.Info("[PUBLISH] amqp queue ready", "queue", queue)
	return &AMQPPublisher{
		conn:    conn,
		channel: ch,
		queue:   queue,
		timeout: timeout,
		log:     logger,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, rec Record) error {
	body, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("publish: encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  ContentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    rec.ID.String(),
			Timestamp:    rec.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: amqp publish to %q: %w", p.queue, err)
	}
	p.log.Debug("[PUBLISH] sent to amqp", "queue", p.queue, "id", rec.ID.String(), "bytes", len(body))
	return nil
}

// Close closes the channel and then the connection.
func (p *AMQPPublisher) Close() error {
	var errs []error
	if err := p.channel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publish: close amqp channel: %w", err))
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publish: close amqp connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

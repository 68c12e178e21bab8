package publish

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/renpho-ble/internal/bodycomp"
	"github.com/chaz8081/renpho-ble/internal/scale"
)

var errBroker = errors.New("broker unavailable")

func sampleRecord(kg float64) Record {
	c := bodycomp.Estimate(kg, 180)
	return NewRecord("AA:BB:CC:DD:EE:FF", scale.Kilograms, scale.Result{
		Measurement: scale.Measurement{
			WeightKg:    kg,
			Resistance1: 1000,
			Resistance2: 900,
			Impedance:   180,
			Timestamp:   time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC),
		},
		Composition: &c,
	})
}

func TestNewRecord(t *testing.T) {
	a := sampleRecord(72.4)
	b := sampleRecord(72.4)

	assert.NotEqual(t, a.ID, b.ID, "each record gets its own ID")
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", a.Device)
	assert.Equal(t, scale.Kilograms, a.Unit)
	assert.Equal(t, 72.4, a.WeightKg)
	assert.Equal(t, uint16(1000), a.Resistance1)
	require.NotNil(t, a.Composition)
}

func TestEncodeRecordDeterministic(t *testing.T) {
	rec := sampleRecord(80)
	first, err := EncodeRecord(rec)
	require.NoError(t, err)
	second, err := EncodeRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := DecodeRecord(first)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, rec.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, rec.WeightKg, got.WeightKg)
	require.NotNil(t, got.Composition)
	assert.Equal(t, rec.Composition.BodyFatPct, got.Composition.BodyFatPct)
}

func TestDecodeRecordGarbage(t *testing.T) {
	_, err := DecodeRecord([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, p.Publish(context.Background(), sampleRecord(64.2)))
	require.NoError(t, p.Close())

	out := buf.String()
	assert.Contains(t, out, "[PUBLISH] measurement")
	assert.Contains(t, out, "kg=64.2")
	assert.Contains(t, out, "fat_pct=")
}

func TestJournalAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "measurements.cbor")

	j, err := NewJournalPublisher(path)
	require.NoError(t, err)
	assert.Equal(t, path, j.Path())
	require.NoError(t, j.Publish(context.Background(), sampleRecord(70)))
	require.NoError(t, j.Close())

	// reopening appends rather than truncating
	j, err = NewJournalPublisher(path)
	require.NoError(t, err)
	require.NoError(t, j.Publish(context.Background(), sampleRecord(71)))
	require.NoError(t, j.Close())

	records, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 70.0, records[0].WeightKg)
	assert.Equal(t, 71.0, records[1].WeightKg)
}

func TestJournalClosed(t *testing.T) {
	j, err := NewJournalPublisher(filepath.Join(t.TempDir(), "j.cbor"))
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "close is idempotent")

	err = j.Publish(context.Background(), sampleRecord(70))
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestJournalConcurrentPublish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.cbor")
	j, err := NewJournalPublisher(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.Publish(context.Background(), sampleRecord(60+float64(i))))
		}()
	}
	wg.Wait()
	require.NoError(t, j.Close())

	records, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestReadJournalMissing(t *testing.T) {
	_, err := ReadJournal(filepath.Join(t.TempDir(), "nope.cbor"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadJournalTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.cbor")
	good, err := EncodeRecord(sampleRecord(70))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(good, good[:5]...), 0644))

	records, err := ReadJournal(path)
	assert.Error(t, err)
	assert.Len(t, records, 1, "records before the damage are returned")
}

// fakeChannel records AMQP calls.
type fakeChannel struct {
	declared   []string
	durable    bool
	declareErr error
	publishErr error
	published  []amqp.Publishing
	keys       []string
	deadline   bool
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	f.declared = append(f.declared, name)
	f.durable = durable
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	_, f.deadline = ctx.Deadline()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeCloser struct{ closed bool }

func (f *fakeCloser) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	conn := &fakeCloser{}
	p, err := newAMQPPublisher(ch, conn, "renpho.measurements", time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"renpho.measurements"}, ch.declared)
	assert.True(t, ch.durable)

	rec := sampleRecord(82.1)
	require.NoError(t, p.Publish(context.Background(), rec))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "renpho.measurements", ch.keys[0])
	assert.Equal(t, ContentType, msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, rec.ID.String(), msg.MessageId)
	assert.True(t, ch.deadline, "publish is bounded by a timeout")

	got, err := DecodeRecord(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
	assert.True(t, conn.closed)
}

func TestAMQPPublisherDeclareFailure(t *testing.T) {
	_, err := newAMQPPublisher(&fakeChannel{declareErr: errBroker}, nil, "q", 0, nil)
	assert.ErrorIs(t, err, errBroker)
}

func TestAMQPPublisherPublishFailure(t *testing.T) {
	p, err := newAMQPPublisher(&fakeChannel{publishErr: errBroker}, nil, "q", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPublishTimeout, p.timeout)
	assert.ErrorIs(t, p.Publish(context.Background(), sampleRecord(70)), errBroker)
}

type stubPublisher struct {
	got      []Record
	err      error
	closeErr error
}

func (s *stubPublisher) Publish(_ context.Context, rec Record) error {
	s.got = append(s.got, rec)
	return s.err
}

func (s *stubPublisher) Close() error { return s.closeErr }

func TestMultiPublishesToAll(t *testing.T) {
	a := &stubPublisher{err: errBroker}
	b := &stubPublisher{}
	m := NewMulti(a, b)

	err := m.Publish(context.Background(), sampleRecord(70))
	assert.ErrorIs(t, err, errBroker)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1, "a failing sink does not block the next one")
}

func TestMultiClose(t *testing.T) {
	closeErr := errors.New("close failed")
	m := NewMulti(&stubPublisher{closeErr: closeErr}, &stubPublisher{})
	assert.ErrorIs(t, m.Close(), closeErr)
	assert.NoError(t, NewMulti().Close())
}

package scale

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/renpho-ble/internal/ble/protocol"
)

// DefaultTimeout bounds one measurement request.
const DefaultTimeout = 30 * time.Second

const replyQueueSize = 16

// Link is the subset of the connection manager a Session writes through.
type Link interface {
	Write(serviceUUID, charUUID string, data []byte) error
	Subscribe(serviceUUID, charUUID string, fn func(data []byte)) error
}

// Options configures a Session.
type Options struct {
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// OnUnsolicited receives final readings that arrive with no request in
	// flight, e.g. when someone steps on the scale between requests.
	OnUnsolicited func(Measurement)
	Logger        *slog.Logger
	// Now stamps measurements. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns Options with the production timeout.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Now: time.Now}
}

// request is one in-flight measurement.
type request struct {
	opts    MeasureOptions
	results chan Result
	done    chan struct{}
}

type outbound struct {
	to   endpoint
	data []byte
}

// Session runs measurement requests over one connection. The detected
// variant and the notification subscriptions live as long as the Session,
// so a reconnect needs a new one.
type Session struct {
	link Link
	opts Options
	log  *slog.Logger

	notifyMu sync.Mutex // serializes notification handling

	mu            sync.Mutex
	state         State
	variant       Variant
	detected      bool
	armed         bool
	protocolType  byte
	weightScale   float64
	finalReceived bool
	pending       *request
	deferred      []func()
	closed        bool

	replies chan outbound
	quit    chan struct{}
}

// NewSession creates a Session and starts its reply worker. Call Close when
// the connection goes away.
func NewSession(link Link, opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		link:        link,
		opts:        opts,
		log:         logger,
		weightScale: 100,
		replies:     make(chan outbound, replyQueueSize),
		quit:        make(chan struct{}),
	}
	go s.replyLoop()
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Variant returns the detected variant. ok is false before the first Start.
func (s *Session) Variant() (v Variant, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant, s.detected
}

// Start begins a measurement request and returns a channel that receives
// exactly one Result and is then closed. It fails with ErrBusy while a
// request is in flight and with ErrStartFailed when the scale could not be
// armed or the request could not be written.
func (s *Session) Start(ctx context.Context, opts MeasureOptions) (<-chan Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, ErrDisconnected)
	}
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	req := &request{
		opts:    opts,
		results: make(chan Result, 1),
		done:    make(chan struct{}),
	}
	s.pending = req
	s.state = DetectingProtocol
	detected, armed := s.detected, s.armed
	s.mu.Unlock()

	if !detected {
		s.detect()
	}
	if !armed {
		if err := s.arm(); err != nil {
			return nil, s.abortStart(req, fmt.Errorf("subscribe: %w", err))
		}
	}
	s.setState(req, NotificationsArmed)

	s.mu.Lock()
	v := s.variant
	l := v.layout()
	msg := protocol.Build(protocol.CmdMeasureRequest, s.protocolType, opts.Unit.wireByte(), 0x10, 0x00, 0x00, 0x00)
	s.mu.Unlock()

	s.log.Debug("[SCALE] requesting measurement", "unit", opts.Unit, "frame", fmt.Sprintf("% x", msg))
	if err := s.link.Write(l.write.service, l.write.char, msg); err != nil {
		return nil, s.abortStart(req, fmt.Errorf("write request: %w", err))
	}
	s.setState(req, RequestSent)

	if err := s.link.Write(l.timeSync.service, l.timeSync.char, protocol.BuildTimeSync(s.opts.Now())); err != nil {
		return nil, s.abortStart(req, fmt.Errorf("write time sync: %w", err))
	}

	s.mu.Lock()
	if s.pending == req {
		s.state = AwaitingFinal
		go s.await(ctx, req)
	}
	s.mu.Unlock()

	s.log.Info("[SCALE] measurement started", "variant", v.String())
	return req.results, nil
}

// Measure starts a request and waits for its result.
func (s *Session) Measure(ctx context.Context, opts MeasureOptions) (Result, error) {
	results, err := s.Start(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	res := <-results
	return res, res.Err
}

// Close aborts any pending request with ErrDisconnected and stops the reply
// worker. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.pending != nil {
		s.finishLocked(s.pending, Result{Err: ErrDisconnected})
	}
	close(s.quit)
}

// detect probes the Primary config characteristic with a time sync. Any
// write failure selects the Alternative layout.
func (s *Session) detect() {
	v := Primary
	err := s.link.Write(PrimaryService, PrimaryConfig, protocol.BuildTimeSync(s.opts.Now()))
	if err != nil {
		v = Alternative
		s.log.Debug("[SCALE] primary probe failed, using alternative layout", "error", err)
	}

	s.mu.Lock()
	s.variant = v
	s.detected = true
	s.mu.Unlock()
	s.log.Info("[SCALE] protocol detected", "variant", v.String())
}

func (s *Session) arm() error {
	s.mu.Lock()
	l := s.variant.layout()
	s.mu.Unlock()

	if err := s.link.Subscribe(l.notify.service, l.notify.char, s.handleNotification); err != nil {
		return err
	}
	if l.indicate.char != "" {
		err := s.link.Subscribe(l.indicate.service, l.indicate.char, func(data []byte) {
			s.log.Debug("[SCALE] indication", "frame", fmt.Sprintf("% x", data))
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
	return nil
}

// abortStart fails req and returns the error Start reports.
func (s *Session) abortStart(req *request, err error) error {
	err = fmt.Errorf("%w: %w", ErrStartFailed, err)
	s.log.Error("[SCALE] could not start measurement", "error", err)
	s.mu.Lock()
	if s.pending == req {
		s.finishLocked(req, Result{Err: err})
	}
	s.mu.Unlock()
	return err
}

// setState advances the state while req is still the live request.
func (s *Session) setState(req *request, st State) {
	s.mu.Lock()
	if s.pending == req {
		s.state = st
	}
	s.mu.Unlock()
}

func (s *Session) await(ctx context.Context, req *request) {
	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	var err error
	select {
	case <-req.done:
		return
	case <-timer.C:
		err = ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == req {
		s.log.Warn("[SCALE] measurement failed", "error", err)
		s.finishLocked(req, Result{Err: err})
	}
}

// finishLocked resolves req. The caller holds s.mu.
func (s *Session) finishLocked(req *request, res Result) {
	if s.pending != req {
		return
	}
	s.pending = nil
	if res.Err != nil {
		s.state = Failed
	} else {
		s.state = Completed
	}
	req.results <- res
	close(req.results)
	close(req.done)
}

// handleNotification is the notify-characteristic callback.
func (s *Session) handleNotification(data []byte) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.log.Debug("[SCALE] notification", "frame", fmt.Sprintf("% x", data))
	s.dispatch(data)
	after := s.deferred
	s.deferred = nil
	s.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

// reply queues a canned frame for the reply worker. The caller holds s.mu.
func (s *Session) reply(data []byte) {
	out := outbound{to: s.variant.layout().write, data: data}
	select {
	case s.replies <- out:
	default:
		s.log.Warn("[SCALE] reply queue full, dropping reply", "frame", fmt.Sprintf("% x", data))
	}
}

func (s *Session) replyLoop() {
	for {
		select {
		case <-s.quit:
			return
		case out := <-s.replies:
			if err := s.link.Write(out.to.service, out.to.char, out.data); err != nil {
				s.log.Warn("[SCALE] reply failed", "frame", fmt.Sprintf("% x", out.data), "error", err)
			}
		}
	}
}

package scale

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Conn is a connection manager that can carry a Session. *ble.Client
// implements it.
type Conn interface {
	Link
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	OnConnectionLost(fn func())
}

// Scale pairs a connection with the Session for its current lifetime. Each
// new connection gets a fresh Session, so protocol detection runs once per
// connection.
type Scale struct {
	conn Conn
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	session *Session
}

// New wraps conn. The Scale watches conn for lost connections and aborts
// any pending request when that happens.
func New(conn Conn, opts Options) *Scale {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scale{conn: conn, opts: opts, log: logger}
	conn.OnConnectionLost(s.dropSession)
	return s
}

// Connect connects to the scale if needed and prepares a Session.
func (s *Scale) Connect(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		s.session = NewSession(s.conn, s.opts)
	}
	return nil
}

// Disconnect aborts any pending request and closes the connection. It is
// safe to call when already disconnected.
func (s *Scale) Disconnect() error {
	s.dropSession()
	return s.conn.Disconnect()
}

// IsConnected reports the connection status.
func (s *Scale) IsConnected() bool {
	return s.conn.IsConnected()
}

// Session returns the Session of the current connection, or nil.
func (s *Scale) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// StartMeasurement starts a request on the current connection.
func (s *Scale) StartMeasurement(ctx context.Context, opts MeasureOptions) (<-chan Result, error) {
	sess := s.Session()
	if sess == nil || !s.conn.IsConnected() {
		s.log.Error("[SCALE] not connected to scale")
		return nil, fmt.Errorf("%w: not connected", ErrStartFailed)
	}
	return sess.Start(ctx, opts)
}

// Measure starts a request and waits for its result.
func (s *Scale) Measure(ctx context.Context, opts MeasureOptions) (Result, error) {
	results, err := s.StartMeasurement(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	res := <-results
	return res, res.Err
}

func (s *Scale) dropSession() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()
	if sess != nil {
		s.log.Debug("[SCALE] connection lost, closing session")
		sess.Close()
	}
}

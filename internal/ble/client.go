package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ClientOptions configures the BLE client behavior.
type ClientOptions struct {
	ConnectTimeout time.Duration // bound on a single connect attempt (default 10s)
	Logger         *slog.Logger
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ConnectTimeout: 10 * time.Second,
	}
}

// Client owns the single BLE connection to one scale. Connect and
// Disconnect are serialized so concurrent callers cannot race a connect
// against a disconnect. Client does not reconnect on its own.
type Client struct {
	adapter Adapter
	address string
	opts    ClientOptions
	log     *slog.Logger

	mu        sync.Mutex
	conn      Connection
	chars     map[string]Characteristic
	connected bool
	lost      []func()
}

// NewClient creates a client for the device at address.
func NewClient(adapter Adapter, address string, opts ClientOptions) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		adapter: adapter,
		address: address,
		opts:    opts,
		log:     logger,
	}
}

// Address returns the peer address this client connects to.
func (c *Client) Address() string {
	return c.address
}

// Connect establishes the BLE connection. It returns nil immediately when
// already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.adapter.Connect(ctx, c.address)
	if err != nil {
		return fmt.Errorf("ble: connect to %s: %w", c.address, err)
	}

	c.conn = conn
	c.chars = make(map[string]Characteristic)
	c.connected = true

	conn.OnDisconnect(func() {
		c.log.Warn("[BLE] peer disconnected", "address", c.address)
		c.dropConnection(conn)
	})

	c.log.Info("[BLE] connected", "address", c.address)
	return nil
}

// Disconnect tears down the connection. It is safe to call when already
// disconnected and always leaves the client marked disconnected; a teardown
// error from the radio is logged and returned for information only.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.chars = nil
	c.connected = false
	listeners := append([]func(){}, c.lost...)
	c.mu.Unlock()

	var err error
	if conn != nil {
		if err = conn.Disconnect(); err != nil {
			c.log.Error("[BLE] error disconnecting", "address", c.address, "error", err)
			err = fmt.Errorf("ble: disconnect %s: %w", c.address, err)
		} else {
			c.log.Info("[BLE] disconnected", "address", c.address)
		}
	}

	for _, fn := range listeners {
		fn()
	}
	return err
}

// dropConnection marks the client disconnected after the peer went away.
// It ignores stale callbacks from an earlier connection.
func (c *Client) dropConnection(conn Connection) {
	c.mu.Lock()
	if !c.connected || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.chars = nil
	c.connected = false
	listeners := append([]func(){}, c.lost...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// IsConnected reports whether the link is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnConnectionLost registers fn to run whenever the connection goes away,
// whether by Disconnect or by the peer.
func (c *Client) OnConnectionLost(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lost = append(c.lost, fn)
}

// characteristic returns the cached characteristic, discovering it on first
// use within the current connection.
func (c *Client) characteristic(serviceUUID, charUUID string) (Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	key := serviceUUID + "/" + charUUID
	if ch, ok := c.chars[key]; ok {
		return ch, nil
	}
	ch, err := c.conn.DiscoverCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: discover %s: %w", charUUID, err)
	}
	c.chars[key] = ch
	return ch, nil
}

// Write sends data to a characteristic. A characteristic that cannot be
// discovered counts as a failed write.
func (c *Client) Write(serviceUUID, charUUID string, data []byte) error {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	c.log.Debug("[BLE] write", "char", charUUID, "data", fmt.Sprintf("% x", data))
	if err := ch.Write(data); err != nil {
		return fmt.Errorf("ble: write %s: %w", charUUID, err)
	}
	return nil
}

// Subscribe enables notifications on a characteristic.
func (c *Client) Subscribe(serviceUUID, charUUID string, fn func(data []byte)) error {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if err := ch.Subscribe(fn); err != nil {
		return fmt.Errorf("ble: subscribe %s: %w", charUUID, err)
	}
	return nil
}

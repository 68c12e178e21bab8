package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinygoAdapter wraps tinygo-org/bluetooth. Addresses are the string form
// of bluetooth.Address: a MAC on BlueZ and WinRT, a CoreBluetooth UUID on
// macOS. Connect only works for addresses seen by a scan, since that is the
// one portable way to obtain a bluetooth.Address.
type TinygoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects seen and connections.
	mu          sync.Mutex
	seen        map[string]bluetooth.Address
	connections map[string]*tinygoConnection
}

// NewTinygoAdapter creates an adapter backed by the default system radio.
func NewTinygoAdapter() *TinygoAdapter {
	return &TinygoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		seen:        make(map[string]bluetooth.Address),
		connections: make(map[string]*tinygoConnection),
	}
}

// Compile-time check that TinygoAdapter implements Adapter.
var _ Adapter = (*TinygoAdapter)(nil)

func (a *TinygoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// tinygo fires the adapter-level handler with connected=false when a
	// peripheral drops. Route it to the matching connection.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		delete(a.connections, id)
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})

	return nil
}

func (a *TinygoAdapter) Scan(ctx context.Context, match func(Device) bool) ([]Device, error) {
	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		dev := Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		}
		for _, md := range result.ManufacturerData() {
			if dev.ManufacturerData == nil {
				dev.ManufacturerData = make(map[uint16][]byte)
			}
			dev.ManufacturerData[md.CompanyID] = append([]byte(nil), md.Data...)
		}

		if match == nil && dev.Name == "" {
			return
		}
		if match != nil && !match(dev) {
			return
		}

		a.mu.Lock()
		a.seen[dev.Address] = result.Address
		a.mu.Unlock()

		mu.Lock()
		defer mu.Unlock()
		if seen[dev.Address] {
			return
		}
		seen[dev.Address] = true
		devices = append(devices, dev)
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

// resolve returns the bluetooth.Address for a scanned device, scanning for
// it if it has not been seen yet.
func (a *TinygoAdapter) resolve(ctx context.Context, address string) (bluetooth.Address, error) {
	a.mu.Lock()
	addr, ok := a.seen[address]
	a.mu.Unlock()
	if ok {
		return addr, nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, err := a.Scan(scanCtx, func(d Device) bool {
		if strings.EqualFold(d.Address, address) {
			cancel()
			return true
		}
		return false
	})
	if err != nil {
		return addr, err
	}

	a.mu.Lock()
	addr, ok = a.seen[address]
	a.mu.Unlock()
	if !ok {
		return addr, fmt.Errorf("ble: device %s not found", address)
	}
	return addr, nil
}

func (a *TinygoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	addr, err := a.resolve(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", address, err)
	}

	// tinygo's Connect blocks with its own timeout; wrap it to also
	// respect ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		conn := &tinygoConnection{
			device:   result.device,
			services: make(map[string]*bluetooth.DeviceService),
		}

		a.mu.Lock()
		a.connections[addr.String()] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

type tinygoConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	services     map[string]*bluetooth.DeviceService
	disconnectCb func()
}

func (c *tinygoConnection) service(serviceUUID string) (*bluetooth.DeviceService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if svc, ok := c.services[serviceUUID]; ok {
		return svc, nil
	}

	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("ble: service %s not found", serviceUUID)
	}
	c.services[serviceUUID] = &svcs[0]
	return &svcs[0], nil
}

func (c *tinygoConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svc, err := c.service(serviceUUID)
	if err != nil {
		return nil, err
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s not found", charUUID)
	}

	return &tinygoCharacteristic{char: &chars[0]}, nil
}

func (c *tinygoConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *tinygoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinygoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type tinygoCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

func (c *tinygoCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *tinygoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		// The backend may reuse buf after the callback returns.
		cp := make([]byte, len(buf))
		copy(cp, buf)
		cb(cp)
	})
}

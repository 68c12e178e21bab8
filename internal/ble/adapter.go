// Package ble provides the Bluetooth Low Energy transport used to talk to
// Renpho body-composition scales. It abstracts the radio behind small
// interfaces so the scale protocol can be driven by a mock in tests, and
// owns the single connection to a scale.
package ble

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Client operations that need a live link.
var ErrNotConnected = errors.New("ble: not connected")

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications (or indications)
	// on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string // MAC on Linux/Windows, CoreBluetooth UUID on macOS
	RSSI    int

	// ManufacturerData maps company IDs to the advertised payload.
	ManufacturerData map[uint16][]byte
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports advertising peripherals accepted by match until ctx is
	// done. A nil match accepts every named device.
	Scan(ctx context.Context, match func(Device) bool) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}

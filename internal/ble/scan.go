package ble

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RenphoManufacturerID is the company ID Renpho scales advertise under.
const RenphoManufacturerID uint16 = 0xffff

// DefaultNamePrefix is the advertised local-name prefix of Renpho scales.
const DefaultNamePrefix = "QN-Scale"

// MatchScale returns a scan filter accepting devices whose name starts with
// namePrefix (case-insensitive) or that carry Renpho manufacturer data.
func MatchScale(namePrefix string) func(Device) bool {
	prefix := strings.ToLower(namePrefix)
	return func(d Device) bool {
		if _, ok := d.ManufacturerData[RenphoManufacturerID]; ok {
			return true
		}
		if prefix == "" || d.Name == "" {
			return false
		}
		return strings.HasPrefix(strings.ToLower(d.Name), prefix) ||
			strings.Contains(strings.ToLower(d.Name), "renpho")
	}
}

// ScanForScales scans for Renpho scales for up to timeout.
func ScanForScales(adapter Adapter, namePrefix string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, MatchScale(namePrefix))
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

// FindScale scans until the first Renpho scale is seen and returns it.
func FindScale(adapter Adapter, namePrefix string, timeout time.Duration) (Device, error) {
	dev, err := findFirst(adapter, MatchScale(namePrefix), timeout)
	if err != nil {
		return Device{}, err
	}
	if dev == nil {
		return Device{}, fmt.Errorf("ble: no scale found within %s", timeout)
	}
	return *dev, nil
}

// FindAddress scans until the device with the given address advertises and
// returns it with its manufacturer data.
func FindAddress(adapter Adapter, address string, timeout time.Duration) (Device, error) {
	dev, err := findFirst(adapter, func(d Device) bool {
		return strings.EqualFold(d.Address, address)
	}, timeout)
	if err != nil {
		return Device{}, err
	}
	if dev == nil {
		return Device{}, fmt.Errorf("ble: %s not seen within %s", address, timeout)
	}
	return *dev, nil
}

func findFirst(adapter Adapter, match func(Device) bool, timeout time.Duration) (*Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, func(d Device) bool {
		if match(d) {
			cancel()
			return true
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	if len(devices) == 0 {
		return nil, nil
	}
	return &devices[0], nil
}

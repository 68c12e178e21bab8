package ble

import (
	"testing"
	"time"
)

func TestScanForScales(t *testing.T) {
	devices := []Device{
		{Name: "QN-Scale", Address: "AA:BB:CC:DD:EE:01", RSSI: -60},
		{Name: "Headphones", Address: "AA:BB:CC:DD:EE:02", RSSI: -40},
		{Name: "", Address: "AA:BB:CC:DD:EE:03", RSSI: -70,
			ManufacturerData: map[uint16][]byte{RenphoManufacturerID: {0x01}}},
		{Name: "Renpho ES-CS20M", Address: "AA:BB:CC:DD:EE:04", RSSI: -55},
	}
	adapter := newMockAdapter(devices)

	result, err := ScanForScales(adapter, DefaultNamePrefix, 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForScales() error = %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("got %d devices, want 3: %+v", len(result), result)
	}
	for _, d := range result {
		if d.Name == "Headphones" {
			t.Errorf("unexpected match %q", d.Name)
		}
	}
}

func TestScanForScalesEmpty(t *testing.T) {
	adapter := newMockAdapter(nil)
	result, err := ScanForScales(adapter, DefaultNamePrefix, 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForScales() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("got %d devices, want 0", len(result))
	}
}

func TestFindScale(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "qn-scale", Address: "AA:BB:CC:DD:EE:01"},
	})
	dev, err := FindScale(adapter, DefaultNamePrefix, time.Second)
	if err != nil {
		t.Fatalf("FindScale() error = %v", err)
	}
	if dev.Address != "AA:BB:CC:DD:EE:01" {
		t.Errorf("Address = %q, want AA:BB:CC:DD:EE:01", dev.Address)
	}
}

func TestFindScaleNotFound(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "Headphones", Address: "AA"}})
	if _, err := FindScale(adapter, DefaultNamePrefix, time.Second); err == nil {
		t.Error("FindScale() should fail when no scale advertises")
	}
}

func TestFindAddress(t *testing.T) {
	adv := []byte{0x01, 0x02}
	adapter := newMockAdapter([]Device{
		{Name: "QN-Scale", Address: "AA:BB:CC:DD:EE:01"},
		{Name: "QN-Scale", Address: "AA:BB:CC:DD:EE:02",
			ManufacturerData: map[uint16][]byte{RenphoManufacturerID: adv}},
	})
	dev, err := FindAddress(adapter, "aa:bb:cc:dd:ee:02", time.Second)
	if err != nil {
		t.Fatalf("FindAddress() error = %v", err)
	}
	if dev.Address != "AA:BB:CC:DD:EE:02" {
		t.Errorf("Address = %q, want AA:BB:CC:DD:EE:02", dev.Address)
	}
	if got := dev.ManufacturerData[RenphoManufacturerID]; string(got) != string(adv) {
		t.Errorf("ManufacturerData = % x, want % x", got, adv)
	}
}

func TestFindAddressNotFound(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "QN-Scale", Address: "AA:BB:CC:DD:EE:01"}})
	if _, err := FindAddress(adapter, "AA:BB:CC:DD:EE:09", time.Second); err == nil {
		t.Error("FindAddress() should fail when the address does not advertise")
	}
}

func TestMatchScaleEmptyPrefix(t *testing.T) {
	match := MatchScale("")
	if match(Device{Name: "anything"}) {
		t.Error("empty prefix should only match manufacturer data")
	}
	if !match(Device{ManufacturerData: map[uint16][]byte{0xffff: nil}}) {
		t.Error("manufacturer ID 0xffff should match")
	}
}

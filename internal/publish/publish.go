// Package publish delivers finished measurements to sinks: the log, an
// on-disk CBOR journal and an AMQP queue.
package publish

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/renpho-ble/internal/bodycomp"
	"github.com/chaz8081/renpho-ble/internal/scale"
)

// Publisher accepts measurement records.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// Record is the persisted form of one measurement.
type Record struct {
	ID          uuid.UUID             `cbor:"1,keyasint"`
	Timestamp   time.Time             `cbor:"2,keyasint"`
	Device      string                `cbor:"3,keyasint,omitempty"`
	Unit        scale.WeightUnit      `cbor:"4,keyasint"`
	WeightKg    float64               `cbor:"5,keyasint"`
	Resistance1 uint16                `cbor:"6,keyasint"`
	Resistance2 uint16                `cbor:"7,keyasint"`
	Impedance   float64               `cbor:"8,keyasint"`
	Composition *bodycomp.Composition `cbor:"9,keyasint,omitempty"`
}

// NewRecord builds a Record with a fresh ID from a successful result.
func NewRecord(device string, unit scale.WeightUnit, res scale.Result) Record {
	m := res.Measurement
	return Record{
		ID:          uuid.New(),
		Timestamp:   m.Timestamp,
		Device:      device,
		Unit:        unit,
		WeightKg:    m.WeightKg,
		Resistance1: m.Resistance1,
		Resistance2: m.Resistance2,
		Impedance:   m.Impedance,
		Composition: res.Composition,
	}
}

// Package scale drives a measurement on a connected Renpho scale: it detects
// the GATT variant, arms notifications, requests a reading and decodes the
// notification stream into a single Measurement.
package scale

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chaz8081/renpho-ble/internal/bodycomp"
)

var (
	// ErrStartFailed means a write or subscription needed to start the
	// measurement failed. The underlying transport error is wrapped.
	ErrStartFailed = errors.New("scale: could not start measurement")
	// ErrTimeout means no final reading arrived in time.
	ErrTimeout = errors.New("scale: measurement timed out")
	// ErrBusy is returned by Start while another request is in flight.
	ErrBusy = errors.New("scale: measurement already in progress")
	// ErrDisconnected means the connection went away mid-request.
	ErrDisconnected = errors.New("scale: disconnected")
)

// Measurement is one settled reading.
type Measurement struct {
	WeightKg    float64
	Resistance1 uint16
	Resistance2 uint16
	Impedance   float64
	Timestamp   time.Time
}

// Impedance converts the first raw resistance count to ohms.
func Impedance(resistance1 uint16) float64 {
	if resistance1 < 410 {
		return 3.0
	}
	return 0.3 * (float64(resistance1) - 400.0)
}

// WeightUnit is the display unit requested from the scale.
type WeightUnit string

const (
	Kilograms WeightUnit = "kg"
	Pounds    WeightUnit = "lb"
)

// ParseWeightUnit accepts "kg" or "lb" in any case.
func ParseWeightUnit(s string) (WeightUnit, error) {
	switch u := WeightUnit(strings.ToLower(s)); u {
	case Kilograms, Pounds:
		return u, nil
	default:
		return "", fmt.Errorf("scale: unknown weight unit %q", s)
	}
}

// wireByte is the unit byte of a measurement request. Anything other than
// kilograms is sent as pounds.
func (u WeightUnit) wireByte() byte {
	if strings.EqualFold(string(u), string(Kilograms)) || u == "" {
		return 0x01
	}
	return 0x02
}

// MeasureOptions configures one measurement request.
type MeasureOptions struct {
	Unit            WeightUnit
	BodyComposition bool
}

// Result is delivered once per request. Exactly one of Measurement and Err
// is meaningful. Composition is set when requested.
type Result struct {
	Measurement Measurement
	Composition *bodycomp.Composition
	Err         error
}

// State is the position of a Session in its measurement cycle.
type State int

const (
	Idle State = iota
	DetectingProtocol
	NotificationsArmed
	RequestSent
	AwaitingFinal
	Completed
	Failed
)

var stateNames = [...]string{
	Idle:               "idle",
	DetectingProtocol:  "detecting-protocol",
	NotificationsArmed: "notifications-armed",
	RequestSent:        "request-sent",
	AwaitingFinal:      "awaiting-final",
	Completed:          "completed",
	Failed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

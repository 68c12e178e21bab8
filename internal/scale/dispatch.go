package scale

import (
	"fmt"

	"github.com/chaz8081/renpho-ble/internal/ble/protocol"
	"github.com/chaz8081/renpho-ble/internal/bodycomp"
)

// handler processes one decoded notification. Handlers run with the
// session lock held.
type handler func(s *Session, f protocol.Frame)

var handlers = map[byte]handler{
	protocol.CmdWeight:      (*Session).onWeight,
	protocol.CmdSettings:    (*Session).onSettings,
	protocol.CmdHandshake14: (*Session).onHandshake14,
	protocol.CmdHandshake21: (*Session).onHandshake21,
	protocol.CmdHistory:     (*Session).onHistory,
	protocol.CmdHandshakeA1: (*Session).onHandshakeA1,
}

// dispatch routes a raw notification to its handler. Malformed frames,
// unknown commands and handler panics are logged and otherwise ignored.
func (s *Session) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("[SCALE] notification handler panicked", "panic", r, "frame", fmt.Sprintf("% x", data))
		}
	}()

	f, err := protocol.Decode(data)
	if err != nil {
		s.log.Debug("[SCALE] dropping frame", "error", err, "frame", fmt.Sprintf("% x", data))
		return
	}
	if s.protocolType == 0 {
		s.protocolType = f.ProtocolType
	}

	h, ok := handlers[f.Command]
	if !ok {
		s.log.Debug("[SCALE] ignoring command", "cmd", fmt.Sprintf("%#02x", f.Command))
		return
	}
	h(s, f)
}

func (s *Session) onWeight(f protocol.Frame) {
	data := f.Raw
	l := weightLayoutFor(f.ProtocolType)
	if len(data) < l.minLen() {
		s.log.Debug("[SCALE] short weight frame", "len", len(data), "need", l.minLen())
		return
	}

	switch done := data[l.done]; {
	case done == 0:
		s.finalReceived = false
		s.log.Debug("[SCALE] unsteady reading")
		return
	case done != l.doneState || s.finalReceived:
		return
	}
	s.finalReceived = true

	weight := float64(protocol.Uint16(data[l.weight], data[l.weight+1])) / s.weightScale
	if s.variant == Alternative {
		weight /= 10
	}
	s.log.Debug("[SCALE] final reading", "kg", weight)
	if weight <= 0 {
		return
	}

	r1 := protocol.Uint16(data[l.resist], data[l.resist+1])
	r2 := protocol.Uint16(data[l.resist+2], data[l.resist+3])
	s.deliver(Measurement{
		WeightKg:    weight,
		Resistance1: r1,
		Resistance2: r2,
		Impedance:   Impedance(r1),
		Timestamp:   s.opts.Now(),
	})
}

func (s *Session) onSettings(f protocol.Frame) {
	if len(f.Raw) > 10 {
		if f.Raw[10] == 1 {
			s.weightScale = 100
		} else {
			s.weightScale = 10
		}
		s.log.Debug("[SCALE] weight scale", "factor", s.weightScale)
	}
	s.reply(protocol.Build(protocol.CmdMeasureRequest, f.ProtocolType, 0x01, 0x10, 0x00, 0x00, 0x00))
}

func (s *Session) onHandshake14(f protocol.Frame) {
	s.reply(protocol.Build(protocol.CmdHandshake14Resp, f.ProtocolType, 0x25, 0x74, 0x18, 0x30))
}

func (s *Session) onHandshake21(protocol.Frame) {
	s.reply(protocol.Build(protocol.CmdHandshake21Resp, 0x02, 0xfe, 0xff, 0xee, 0x01, 0x1c, 0x06, 0x86, 0x03, 0x02))
}

// onHistory accepts stored-measurement frames without decoding them.
func (s *Session) onHistory(protocol.Frame) {}

func (s *Session) onHandshakeA1(f protocol.Frame) {
	s.reply(protocol.Build(protocol.CmdHandshakeA1Resp, f.ProtocolType, 0x00, 0x01))
}

// deliver hands a measurement to the pending request, or to the
// unsolicited sink when no request is in flight.
func (s *Session) deliver(m Measurement) {
	if req := s.pending; req != nil {
		res := Result{Measurement: m}
		if req.opts.BodyComposition {
			c := bodycomp.Estimate(m.WeightKg, m.Impedance)
			res.Composition = &c
		}
		s.finishLocked(req, res)
		return
	}
	if fn := s.opts.OnUnsolicited; fn != nil {
		s.deferred = append(s.deferred, func() { fn(m) })
		return
	}
	s.log.Info("[SCALE] dropping unsolicited reading", "kg", m.WeightKg)
}

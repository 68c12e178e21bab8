// Package protocol implements the framing used on the Renpho scale's
// command and notification characteristics.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Command bytes seen on the wire.
const (
	CmdWeight          byte = 0x10
	CmdSettings        byte = 0x12
	CmdMeasureRequest  byte = 0x13
	CmdHandshake14     byte = 0x14
	CmdHandshake14Resp byte = 0x20
	CmdHandshake21     byte = 0x21
	CmdHandshake21Resp byte = 0xa0
	CmdHandshakeA1Resp byte = 0x22
	CmdHistory         byte = 0x23
	CmdHandshakeA1     byte = 0xa1
	CmdTimeSync        byte = 0x02
)

// MinFrameLen is the shortest inbound frame that carries a command,
// length and protocol-type byte.
const MinFrameLen = 3

// ScaleEpochOffset is subtracted from Unix seconds to get the scale's
// clock, which counts from 2000-01-01.
const ScaleEpochOffset = 946702800

// ErrShortFrame is returned by Decode for frames under MinFrameLen bytes.
var ErrShortFrame = errors.New("protocol: frame too short")

// Frame is a parsed view of one inbound notification. Payload aliases the
// notification buffer and must not be retained after dispatch.
type Frame struct {
	Command      byte
	Length       byte
	ProtocolType byte
	Payload      []byte
	Raw          []byte
}

// Build encodes an outbound command frame:
//
//	[cmd, len(payload)+4, protocolType, payload..., checksum]
//
// where checksum is the low byte of the sum of every preceding byte.
func Build(cmd, protocolType byte, payload ...byte) []byte {
	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, cmd, byte(len(payload)+4), protocolType)
	frame = append(frame, payload...)
	return append(frame, Checksum(frame))
}

// Checksum returns the sum of data modulo 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Decode parses the fixed header of an inbound frame. Offsets past the
// header depend on the protocol variant and are left to the command handler.
func Decode(data []byte) (Frame, error) {
	if len(data) < MinFrameLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	return Frame{
		Command:      data[0],
		Length:       data[1],
		ProtocolType: data[2],
		Payload:      data[3:],
		Raw:          data,
	}, nil
}

// ScaleTime converts t to the scale's clock: seconds since 2000-01-01.
func ScaleTime(t time.Time) uint32 {
	return uint32(t.Unix() - ScaleEpochOffset)
}

// BuildTimeSync encodes the time-sync message: command 0x02 followed by the
// scale clock as a little-endian uint32. It is not checksummed.
func BuildTimeSync(t time.Time) []byte {
	msg := make([]byte, 5)
	msg[0] = CmdTimeSync
	binary.LittleEndian.PutUint32(msg[1:], ScaleTime(t))
	return msg
}

// Uint16 decodes a big-endian pair as used for weight and resistance fields.
func Uint16(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

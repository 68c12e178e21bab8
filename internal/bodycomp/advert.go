package bodycomp

import (
	"fmt"
)

// MinAdvertisementLen is the shortest manufacturer-data blob that holds
// every advertised field.
const MinAdvertisementLen = 19

// Advertisement holds the body-composition fields some scales put straight
// into their manufacturer data. Decoding it needs no connection.
type Advertisement struct {
	MetabolicAge       int     // byte 5, years
	ProteinPct         float64 // byte 7
	SubcutaneousFatPct float64 // bytes 8-9, big-endian tenths
	VisceralFatGrade   int     // byte 10
	LeanBodyMassKg     float64 // byte 12
	BodyWaterPct       float64 // bytes 17-18, big-endian tenths
}

// DecodeAdvertisement decodes a manufacturer-data blob.
func DecodeAdvertisement(data []byte) (Advertisement, error) {
	if len(data) < MinAdvertisementLen {
		return Advertisement{}, fmt.Errorf("bodycomp: advertisement too short: %d bytes, need %d", len(data), MinAdvertisementLen)
	}
	return Advertisement{
		MetabolicAge:       int(data[5]),
		ProteinPct:         float64(data[7]),
		SubcutaneousFatPct: float64(uint16(data[8])<<8|uint16(data[9])) / 10,
		VisceralFatGrade:   int(data[10]),
		LeanBodyMassKg:     float64(data[12]),
		BodyWaterPct:       float64(uint16(data[17])<<8|uint16(data[18])) / 10,
	}, nil
}

// Package bodycomp derives body-composition figures from a scale reading.
//
// The formulas are rough piecewise-linear approximations in impedance and
// weight only. They are not clinically derived and take no account of age,
// height or sex. The branch values do not meet at 300 Ω and 500 Ω; those
// steps are kept as-is because no reference formula is available to say
// which side is right.
package bodycomp

// Composition is derived from one measurement and is recomputed for every
// reading. The advertised fields are zero unless ApplyAdvertisement was
// called with data from a passive advertisement.
type Composition struct {
	BodyFatPct   float64
	BodyWaterPct float64
	MuscleMassKg float64
	BoneMassKg   float64

	Advertised         bool
	MetabolicAge       int
	ProteinPct         float64
	SubcutaneousFatPct float64
	VisceralFatGrade   int
	LeanBodyMassKg     float64
}

// Estimate computes the composition for the given weight and impedance.
// A figure the formulas take below zero is reported as 0.
func Estimate(weightKg, impedance float64) Composition {
	return Composition{
		BodyFatPct:   max(BodyFat(impedance), 0),
		BodyWaterPct: max(BodyWater(impedance), 0),
		MuscleMassKg: max(MuscleMass(weightKg, impedance), 0),
		BoneMassKg:   max(BoneMass(weightKg), 0),
	}
}

// BodyFat returns body fat in percent.
func BodyFat(impedance float64) float64 {
	switch {
	case impedance < 300:
		return 5 + impedance/100
	case impedance < 500:
		return 10 + (impedance-300)/50
	default:
		return 15 + (impedance-500)/100
	}
}

// BodyWater returns body water in percent. It falls as impedance rises.
func BodyWater(impedance float64) float64 {
	switch {
	case impedance < 300:
		return 70 - impedance/200
	case impedance < 500:
		return 65 - (impedance-300)/100
	default:
		return 60 - (impedance-500)/200
	}
}

// MuscleMass returns weight minus fat mass minus a fixed 2 kg for bone.
// The result is negative for very light weights.
func MuscleMass(weightKg, impedance float64) float64 {
	return weightKg - weightKg*(BodyFat(impedance)/100) - 2.0
}

// BoneMass is a flat 3% of body weight.
func BoneMass(weightKg float64) float64 {
	return weightKg * 0.03
}

// ApplyAdvertisement copies the fields a scale broadcasts directly into c.
// A non-zero advertised body-water value replaces the impedance estimate.
func (c *Composition) ApplyAdvertisement(adv Advertisement) {
	c.Advertised = true
	c.MetabolicAge = adv.MetabolicAge
	c.ProteinPct = adv.ProteinPct
	c.SubcutaneousFatPct = adv.SubcutaneousFatPct
	c.VisceralFatGrade = adv.VisceralFatGrade
	c.LeanBodyMassKg = adv.LeanBodyMassKg
	if adv.BodyWaterPct > 0 {
		c.BodyWaterPct = adv.BodyWaterPct
	}
}

package bodycomp

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestBodyFat(t *testing.T) {
	tests := []struct {
		impedance float64
		want      float64
	}{
		{0, 5},
		{3, 5.03},
		{150, 6.5},
		{299, 7.99},
		{300, 10}, // 5 + 300/100 would be 8: the step is kept
		{400, 12},
		{499, 13.98}, // last value below the 500 Ω step
		{500, 15}, // 10 + 200/50 would be 14
		{700, 17},
	}
	for _, tt := range tests {
		if got := BodyFat(tt.impedance); !near(got, tt.want) {
			t.Errorf("BodyFat(%v) = %v, want %v", tt.impedance, got, tt.want)
		}
	}
}

func TestBodyFatBoundaryDiscontinuity(t *testing.T) {
	// Below 300 Ω the first branch tends to 8%, the second starts at 10%.
	if lo, hi := 5+300.0/100, BodyFat(300); near(lo, hi) {
		t.Errorf("expected a step at 300 Ω, both sides = %v", hi)
	}
	if got := BodyFat(300); !near(got, 10) {
		t.Errorf("BodyFat(300) = %v, want 10", got)
	}
	// At 500 Ω the second branch would give 14%, the third gives 15%.
	if lo, hi := 10+(500.0-300)/50, BodyFat(500); !near(lo, 14) || !near(hi, 15) {
		t.Errorf("branch values at 500 Ω = %v / %v, want 14 / 15", lo, hi)
	}
}

func TestBodyWater(t *testing.T) {
	tests := []struct {
		impedance float64
		want      float64
	}{
		{0, 70},
		{200, 69},
		{300, 65}, // first branch would give 68.5
		{400, 64},
		{500, 60}, // second branch would give 63
		{700, 59},
	}
	for _, tt := range tests {
		if got := BodyWater(tt.impedance); !near(got, tt.want) {
			t.Errorf("BodyWater(%v) = %v, want %v", tt.impedance, got, tt.want)
		}
	}
}

func TestMuscleAndBoneMass(t *testing.T) {
	// impedance 400 -> body fat 12%
	if got := MuscleMass(80, 400); !near(got, 80-9.6-2) {
		t.Errorf("MuscleMass(80, 400) = %v, want %v", got, 80-9.6-2)
	}
	if got := BoneMass(80); !near(got, 2.4) {
		t.Errorf("BoneMass(80) = %v, want 2.4", got)
	}
}

func TestEstimateClampsNegativeMass(t *testing.T) {
	// 1 kg at 0 Ω: the muscle formula gives 1 - 0.05 - 2 = -1.05
	if raw := MuscleMass(1, 0); raw >= 0 {
		t.Fatalf("MuscleMass(1, 0) = %v, expected a negative raw value", raw)
	}
	c := Estimate(1, 0)
	if c.MuscleMassKg != 0 {
		t.Errorf("MuscleMassKg = %v, want 0", c.MuscleMassKg)
	}
	if !near(c.BoneMassKg, 0.03) {
		t.Errorf("BoneMassKg = %v, want 0.03", c.BoneMassKg)
	}
}

func TestEstimate(t *testing.T) {
	c := Estimate(70, 30)
	if !near(c.BodyFatPct, 5.3) {
		t.Errorf("BodyFatPct = %v, want 5.3", c.BodyFatPct)
	}
	if !near(c.BodyWaterPct, 69.85) {
		t.Errorf("BodyWaterPct = %v, want 69.85", c.BodyWaterPct)
	}
	if !near(c.BoneMassKg, 2.1) {
		t.Errorf("BoneMassKg = %v, want 2.1", c.BoneMassKg)
	}
	if c.Advertised {
		t.Error("Advertised should be false for a plain estimate")
	}
}

func TestApplyAdvertisement(t *testing.T) {
	c := Estimate(70, 30)
	c.ApplyAdvertisement(Advertisement{
		MetabolicAge:       31,
		ProteinPct:         18,
		SubcutaneousFatPct: 15.5,
		VisceralFatGrade:   6,
		LeanBodyMassKg:     55,
		BodyWaterPct:       57.3,
	})
	if !c.Advertised || c.MetabolicAge != 31 || c.VisceralFatGrade != 6 {
		t.Errorf("advertised fields not applied: %+v", c)
	}
	if !near(c.BodyWaterPct, 57.3) {
		t.Errorf("BodyWaterPct = %v, want advertised 57.3", c.BodyWaterPct)
	}

	// Zero advertised water keeps the estimate.
	c = Estimate(70, 30)
	c.ApplyAdvertisement(Advertisement{MetabolicAge: 40})
	if !near(c.BodyWaterPct, 69.85) {
		t.Errorf("BodyWaterPct = %v, want estimate 69.85", c.BodyWaterPct)
	}
}

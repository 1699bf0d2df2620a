// Package intensity implements the heart-rate based training load model:
// heart-rate reserve ratio, Banister TRIMP, five-zone classification and the
// unit conversions used by the derived activity table.
package intensity

import (
	"fmt"
	"math"
)

const (
	metersToMiles = 0.000621371
	metersToFeet  = 3.28084

	// trimpExponent is the Banister weighting coefficient (male default).
	trimpExponent = 1.92
)

// zoneThresholds are the upper bounds (exclusive) of zones 1 to 4.
var zoneThresholds = [...]float64{0.6, 0.7, 0.8, 0.9}

// Params personalizes the model.
type Params struct {
	Age       float64 `json:"age" toml:"age"`
	RestingHR float64 `json:"resting_hr" toml:"resting_hr"`
}

// MaxHR is the age-estimated maximum heart rate.
func (p Params) MaxHR() float64 {
	return MaxHeartRate(p.Age)
}

// Validate rejects parameters for which the ratio is undefined.
func (p Params) Validate() error {
	if !isFinite(p.Age) || p.Age <= 0 {
		return fmt.Errorf("age must be a positive number, got %v", p.Age)
	}
	if !isFinite(p.RestingHR) || p.RestingHR <= 0 {
		return fmt.Errorf("resting heart rate must be a positive number, got %v", p.RestingHR)
	}
	if p.MaxHR() <= p.RestingHR {
		return fmt.Errorf("resting heart rate %.0f bpm is not below estimated max %.1f bpm", p.RestingHR, p.MaxHR())
	}
	return nil
}

// MaxHeartRate estimates maximum heart rate from age: 208 - 0.7 x age.
func MaxHeartRate(age float64) float64 {
	return 208 - 0.7*age
}

// HRRatio is the fraction of heart-rate reserve used at avgHR, floored at 0.
func HRRatio(avgHR float64, p Params) float64 {
	ratio := (avgHR - p.RestingHR) / (p.MaxHR() - p.RestingHR)
	if !(ratio > 0) {
		return 0
	}
	return ratio
}

// TRIMP is duration x ratio x e^(1.92 x ratio), floored at 0.
func TRIMP(durationMin, ratio float64) float64 {
	load := durationMin * ratio * math.Exp(trimpExponent*ratio)
	if !(load > 0) {
		return 0
	}
	return load
}

// ZoneForRatio buckets a ratio into zones 1 to 5.
func ZoneForRatio(ratio float64) int {
	for i, upper := range zoneThresholds {
		if ratio < upper {
			return i + 1
		}
	}
	return len(zoneThresholds) + 1
}

// Zone classifies an average heart rate. It returns nil when the heart rate
// is missing.
func Zone(avgHR *float64, p Params) *int {
	if avgHR == nil || !isFinite(*avgHR) {
		return nil
	}
	z := ZoneForRatio(HRRatio(*avgHR, p))
	return &z
}

// MetersToMiles converts meters to statute miles.
func MetersToMiles(m float64) float64 { return m * metersToMiles }

// MetersToFeet converts meters to feet.
func MetersToFeet(m float64) float64 { return m * metersToFeet }

// SecondsToMinutes converts seconds to minutes.
func SecondsToMinutes(s float64) float64 { return s / 60 }

// Pace returns minutes per mile, or nil when distance is missing, not
// positive, or the result is not finite.
func Pace(durationMin float64, distanceMi *float64) *float64 {
	if distanceMi == nil || !(*distanceMi > 0) {
		return nil
	}
	pace := durationMin / *distanceMi
	if !isFinite(pace) || pace <= 0 {
		return nil
	}
	return &pace
}

// FormatPace renders a pace as "m:ss /mi". Paces too large to count in
// whole seconds have no rendering.
func FormatPace(pace *float64) *string {
	if pace == nil || !isFinite(*pace) || *pace <= 0 {
		return nil
	}
	seconds := math.Round(*pace * 60)
	if seconds >= math.MaxInt64 {
		return nil
	}
	total := int64(seconds)
	s := fmt.Sprintf("%d:%02d /mi", total/60, total%60)
	return &s
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

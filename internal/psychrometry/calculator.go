// Package psychrometry converts dry-bulb and wet-bulb temperatures into
// relative humidity and dew point.
//
// Saturation vapor pressure uses the Magnus approximation
//
//	es(t) = 6.112 * exp(17.67*t / (t+243.5))   [hPa]
//
// and the actual vapor pressure follows the Sprung psychrometer formula
//
//	e = es(wet) - A * p * (dry - wet)
//
// with A the coefficient of an unventilated, screened psychrometer and p a
// fixed standard atmosphere. No pressure correction is applied.
package psychrometry

import (
	"fmt"
	"math"

	"github.com/RMahshie/psychro/pkg/models"
)

const (
	// PsychrometerCoefficient is A for an unventilated screened psychrometer, per K.
	PsychrometerCoefficient = 0.0007947
	// StandardPressure is the fixed station pressure in hPa.
	StandardPressure = 1013.25

	magnusA = 17.27
	magnusB = 237.7
)

// InconsistencyError reports a wet bulb reading above the dry bulb.
// The calculator still produces a number for such input; this error is
// raised only by Evaluate, which is what the review flow relies on.
type InconsistencyError struct {
	DryTemp float64
	WetTemp float64
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("wet bulb (%.1f°C) reads above dry bulb (%.1f°C)", e.WetTemp, e.DryTemp)
}

// SaturationVaporPressure returns the saturation vapor pressure in hPa at tempC.
func SaturationVaporPressure(tempC float64) float64 {
	return 6.112 * math.Exp(17.67*tempC/(tempC+243.5))
}

// RelativeHumidity returns relative humidity in percent, clamped to [0,100]
// and rounded to one decimal. It never fails, including for wet > dry.
func RelativeHumidity(dryTemp, wetTemp float64) float64 {
	esWet := SaturationVaporPressure(wetTemp)
	esDry := SaturationVaporPressure(dryTemp)
	e := esWet - PsychrometerCoefficient*StandardPressure*(dryTemp-wetTemp)

	rh := 100 * e / esDry
	if math.IsNaN(rh) {
		return 0
	}
	rh = math.Max(0, math.Min(100, rh))
	return roundTenth(rh)
}

// DewPoint inverts the Magnus formula. rhPercent must be > 0.
func DewPoint(tempC, rhPercent float64) float64 {
	alpha := magnusA*tempC/(magnusB+tempC) + math.Log(rhPercent/100)
	return magnusB * alpha / (magnusA - alpha)
}

// Evaluate derives a MeasurementResult from a reading. When the wet bulb
// reads above the dry bulb no humidity is derived and an
// *InconsistencyError is returned. The dew point is left unset when the
// humidity is zero.
func Evaluate(r models.Reading) (models.MeasurementResult, error) {
	result := models.MeasurementResult{Reading: r}
	if !r.IsConsistent() {
		return result, &InconsistencyError{DryTemp: r.DryTemp, WetTemp: r.WetTemp}
	}

	result.RelativeHumidity = RelativeHumidity(r.DryTemp, r.WetTemp)
	if result.RelativeHumidity > 0 {
		dp := roundTenth(DewPoint(r.DryTemp, result.RelativeHumidity))
		result.DewPoint = &dp
	}
	return result, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

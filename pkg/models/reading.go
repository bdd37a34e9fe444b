package models

import "fmt"

// Image is a raw photo together with its MIME type
type Image struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// Reading is the pair of thermometer values extracted from a photo.
// WetTemp <= DryTemp is expected but not enforced here.
type Reading struct {
	IsValidSubject bool     `json:"is_valid_subject" doc:"Whether the photo shows a psychrometer"`
	DryTemp        float64  `json:"dry_temp" doc:"Dry-bulb temperature in °C"`
	WetTemp        float64  `json:"wet_temp" doc:"Wet-bulb temperature in °C"`
	Confidence     *float64 `json:"confidence,omitempty" doc:"Extraction confidence between 0 and 1"`
}

// Depression returns the wet-bulb depression (dry minus wet)
func (r Reading) Depression() float64 {
	return r.DryTemp - r.WetTemp
}

// IsConsistent reports whether the wet bulb does not read above the dry bulb
func (r Reading) IsConsistent() bool {
	return r.WetTemp <= r.DryTemp
}

func (r Reading) String() string {
	return fmt.Sprintf("dry=%.1f°C wet=%.1f°C", r.DryTemp, r.WetTemp)
}

// MeasurementResult is a Reading with the derived humidity values.
// It is recomputed whenever the reading changes and never persisted.
type MeasurementResult struct {
	Reading
	RelativeHumidity float64  `json:"relative_humidity" minimum:"0" maximum:"100" doc:"Relative humidity in percent"`
	DewPoint         *float64 `json:"dew_point,omitempty" doc:"Dew point in °C, absent when humidity is 0"`
}

// CalibrationExemplar is a user-confirmed reading kept to prime future extractions
type CalibrationExemplar struct {
	ID           string  `json:"id" doc:"Exemplar identifier"`
	Timestamp    int64   `json:"timestamp" doc:"Creation time in Unix milliseconds"`
	ImageRef     string  `json:"imageRef" doc:"Object key of the stored photo"`
	CorrectedDry float64 `json:"correctedDry" doc:"Accepted dry-bulb temperature in °C"`
	CorrectedWet float64 `json:"correctedWet" doc:"Accepted wet-bulb temperature in °C"`
}

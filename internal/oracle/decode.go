package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/pkg/models"
)

// Response is the structured answer the oracle must produce.
type Response struct {
	IsPsychrometer bool    `json:"isPsychrometer" jsonschema_description:"True when the photo shows a dry/wet bulb psychrometer"`
	DryTemp        float64 `json:"dryTemp" jsonschema_description:"Dry-bulb reading in degrees Celsius, 0.2 degree resolution"`
	WetTemp        float64 `json:"wetTemp" jsonschema_description:"Wet-bulb reading in degrees Celsius, 0.2 degree resolution"`
}

// strictResponse detects missing and null fields.
type strictResponse struct {
	IsPsychrometer *bool    `json:"isPsychrometer"`
	DryTemp        *float64 `json:"dryTemp"`
	WetTemp        *float64 `json:"wetTemp"`
}

// DecodeResponse validates raw oracle output against the three-field
// contract. Anything else is ErrMalformedResponse; a negative subject
// answer is ErrSubjectNotRecognized. A wet bulb above the dry bulb is
// returned unchanged.
func DecodeResponse(raw []byte) (models.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var resp strictResponse
	if err := dec.Decode(&resp); err != nil {
		return models.Reading{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return models.Reading{}, fmt.Errorf("%w: trailing data after response object", ErrMalformedResponse)
	}

	switch {
	case resp.IsPsychrometer == nil:
		return models.Reading{}, fmt.Errorf("%w: missing isPsychrometer", ErrMalformedResponse)
	case resp.DryTemp == nil:
		return models.Reading{}, fmt.Errorf("%w: missing dryTemp", ErrMalformedResponse)
	case resp.WetTemp == nil:
		return models.Reading{}, fmt.Errorf("%w: missing wetTemp", ErrMalformedResponse)
	}

	if !*resp.IsPsychrometer {
		return models.Reading{}, ErrSubjectNotRecognized
	}

	reading := models.Reading{
		IsValidSubject: true,
		DryTemp:        *resp.DryTemp,
		WetTemp:        *resp.WetTemp,
	}
	if !reading.IsConsistent() {
		log.Warn().
			Float64("dryTemp", reading.DryTemp).
			Float64("wetTemp", reading.WetTemp).
			Msg("Oracle reported wet bulb above dry bulb")
	}
	return reading, nil
}

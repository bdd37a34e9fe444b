package models

import (
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// FailureView describes a failed extraction
type FailureView struct {
	Kind    string `json:"kind" enum:"subject_not_recognized,malformed_response,transport_failure,cancelled" doc:"Failure category"`
	Message string `json:"message" doc:"Human-readable failure message"`
}

// SessionView is the client-facing snapshot of a measurement session
type SessionView struct {
	ID              string               `json:"id" doc:"Session identifier"`
	State           string               `json:"state" enum:"idle,acquiring,awaiting_extraction,extracted,extraction_failed,reviewing,calibrated" doc:"Workflow state"`
	Attempt         int                  `json:"attempt" doc:"Number of extractions started in this session"`
	ImageMimeType   string               `json:"image_mime_type,omitempty" doc:"MIME type of the selected photo"`
	Original        *Reading             `json:"original,omitempty" doc:"Reading as extracted from the photo"`
	Reading         *Reading             `json:"reading,omitempty" doc:"Current, possibly edited, reading"`
	Result          *MeasurementResult   `json:"result,omitempty" doc:"Derived humidity, absent while the reading is inconsistent"`
	ValidationError string               `json:"validation_error,omitempty" doc:"Physical inconsistency warning"`
	Corrected       bool                 `json:"corrected" doc:"Whether the user edited the extracted values"`
	Calibrated      bool                 `json:"calibrated" doc:"Whether the current values were committed as an exemplar"`
	Exemplar        *CalibrationExemplar `json:"exemplar,omitempty" doc:"Exemplar created by the last commit"`
	Failure         *FailureView         `json:"failure,omitempty" doc:"Why the last extraction failed"`
	CreatedAt       time.Time            `json:"created_at" doc:"Session creation time"`
	UpdatedAt       time.Time            `json:"updated_at" doc:"Last state change"`
}

// SessionResponse wraps a session snapshot
type SessionResponse struct {
	Body SessionView
}

// SessionIDRequest addresses a single session
type SessionIDRequest struct {
	ID string `path:"id" doc:"Session ID"`
}

// SelectImageRequest uploads the photo to analyze
type SelectImageRequest struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Image    []byte `json:"image" contentEncoding:"base64" minLength:"1" required:"true" doc:"Base64-encoded photo"`
		MimeType string `json:"mime_type" enum:"image/jpeg,image/png,image/webp,image/heic" required:"true" doc:"Photo MIME type"`
	}
}

// EditReadingRequest replaces the dry and wet bulb values under review
type EditReadingRequest struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		DryTemp float64 `json:"dry_temp" minimum:"-40" maximum:"60" doc:"Dry-bulb temperature in °C"`
		WetTemp float64 `json:"wet_temp" minimum:"-40" maximum:"60" doc:"Wet-bulb temperature in °C"`
	}
}

// DeleteSessionResponse confirms a deleted session
type DeleteSessionResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}

// ExemplarView is a stored exemplar with a temporary link to its photo
type ExemplarView struct {
	CalibrationExemplar
	ImageURL string `json:"image_url,omitempty" doc:"Pre-signed URL of the exemplar photo"`
}

// ListExemplarsResponse lists calibration exemplars newest first
type ListExemplarsResponse struct {
	Body struct {
		Exemplars []ExemplarView `json:"exemplars" doc:"Exemplars, newest first"`
		Capacity  int            `json:"capacity" doc:"Maximum number of exemplars kept"`
	}
}

// ClearExemplarsResponse confirms the calibration buffer was emptied
type ClearExemplarsResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}

// ComputeRequest asks for humidity from two temperatures
type ComputeRequest struct {
	Body struct {
		DryTemp float64 `json:"dry_temp" minimum:"-40" maximum:"60" doc:"Dry-bulb temperature in °C"`
		WetTemp float64 `json:"wet_temp" minimum:"-40" maximum:"60" doc:"Wet-bulb temperature in °C"`
	}
}

// ComputeResponse carries the derived humidity or the validation error
type ComputeResponse struct {
	Body struct {
		Result          *MeasurementResult `json:"result,omitempty" doc:"Derived humidity values"`
		ValidationError string             `json:"validation_error,omitempty" doc:"Physical inconsistency warning"`
	}
}

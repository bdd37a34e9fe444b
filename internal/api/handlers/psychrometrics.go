package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/RMahshie/psychro/internal/psychrometry"
	"github.com/RMahshie/psychro/pkg/models"
)

// Compute derives humidity from two temperatures without a photo. A wet
// bulb above the dry bulb is reported in validation_error, not as a failure.
func Compute(ctx context.Context, req *models.ComputeRequest) (*models.ComputeResponse, error) {
	reading := models.Reading{IsValidSubject: true, DryTemp: req.Body.DryTemp, WetTemp: req.Body.WetTemp}

	resp := &models.ComputeResponse{}
	result, err := psychrometry.Evaluate(reading)
	if err != nil {
		var inconsistency *psychrometry.InconsistencyError
		if !errors.As(err, &inconsistency) {
			return nil, huma.Error500InternalServerError("Failed to compute humidity", err)
		}
		resp.Body.ValidationError = inconsistency.Error()
		return resp, nil
	}

	resp.Body.Result = &result
	return resp, nil
}

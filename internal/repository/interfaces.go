package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/psychro/pkg/models"
)

// ErrCorruptRecord is returned by Load when the stored calibration record
// exists but cannot be decoded.
var ErrCorruptRecord = errors.New("calibration record is corrupt")

// CalibrationRepository persists the calibration exemplar buffer as a single
// named record. Replace overwrites the whole record atomically.
type CalibrationRepository interface {
	// Load returns the stored exemplars in insertion order, or an empty
	// slice when no record exists.
	Load(ctx context.Context) ([]models.CalibrationExemplar, error)
	Replace(ctx context.Context, exemplars []models.CalibrationExemplar) error
	Clear(ctx context.Context) error
}

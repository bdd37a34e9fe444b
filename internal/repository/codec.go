package repository

import (
	"encoding/json"
	"fmt"

	"github.com/RMahshie/psychro/pkg/models"
)

// EncodeRecord serializes exemplars into the persisted record format
func EncodeRecord(exemplars []models.CalibrationExemplar) ([]byte, error) {
	if exemplars == nil {
		exemplars = []models.CalibrationExemplar{}
	}
	data, err := json.Marshal(exemplars)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal calibration record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a persisted record. Anything that is not a JSON array
// of well-formed exemplars is reported as ErrCorruptRecord.
func DecodeRecord(data []byte) ([]models.CalibrationExemplar, error) {
	var exemplars []models.CalibrationExemplar
	if err := json.Unmarshal(data, &exemplars); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	for i, e := range exemplars {
		if e.ID == "" || e.ImageRef == "" {
			return nil, fmt.Errorf("%w: exemplar %d is missing id or image reference", ErrCorruptRecord, i)
		}
	}
	return exemplars, nil
}

package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/calibration"
	"github.com/RMahshie/psychro/internal/storage"
	"github.com/RMahshie/psychro/pkg/models"
)

const imageURLExpiry = 15 * time.Minute

// ExemplarCatalog is the part of the calibration store exposed over HTTP
type ExemplarCatalog interface {
	MostRecent(k int) []models.CalibrationExemplar
	Clear(ctx context.Context) error
}

// CalibrationHandler handles calibration exemplar HTTP requests
type CalibrationHandler struct {
	exemplars ExemplarCatalog
	images    storage.ImageStore
}

// NewCalibrationHandler creates a new calibration handler
func NewCalibrationHandler(exemplars ExemplarCatalog, images storage.ImageStore) *CalibrationHandler {
	return &CalibrationHandler{
		exemplars: exemplars,
		images:    images,
	}
}

// ListExemplars returns the stored exemplars newest first
func (h *CalibrationHandler) ListExemplars(ctx context.Context, input *struct{}) (*models.ListExemplarsResponse, error) {
	exemplars := h.exemplars.MostRecent(calibration.Capacity)

	resp := &models.ListExemplarsResponse{}
	resp.Body.Capacity = calibration.Capacity
	resp.Body.Exemplars = make([]models.ExemplarView, 0, len(exemplars))
	for _, e := range exemplars {
		view := models.ExemplarView{CalibrationExemplar: e}
		url, err := h.images.GenerateDownloadURL(ctx, e.ImageRef, imageURLExpiry)
		if err != nil {
			log.Warn().Err(err).Str("exemplarID", e.ID).Msg("Failed to sign exemplar image URL")
		} else {
			view.ImageURL = url
		}
		resp.Body.Exemplars = append(resp.Body.Exemplars, view)
	}
	return resp, nil
}

// ClearExemplars removes every exemplar
func (h *CalibrationHandler) ClearExemplars(ctx context.Context, input *struct{}) (*models.ClearExemplarsResponse, error) {
	if err := h.exemplars.Clear(ctx); err != nil {
		return nil, huma.Error500InternalServerError("Failed to clear calibration exemplars", err)
	}
	log.Info().Msg("Calibration exemplars cleared")

	resp := &models.ClearExemplarsResponse{}
	resp.Body.Message = "Calibration exemplars cleared"
	return resp, nil
}

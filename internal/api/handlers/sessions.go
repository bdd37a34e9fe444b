package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/processing"
	"github.com/RMahshie/psychro/internal/session"
	"github.com/RMahshie/psychro/internal/storage"
	"github.com/RMahshie/psychro/pkg/models"
)

const (
	// maxImageBytes bounds an uploaded photo after base64 decoding.
	maxImageBytes = 10 * 1024 * 1024

	// MaxImageBodyBytes is the request body limit for photo uploads: the
	// base64 form of maxImageBytes plus room for the JSON envelope.
	MaxImageBodyBytes = maxImageBytes/3*4 + 64*1024
)

// SessionHandler handles measurement session HTTP requests
type SessionHandler struct {
	sessions   *session.Manager
	extraction processing.ExtractionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *session.Manager, extraction processing.ExtractionService) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		extraction: extraction,
	}
}

// CreateSession starts a new idle measurement session
func (h *SessionHandler) CreateSession(ctx context.Context, input *struct{}) (*models.SessionResponse, error) {
	sess := h.sessions.Create()
	return &models.SessionResponse{Body: sess.View()}, nil
}

// GetSession returns the current snapshot of a session
func (h *SessionHandler) GetSession(ctx context.Context, req *models.SessionIDRequest) (*models.SessionResponse, error) {
	sess, err := h.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return &models.SessionResponse{Body: sess.View()}, nil
}

// DeleteSession cancels any extraction in flight and forgets the session
func (h *SessionHandler) DeleteSession(ctx context.Context, req *models.SessionIDRequest) (*models.DeleteSessionResponse, error) {
	if _, err := uuid.Parse(req.ID); err != nil {
		return nil, huma.Error400BadRequest("Invalid session ID", err)
	}
	if err := h.sessions.Delete(req.ID); err != nil {
		return nil, sessionError(err)
	}
	resp := &models.DeleteSessionResponse{}
	resp.Body.Message = "Session deleted"
	return resp, nil
}

// SelectImage accepts a photo and starts extracting its reading in the
// background. Clients poll GetSession for the outcome.
func (h *SessionHandler) SelectImage(ctx context.Context, req *models.SelectImageRequest) (*models.SessionResponse, error) {
	sess, err := h.lookup(req.ID)
	if err != nil {
		return nil, err
	}

	if err := storage.ValidateContentType(req.Body.MimeType); err != nil {
		return nil, huma.Error400BadRequest("Photo format not supported. Use JPEG, PNG, WebP or HEIC.", err)
	}
	if len(req.Body.Image) == 0 {
		return nil, huma.Error400BadRequest("Photo is empty.")
	}
	if len(req.Body.Image) > maxImageBytes {
		return nil, huma.Error400BadRequest("Photo too large. Please use a smaller image.")
	}

	image := models.Image{Data: req.Body.Image, MimeType: req.Body.MimeType}
	runCtx, attempt, err := sess.Begin(image)
	if err != nil {
		return nil, sessionError(err)
	}

	log.Info().Str("sessionID", sess.ID).Int("attempt", attempt).Msg("Starting background extraction goroutine")
	go func() {
		if err := h.extraction.ProcessExtraction(runCtx, sess, attempt); err != nil {
			log.Error().Err(err).Str("sessionID", sess.ID).Int("attempt", attempt).Msg("Extraction processing failed")
		}
	}()

	return &models.SessionResponse{Body: sess.View()}, nil
}

// EditReading replaces the values under review and recomputes humidity
func (h *SessionHandler) EditReading(ctx context.Context, req *models.EditReadingRequest) (*models.SessionResponse, error) {
	sess, err := h.lookup(req.ID)
	if err != nil {
		return nil, err
	}

	view, err := sess.Edit(req.Body.DryTemp, req.Body.WetTemp)
	if err != nil {
		return nil, sessionError(err)
	}
	return &models.SessionResponse{Body: view}, nil
}

// Calibrate commits the reviewed values as a calibration exemplar
func (h *SessionHandler) Calibrate(ctx context.Context, req *models.SessionIDRequest) (*models.SessionResponse, error) {
	sess, err := h.lookup(req.ID)
	if err != nil {
		return nil, err
	}

	view, err := sess.Commit(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &models.SessionResponse{Body: view}, nil
}

// ResetSession returns a session to idle
func (h *SessionHandler) ResetSession(ctx context.Context, req *models.SessionIDRequest) (*models.SessionResponse, error) {
	sess, err := h.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return &models.SessionResponse{Body: sess.Reset()}, nil
}

func (h *SessionHandler) lookup(id string) (*session.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, huma.Error400BadRequest("Invalid session ID", err)
	}
	sess, err := h.sessions.Get(id)
	if err != nil {
		return nil, sessionError(err)
	}
	return sess, nil
}

// sessionError maps session errors onto HTTP status codes
func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return huma.Error404NotFound("Session not found", err)
	case errors.Is(err, session.ErrCalibrationBlocked):
		return huma.Error422UnprocessableEntity("Wet bulb reads above dry bulb. Fix the values before calibrating.", err)
	case errors.Is(err, session.ErrExtractionInFlight):
		return huma.Error409Conflict("A photo is already being analyzed", err)
	case errors.Is(err, session.ErrAlreadyCalibrated):
		return huma.Error409Conflict("Reading is already calibrated", err)
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrStaleAttempt):
		return huma.Error409Conflict("Action not allowed in the current session state", err)
	default:
		return huma.Error500InternalServerError("Failed to update session", err)
	}
}

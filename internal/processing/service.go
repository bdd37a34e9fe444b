package processing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/observability"
	"github.com/RMahshie/psychro/internal/oracle"
	"github.com/RMahshie/psychro/internal/session"
	"github.com/RMahshie/psychro/pkg/models"
)

// ExemplarSource supplies the most recent confirmed exemplar used to prime
// an extraction.
type ExemplarSource interface {
	MostRecent(k int) []models.CalibrationExemplar
	Image(ctx context.Context, exemplar models.CalibrationExemplar) (models.Image, error)
}

type ExtractionService interface {
	// ProcessExtraction runs one oracle call for attempt and reports the
	// outcome to sess. ctx is the context returned by sess.Begin.
	ProcessExtraction(ctx context.Context, sess *session.Session, attempt int) error
}

type extractionService struct {
	extractor oracle.Extractor
	exemplars ExemplarSource
	timeout   time.Duration
	metrics   *observability.Metrics
}

func NewExtractionService(extractor oracle.Extractor, exemplars ExemplarSource, timeout time.Duration, metrics *observability.Metrics) ExtractionService {
	return &extractionService{
		extractor: extractor,
		exemplars: exemplars,
		timeout:   timeout,
		metrics:   metrics,
	}
}

func (s *extractionService) ProcessExtraction(ctx context.Context, sess *session.Session, attempt int) error {
	machine := sess.Machine()
	if machine.Attempt != attempt || machine.Image == nil {
		return session.ErrStaleAttempt
	}
	image := *machine.Image

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	exemplar := s.primer(ctx, sess.ID)
	reading, err := s.extractor.Extract(ctx, image, exemplar)

	outcome := "success"
	if err != nil {
		outcome = string(oracle.Classify(err))
	}

	if completeErr := sess.Complete(attempt, reading, err); completeErr != nil {
		if errors.Is(completeErr, session.ErrStaleAttempt) {
			log.Info().
				Str("sessionID", sess.ID).
				Int("attempt", attempt).
				Msg("Discarding result of a superseded extraction")
			s.metrics.Extractions.WithLabelValues(string(oracle.FailureCancelled)).Inc()
			return nil
		}
		return completeErr
	}

	s.metrics.Extractions.WithLabelValues(outcome).Inc()
	return nil
}

// primer returns the newest exemplar with its photo, or nil when there is
// none or its photo cannot be fetched.
func (s *extractionService) primer(ctx context.Context, sessionID string) *oracle.Exemplar {
	recent := s.exemplars.MostRecent(1)
	if len(recent) == 0 {
		return nil
	}
	latest := recent[0]

	image, err := s.exemplars.Image(ctx, latest)
	if err != nil {
		log.Warn().
			Err(err).
			Str("sessionID", sessionID).
			Str("exemplarID", latest.ID).
			Msg("Exemplar photo unavailable, extracting without reference")
		return nil
	}

	return &oracle.Exemplar{
		Image:   image,
		DryTemp: latest.CorrectedDry,
		WetTemp: latest.CorrectedWet,
	}
}

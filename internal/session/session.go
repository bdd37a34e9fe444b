package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/observability"
	"github.com/RMahshie/psychro/pkg/models"
)

// ExemplarCommitter persists an accepted reading as a calibration exemplar.
type ExemplarCommitter interface {
	Commit(ctx context.Context, image models.Image, dryTemp, wetTemp float64) (models.CalibrationExemplar, error)
}

// Session owns one Machine and performs the effects its transitions request.
// It is safe for concurrent use.
type Session struct {
	ID string

	mu        sync.Mutex
	machine   Machine
	cancel    context.CancelFunc
	createdAt time.Time
	updatedAt time.Time

	committer ExemplarCommitter
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

// New creates an idle session.
func New(id string, committer ExemplarCommitter, clock clockwork.Clock, metrics *observability.Metrics) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()
	return &Session{
		ID:        id,
		machine:   Machine{State: StateIdle},
		createdAt: now,
		updatedAt: now,
		committer: committer,
		clock:     clock,
		metrics:   metrics,
	}
}

// Begin selects image and moves the session to StateAwaitingExtraction.
// The returned context is cancelled when the session is reset; the caller
// runs the extraction under it and reports back through Complete.
func (s *Session) Begin(image models.Image) (context.Context, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	effects, err := s.apply(ImageSelected{Image: image})
	if err != nil {
		return nil, 0, err
	}

	var attempt int
	for _, effect := range effects {
		if extract, ok := effect.(ExtractReading); ok {
			attempt = extract.Attempt
		}
	}
	if _, err := s.apply(ExtractionStarted{Attempt: attempt}); err != nil {
		return nil, 0, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	log.Info().
		Str("sessionID", s.ID).
		Int("attempt", attempt).
		Str("mimeType", image.MimeType).
		Int("bytes", len(image.Data)).
		Msg("Extraction started")
	return ctx, attempt, nil
}

// Complete delivers the outcome of an extraction attempt. Results for an
// attempt that was reset or superseded return ErrStaleAttempt and leave the
// session untouched.
func (s *Session) Complete(attempt int, reading models.Reading, extractErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if extractErr != nil {
		if _, err := s.apply(ExtractionFailed{Attempt: attempt, Err: extractErr}); err != nil {
			return err
		}
		s.releaseCancel()
		log.Warn().
			Err(extractErr).
			Str("sessionID", s.ID).
			Int("attempt", attempt).
			Str("kind", string(s.machine.Failure.Kind)).
			Msg("Extraction failed")
		return nil
	}

	if _, err := s.apply(ExtractionSucceeded{Attempt: attempt, Reading: reading}); err != nil {
		return err
	}
	s.releaseCancel()
	if s.machine.Inconsistency != nil {
		s.metrics.InconsistentReads.Inc()
	}
	if _, err := s.apply(ReviewStarted{}); err != nil {
		return err
	}

	log.Info().
		Str("sessionID", s.ID).
		Int("attempt", attempt).
		Str("reading", reading.String()).
		Msg("Extraction completed")
	return nil
}

// Edit replaces the values under review.
func (s *Session) Edit(dryTemp, wetTemp float64) (models.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasInconsistent := s.machine.Inconsistency != nil
	if _, err := s.apply(ReadingEdited{DryTemp: dryTemp, WetTemp: wetTemp}); err != nil {
		return models.SessionView{}, err
	}
	if !wasInconsistent && s.machine.Inconsistency != nil {
		s.metrics.InconsistentReads.Inc()
	}
	return s.view(), nil
}

// Commit stores the current photo and values as a calibration exemplar.
// The session lock is held for the whole write so a concurrent edit cannot
// change the values being committed.
func (s *Session) Commit(ctx context.Context) (models.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, effects, err := Transition(s.machine, CalibrationRequested{})
	if err != nil {
		if errors.Is(err, ErrCalibrationBlocked) {
			s.metrics.CalibrationCommits.WithLabelValues("blocked").Inc()
		}
		return models.SessionView{}, err
	}

	for _, effect := range effects {
		persist, ok := effect.(PersistExemplar)
		if !ok {
			continue
		}
		exemplar, err := s.committer.Commit(ctx, persist.Image, persist.DryTemp, persist.WetTemp)
		if err != nil {
			s.metrics.CalibrationCommits.WithLabelValues("error").Inc()
			return models.SessionView{}, fmt.Errorf("failed to commit calibration: %w", err)
		}
		if _, err := s.apply(CalibrationPersisted{Exemplar: exemplar}); err != nil {
			return models.SessionView{}, err
		}
		s.metrics.CalibrationCommits.WithLabelValues("success").Inc()
	}
	return s.view(), nil
}

// Reset returns the session to StateIdle, cancelling any extraction in
// flight. Its late result is discarded by Complete.
func (s *Session) Reset() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	effects, err := s.apply(Reset{})
	if err != nil {
		log.Error().Err(err).Str("sessionID", s.ID).Msg("Failed to reset session")
	}
	for _, effect := range effects {
		if cancel, ok := effect.(CancelExtraction); ok {
			log.Info().Str("sessionID", s.ID).Int("attempt", cancel.Attempt).Msg("Cancelling extraction")
		}
	}
	s.releaseCancel()
	return s.view()
}

// Machine returns a copy of the current state.
func (s *Session) Machine() Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine
}

// LastActive returns the time of the last state change.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// View returns the client-facing snapshot.
func (s *Session) View() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) apply(ev Event) ([]Effect, error) {
	next, effects, err := Transition(s.machine, ev)
	if err != nil {
		return nil, err
	}
	if next.State != s.machine.State {
		log.Debug().
			Str("sessionID", s.ID).
			Str("from", string(s.machine.State)).
			Str("to", string(next.State)).
			Str("event", ev.eventName()).
			Msg("Session transition")
	}
	s.machine = next
	s.updatedAt = s.clock.Now()
	return effects, nil
}

func (s *Session) releaseCancel() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) view() models.SessionView {
	m := s.machine
	v := models.SessionView{
		ID:         s.ID,
		State:      string(m.State),
		Attempt:    m.Attempt,
		Original:   m.Original,
		Reading:    m.Reading,
		Result:     m.Result,
		Corrected:  m.Corrected,
		Calibrated: m.Calibrated,
		Exemplar:   m.Exemplar,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if m.Image != nil {
		v.ImageMimeType = m.Image.MimeType
	}
	if m.Inconsistency != nil {
		v.ValidationError = m.Inconsistency.Error()
	}
	if m.Failure != nil {
		v.Failure = &models.FailureView{Kind: string(m.Failure.Kind), Message: m.Failure.Message}
	}
	return v
}

// Package calibration keeps the bounded set of user-confirmed exemplars that
// prime future photo readings.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/observability"
	"github.com/RMahshie/psychro/internal/repository"
	"github.com/RMahshie/psychro/internal/storage"
	"github.com/RMahshie/psychro/pkg/models"
)

// Capacity is the maximum number of exemplars kept. Older entries are
// evicted first.
const Capacity = 3

// ErrInvalidExemplar is returned by Add for an exemplar without id or image.
var ErrInvalidExemplar = errors.New("exemplar requires an id and an image reference")

// Store is the process-wide exemplar buffer. All mutations go through a
// single mutex and replace the persisted record as a whole.
type Store struct {
	mu      sync.Mutex
	buffer  []models.CalibrationExemplar
	repo    repository.CalibrationRepository
	images  storage.ImageStore
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewStore creates an empty store. Call Load to restore persisted state.
func NewStore(repo repository.CalibrationRepository, images storage.ImageStore, clock clockwork.Clock, metrics *observability.Metrics) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		buffer:  []models.CalibrationExemplar{},
		repo:    repo,
		images:  images,
		clock:   clock,
		metrics: metrics,
	}
}

// Load restores the buffer from the repository. A missing or unreadable
// record yields an empty buffer; it is never an error.
func (s *Store) Load(ctx context.Context) []models.CalibrationExemplar {
	s.mu.Lock()
	defer s.mu.Unlock()

	exemplars, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrCorruptRecord) {
			log.Warn().Err(err).Msg("Calibration record is corrupt, starting with an empty buffer")
		} else {
			log.Warn().Err(err).Msg("Failed to load calibration record, starting with an empty buffer")
		}
		exemplars = nil
	}
	if len(exemplars) > Capacity {
		exemplars = exemplars[len(exemplars)-Capacity:]
	}

	s.buffer = append([]models.CalibrationExemplar{}, exemplars...)
	s.metrics.ExemplarsStored.Set(float64(len(s.buffer)))
	log.Info().Int("exemplars", len(s.buffer)).Msg("Calibration buffer loaded")
	return s.snapshot()
}

// Add appends an exemplar, evicting the oldest one beyond Capacity, and
// persists the new buffer. The in-memory buffer only changes once the
// write succeeded.
func (s *Store) Add(ctx context.Context, exemplar models.CalibrationExemplar) ([]models.CalibrationExemplar, error) {
	if exemplar.ID == "" || exemplar.ImageRef == "" {
		return nil, ErrInvalidExemplar
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(s.snapshot(), exemplar)
	var evicted []models.CalibrationExemplar
	if len(next) > Capacity {
		evicted = next[:len(next)-Capacity]
		next = next[len(next)-Capacity:]
	}

	if err := s.repo.Replace(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to persist calibration buffer: %w", err)
	}
	s.buffer = next
	s.metrics.ExemplarsStored.Set(float64(len(s.buffer)))

	for _, e := range evicted {
		log.Info().Str("exemplarID", e.ID).Msg("Evicted oldest calibration exemplar")
		s.deleteImage(ctx, e.ImageRef)
	}

	return s.snapshot(), nil
}

// Commit stores the photo and records a new exemplar with the accepted
// values. The photo is removed again when the record cannot be written.
func (s *Store) Commit(ctx context.Context, image models.Image, dryTemp, wetTemp float64) (models.CalibrationExemplar, error) {
	id := uuid.New().String()
	key := storage.ExemplarKey(id, image.MimeType)

	if err := s.images.PutImage(ctx, key, image); err != nil {
		return models.CalibrationExemplar{}, fmt.Errorf("failed to store exemplar image: %w", err)
	}

	exemplar := models.CalibrationExemplar{
		ID:           id,
		Timestamp:    s.clock.Now().UnixMilli(),
		ImageRef:     key,
		CorrectedDry: dryTemp,
		CorrectedWet: wetTemp,
	}

	if _, err := s.Add(ctx, exemplar); err != nil {
		s.deleteImage(ctx, key)
		return models.CalibrationExemplar{}, err
	}

	log.Info().
		Str("exemplarID", id).
		Float64("dryTemp", dryTemp).
		Float64("wetTemp", wetTemp).
		Msg("Calibration exemplar committed")
	return exemplar, nil
}

// MostRecent returns up to k exemplars, newest first.
func (s *Store) MostRecent(k int) []models.CalibrationExemplar {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k > len(s.buffer) {
		k = len(s.buffer)
	}
	out := make([]models.CalibrationExemplar, 0, max(k, 0))
	for i := len(s.buffer) - 1; i >= 0 && len(out) < k; i-- {
		out = append(out, s.buffer[i])
	}
	return out
}

// All returns the buffer in insertion order.
func (s *Store) All() []models.CalibrationExemplar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Image fetches the stored photo of an exemplar.
func (s *Store) Image(ctx context.Context, exemplar models.CalibrationExemplar) (models.Image, error) {
	return s.images.GetImage(ctx, exemplar.ImageRef)
}

// Clear removes every exemplar and its photo.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear calibration buffer: %w", err)
	}
	for _, e := range s.buffer {
		s.deleteImage(ctx, e.ImageRef)
	}
	s.buffer = []models.CalibrationExemplar{}
	s.metrics.ExemplarsStored.Set(0)
	return nil
}

func (s *Store) snapshot() []models.CalibrationExemplar {
	return append([]models.CalibrationExemplar{}, s.buffer...)
}

func (s *Store) deleteImage(ctx context.Context, key string) {
	if err := s.images.DeleteImage(ctx, key); err != nil {
		log.Warn().Err(err).Str("imageRef", key).Msg("Failed to delete exemplar image")
	}
}

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager is the in-memory registry of measurement sessions.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	committer ExemplarCommitter
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

func NewManager(committer ExemplarCommitter, clock clockwork.Clock, metrics *observability.Metrics) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		committer: committer,
		clock:     clock,
		metrics:   metrics,
	}
}

// Create registers a new idle session.
func (m *Manager) Create() *Session {
	s := New(uuid.New().String(), m.committer, m.clock, m.metrics)

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.ActiveSessions.Set(float64(count))
	log.Info().Str("sessionID", s.ID).Msg("Session created")
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete resets and forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Reset()
	m.metrics.ActiveSessions.Set(float64(count))
	log.Info().Str("sessionID", id).Msg("Session deleted")
	return nil
}

// Sweep deletes sessions idle for longer than ttl and returns how many
// were removed.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := m.clock.Now().Add(-ttl)

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if err := m.Delete(id); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("ttl", ttl).Msg("Expired idle sessions")
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Sweep(ttl)
		}
	}
}

// Close resets every session, cancelling extractions still in flight.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Reset()
	}
	m.metrics.ActiveSessions.Set(0)
}

package simulator

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamcast/internal/domain"
)

// Session is one simulated stream, identified by the id handed out at
// creation. All status is derived from CreatedAt; the struct itself never
// changes after insertion.
type Session struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Quality   string    `json:"quality"`
	FileIndex int       `json:"fileIndex"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store owns the simulated session table.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Session

	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

type StoreOption func(*Store)

// WithClock replaces the wall clock, letting tests advance session age
// without sleeping.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(baseURL string, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]Session),
		baseURL:  baseURL,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the descriptor and registers a new session. Malformed
// descriptors are rejected synchronously and never enter the phase table.
func (s *Store) Create(source, quality string, fileIndex int) (Session, error) {
	if err := domain.ValidateSource(source); err != nil {
		return Session{}, err
	}
	if quality == "" {
		quality = domain.DefaultStartOptions().Quality
	}

	sess := Session{
		ID:        uuid.NewString(),
		Source:    source,
		Quality:   quality,
		FileIndex: fileIndex,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("session created", "id", sess.ID, "quality", sess.Quality)
	return sess, nil
}

// Snapshot returns the current status of a session, derived purely from
// its age.
func (s *Store) Snapshot(id string) (domain.StatusSnapshot, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.StatusSnapshot{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return SnapshotAt(s.now().Sub(sess.CreatedAt), s.StreamURL(id)), nil
}

// Delete removes a session. Unknown ids are an error so the HTTP layer can
// answer 404.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// List returns all sessions ordered oldest first.
func (s *Store) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Age returns how long a session has existed.
func (s *Store) Age(id string) (time.Duration, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return s.now().Sub(sess.CreatedAt), nil
}

// StreamURL is where the playable manifest for a session is served.
func (s *Store) StreamURL(id string) string {
	return s.baseURL + "/streams/" + id + "/master.m3u8"
}

// Sweep deletes every session older than maxAge and returns how many were
// reaped.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	reaped := 0
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			reaped++
		}
	}
	return reaped
}

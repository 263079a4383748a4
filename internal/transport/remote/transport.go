package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"streamcast/internal/domain"
	"streamcast/internal/domain/ports"
	"streamcast/internal/metrics"
)

const (
	defaultPollInterval = 2 * time.Second

	// After this many consecutive failed polls the session is declared
	// dead with a terminal error snapshot.
	maxConsecutivePollFailures = 5
)

// PollTransport drives sessions on the remote backend by polling its
// status endpoint at a fixed interval until a terminal phase is observed.
// There is never more than one in-flight status request per session.
type PollTransport struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[domain.StreamID]*pollSession
}

type pollSession struct {
	id     domain.StreamID
	cancel context.CancelFunc

	mu       sync.Mutex
	subs     map[int]ports.SnapshotFunc
	nextSub  int
	last     domain.StatusSnapshot
	hasLast  bool
	terminal bool
	paused   bool
}

type TransportOption func(*PollTransport)

// WithPollInterval overrides the default 2s polling cadence.
func WithPollInterval(d time.Duration) TransportOption {
	return func(t *PollTransport) {
		t.interval = d
	}
}

func NewPollTransport(client *Client, logger *slog.Logger, opts ...TransportOption) *PollTransport {
	t := &PollTransport{
		client:   client,
		interval: defaultPollInterval,
		logger:   logger,
		sessions: make(map[domain.StreamID]*pollSession),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *PollTransport) Kind() domain.TransportKind {
	return domain.TransportRemote
}

func (t *PollTransport) Available(ctx context.Context) error {
	return t.client.Health(ctx)
}

func (t *PollTransport) Start(ctx context.Context, source string, opts domain.StartOptions) (domain.StreamID, error) {
	id, err := t.client.StartStream(ctx, source, opts)
	if err != nil {
		return "", err
	}

	sess := &pollSession{
		id:   domain.StreamID(id),
		subs: make(map[int]ports.SnapshotFunc),
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	t.mu.Lock()
	t.sessions[sess.id] = sess
	t.mu.Unlock()

	go t.poll(loopCtx, sess)

	t.logger.Info("remote session started", "id", id)
	return sess.id, nil
}

// poll issues the first status request immediately, then one per interval.
// Requests are sequential, so a slow backend naturally stretches the
// cadence instead of stacking requests.
func (t *PollTransport) poll(ctx context.Context, sess *pollSession) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	failures := 0
	for {
		metrics.PollRequestsTotal.Inc()
		snap, err := t.client.Status(ctx, string(sess.id))
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, domain.ErrNotFound):
			// The backend forgot the session (reaped or deleted
			// elsewhere). Implicit clean termination.
			t.finish(sess, domain.StatusSnapshot{
				Phase:   domain.PhaseStopped,
				Message: "Stream no longer exists",
			})
			return
		case err != nil:
			metrics.PollFailuresTotal.Inc()
			failures++
			t.logger.Warn("status poll failed", "id", sess.id, "attempt", failures, "error", err)
			if failures >= maxConsecutivePollFailures {
				t.finish(sess, domain.StatusSnapshot{
					Phase:       domain.PhaseError,
					Message:     "Lost contact with streaming backend",
					ErrorDetail: err.Error(),
				})
				return
			}
		default:
			failures = 0
			sess.deliver(snap)
			if snap.Phase.Terminal() {
				t.remove(sess.id)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// finish delivers one terminal snapshot and retires the session.
func (t *PollTransport) finish(sess *pollSession, snap domain.StatusSnapshot) {
	sess.deliver(snap)
	t.remove(sess.id)
}

func (t *PollTransport) remove(id domain.StreamID) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

func (t *PollTransport) lookup(id domain.StreamID) *pollSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

func (t *PollTransport) Subscribe(id domain.StreamID, fn ports.SnapshotFunc) (func(), error) {
	sess := t.lookup(id)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	sess.mu.Lock()
	key := sess.nextSub
	sess.nextSub++
	sess.subs[key] = fn
	replay, hasReplay := sess.last, sess.hasLast
	sess.mu.Unlock()

	// A poll may already have landed before the caller subscribed.
	if hasReplay {
		fn(replay)
	}

	return func() {
		sess.mu.Lock()
		delete(sess.subs, key)
		sess.mu.Unlock()
	}, nil
}

// Stop tears the session down on the backend. Stopping an unknown or
// already-stopped handle is a no-op.
func (t *PollTransport) Stop(ctx context.Context, id domain.StreamID) error {
	sess := t.lookup(id)
	if sess == nil {
		return nil
	}
	sess.cancel()

	if err := t.client.StopStream(ctx, string(id)); err != nil && !errors.Is(err, domain.ErrNotFound) {
		t.logger.Warn("remote stop failed", "id", id, "error", err)
	}
	t.finish(sess, domain.StatusSnapshot{
		Phase:   domain.PhaseStopped,
		Message: "Stream stopped",
	})
	return nil
}

// Pause suspends snapshot delivery; the backend keeps its own clock
// running. A paused snapshot is emitted so subscribers see the edge.
func (t *PollTransport) Pause(ctx context.Context, id domain.StreamID) error {
	sess := t.lookup(id)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	already := sess.paused
	sess.paused = true
	last := sess.last
	sess.mu.Unlock()
	if already {
		return nil
	}

	last.Phase = domain.PhasePaused
	last.Message = "Stream paused"
	sess.deliver(last)
	return nil
}

// Resume lifts the suspension; the next poll delivers the real phase.
// Resuming a session that is not paused is a no-op.
func (t *PollTransport) Resume(ctx context.Context, id domain.StreamID) error {
	sess := t.lookup(id)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	sess.paused = false
	sess.mu.Unlock()
	return nil
}

// VideoCandidates is not supported by the remote backend; file selection
// is fixed at start time via StartOptions.
func (t *PollTransport) VideoCandidates(ctx context.Context, id domain.StreamID) ([]domain.VideoCandidate, error) {
	return nil, fmt.Errorf("%w: remote backend fixes the file at start", domain.ErrUnsupported)
}

func (t *PollTransport) SelectFile(ctx context.Context, id domain.StreamID, index int) error {
	return fmt.Errorf("%w: remote backend fixes the file at start", domain.ErrUnsupported)
}

// deliver fans the snapshot out to subscribers in registration order. It
// is only ever called from the single poll goroutine (or a serialized
// control call), so per-subscriber ordering holds.
func (s *pollSession) deliver(snap domain.StatusSnapshot) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	if s.paused && snap.Phase != domain.PhasePaused && !snap.Phase.Terminal() {
		s.mu.Unlock()
		return
	}
	s.last = snap
	s.hasLast = true
	if snap.Phase.Terminal() {
		s.terminal = true
	}
	fns := make([]ports.SnapshotFunc, 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Package session owns the single active stream session. The controller
// normalizes both transports into one snapshot stream, guards start
// attempts with a bounded retry budget, and surfaces terminal failures as
// deduplicated notifications.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"streamcast/internal/domain"
	"streamcast/internal/domain/ports"
	"streamcast/internal/metrics"
)

// Notification is an actionable, user-facing failure report. At most one is
// emitted per session.
type Notification struct {
	SessionID      domain.StreamID `json:"sessionId,omitempty"`
	Message        string          `json:"message"`
	Detail         string          `json:"detail,omitempty"`
	RetryAvailable bool            `json:"retryAvailable"`
}

type NotifyFunc func(Notification)

type ControllerOption func(*Controller)

func WithNotifier(fn NotifyFunc) ControllerOption {
	return func(c *Controller) { c.notify = fn }
}

func WithRetryPolicy(p *RetryPolicy) ControllerOption {
	return func(c *Controller) { c.retry = p }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

type activeSession struct {
	session     domain.StreamSession
	transport   ports.Transport
	unsubscribe func()
	totalBytes  int64
}

// Controller is the single entry point for stream consumers. At most one
// session is active at a time; starting a new one awaits the stop of its
// predecessor so that snapshots from the two never interleave.
type Controller struct {
	kind       domain.TransportKind
	transports map[domain.TransportKind]ports.Transport
	retry      *RetryPolicy
	logger     *slog.Logger
	notify     NotifyFunc
	now        func() time.Time

	mu          sync.Mutex
	active      *activeSession
	last        domain.StatusSnapshot
	hasLast     bool
	lastSession domain.StreamSession
	notified    bool
	subs        map[int]ports.SnapshotFunc
	nextSub     int
}

func NewController(kind domain.TransportKind, transports map[domain.TransportKind]ports.Transport, logger *slog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		kind:       kind,
		transports: transports,
		retry:      NewRetryPolicy(),
		logger:     logger,
		notify:     func(Notification) {},
		now:        time.Now,
		subs:       make(map[int]ports.SnapshotFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start validates the source, tears down any active session, and begins a
// new one on the configured transport. Validation and transport
// availability failures return synchronously and never consume retry
// budget.
func (c *Controller) Start(ctx context.Context, source string, opts domain.StartOptions) (domain.StreamID, error) {
	if err := domain.ValidateSource(source); err != nil {
		return "", err
	}
	c.retry.Remember(source, opts)
	return c.begin(ctx, source, opts)
}

// Retry replays the most recent start request. The call itself is the user
// action that spends one unit of retry budget.
func (c *Controller) Retry(ctx context.Context) (domain.StreamID, error) {
	source, opts, ok := c.retry.Request()
	if !ok {
		return "", fmt.Errorf("%w: nothing to retry", domain.ErrNotFound)
	}
	c.retry.Retry()
	metrics.RetryAttemptsTotal.Inc()
	return c.begin(ctx, source, opts)
}

func (c *Controller) begin(ctx context.Context, source string, opts domain.StartOptions) (domain.StreamID, error) {
	transport, ok := c.transports[c.kind]
	if !ok {
		return "", fmt.Errorf("%w: no %s transport configured", domain.ErrTransportUnavailable, c.kind)
	}
	if err := transport.Available(ctx); err != nil {
		return "", err
	}

	// The old session must be fully stopped before the new one produces
	// its first snapshot.
	if err := c.Stop(ctx); err != nil {
		c.logger.Warn("stopping previous session", "error", err)
	}

	id, err := transport.Start(ctx, source, opts)
	if err != nil {
		metrics.SessionStartsTotal.WithLabelValues(string(c.kind), "error").Inc()
		retryable := c.retry.OnFailure()
		c.logger.Error("session start failed", "source", source, "error", err, "retryAvailable", retryable)
		c.notify(Notification{
			Message:        "Failed to start stream",
			Detail:         err.Error(),
			RetryAvailable: retryable,
		})
		return "", fmt.Errorf("%w: %v", domain.ErrStartFailed, err)
	}

	sess := &activeSession{
		session: domain.StreamSession{
			ID:        id,
			Source:    source,
			Transport: transport.Kind(),
			CreatedAt: c.now(),
		},
		transport: transport,
	}

	c.mu.Lock()
	c.active = sess
	c.last = domain.StatusSnapshot{}
	c.hasLast = false
	c.lastSession = sess.session
	c.notified = false
	c.mu.Unlock()

	unsubscribe, err := transport.Subscribe(id, func(snap domain.StatusSnapshot) {
		c.publish(sess, snap)
	})
	if err != nil {
		c.mu.Lock()
		if c.active == sess {
			c.active = nil
		}
		c.mu.Unlock()
		_ = transport.Stop(ctx, id)
		return "", fmt.Errorf("%w: subscribe: %v", domain.ErrStartFailed, err)
	}
	c.mu.Lock()
	if c.active == sess {
		sess.unsubscribe = unsubscribe
	}
	c.mu.Unlock()

	metrics.SessionStartsTotal.WithLabelValues(string(c.kind), "ok").Inc()
	metrics.ActiveSessions.Set(1)
	c.logger.Info("session started", "id", id, "transport", transport.Kind())
	return id, nil
}

// publish normalizes one transport snapshot and fans it out to the
// controller's subscribers.
func (c *Controller) publish(sess *activeSession, snap domain.StatusSnapshot) {
	c.mu.Lock()
	if c.active != sess && c.lastSession.ID != sess.session.ID {
		c.mu.Unlock()
		return
	}

	if snap.TotalBytes > 0 {
		sess.totalBytes = snap.TotalBytes
	}
	if snap.EtaSeconds < 0 && sess.totalBytes > 0 && !snap.Phase.Terminal() {
		snap.EtaSeconds = domain.EstimateEta(snap, sess.totalBytes)
	}
	if snap.StreamURL != "" {
		sess.session.StreamURL = snap.StreamURL
	}
	sess.session.Status = snap
	c.last = snap
	c.hasLast = true
	c.lastSession = sess.session

	terminal := snap.Phase.Terminal()
	var notification *Notification
	if snap.Phase == domain.PhaseError && !c.notified {
		c.notified = true
		notification = &Notification{
			SessionID:      sess.session.ID,
			Message:        "Stream failed",
			Detail:         snap.ErrorDetail,
			RetryAvailable: false,
		}
	}
	if terminal && c.active == sess {
		if sess.unsubscribe != nil {
			sess.unsubscribe()
			sess.unsubscribe = nil
		}
		c.active = nil
	}

	fns := make([]ports.SnapshotFunc, 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	if snap.Phase == domain.PhaseDownloading {
		c.retry.OnSuccess()
	}
	metrics.DownloadSpeedBytes.Set(float64(snap.DownloadRate))
	metrics.UploadSpeedBytes.Set(float64(snap.UploadRate))
	metrics.PeersConnected.Set(float64(snap.Peers))
	if terminal {
		metrics.ActiveSessions.Set(0)
	}
	if notification != nil {
		c.notify(*notification)
	}
	for _, fn := range fns {
		fn(snap)
	}
}

// Subscribe registers a snapshot consumer. The most recent snapshot, if
// any, is replayed synchronously so late subscribers see current state.
func (c *Controller) Subscribe(fn ports.SnapshotFunc) func() {
	c.mu.Lock()
	key := c.nextSub
	c.nextSub++
	c.subs[key] = fn
	replay, hasReplay := c.last, c.hasLast
	c.mu.Unlock()

	if hasReplay {
		fn(replay)
	}
	return func() {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
	}
}

// Status returns the last snapshot and the session it belongs to. It stays
// queryable after a session terminates, until a new start or an explicit
// Stop.
func (c *Controller) Status() (domain.StreamSession, domain.StatusSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return c.active.session, c.last, c.hasLast
	}
	if c.hasLast {
		return c.lastSession, c.last, true
	}
	return domain.StreamSession{}, domain.StatusSnapshot{}, false
}

// Active reports the current non-terminal session, if any.
func (c *Controller) Active() (domain.StreamSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return domain.StreamSession{}, false
	}
	return c.active.session, true
}

// Stop tears down the active session and clears the queryable snapshot.
// Safe to call with no active session.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()

	var err error
	if sess != nil {
		// The transport delivers the terminal stopped snapshot before
		// returning, which retires the subscription via publish.
		err = sess.transport.Stop(ctx, sess.session.ID)
	}

	c.mu.Lock()
	if c.active == sess {
		c.active = nil
	}
	c.last = domain.StatusSnapshot{}
	c.hasLast = false
	c.lastSession = domain.StreamSession{}
	c.mu.Unlock()

	if sess != nil {
		metrics.ActiveSessions.Set(0)
	}
	return err
}

// Pause delegates to the active transport. A no-op without a session.
func (c *Controller) Pause(ctx context.Context) error {
	sess, ok := c.activeSess()
	if !ok {
		return nil
	}
	return sess.transport.Pause(ctx, sess.session.ID)
}

// Resume delegates to the active transport. A no-op without a session or
// when not paused.
func (c *Controller) Resume(ctx context.Context) error {
	sess, ok := c.activeSess()
	if !ok {
		return nil
	}
	return sess.transport.Resume(ctx, sess.session.ID)
}

// VideoCandidates lists the playable files of the active session.
func (c *Controller) VideoCandidates(ctx context.Context) ([]domain.VideoCandidate, error) {
	sess, ok := c.activeSess()
	if !ok {
		return nil, fmt.Errorf("%w: no active session", domain.ErrNotFound)
	}
	return sess.transport.VideoCandidates(ctx, sess.session.ID)
}

// SelectFile switches the active session to another file.
func (c *Controller) SelectFile(ctx context.Context, index int) error {
	sess, ok := c.activeSess()
	if !ok {
		return fmt.Errorf("%w: no active session", domain.ErrNotFound)
	}
	return sess.transport.SelectFile(ctx, sess.session.ID, index)
}

func (c *Controller) activeSess() (*activeSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, false
	}
	return c.active, true
}

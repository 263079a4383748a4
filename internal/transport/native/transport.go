// Package native adapts the in-process host engine to the transport
// contract. Its only job is translation: each raw engine event maps 1:1
// into a status snapshot.
package native

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"streamcast/internal/domain"
	"streamcast/internal/domain/ports"
)

// EventDrivenTransport wraps a host engine that pushes asynchronous events.
// The engine runs one stream at a time, so the transport tracks a single
// current session.
type EventDrivenTransport struct {
	engine ports.HostEngine
	logger *slog.Logger

	mu      sync.Mutex
	current *nativeSession
}

type nativeSession struct {
	id domain.StreamID

	mu         sync.Mutex
	subs       map[int]ports.SnapshotFunc
	nextSub    int
	last       domain.StatusSnapshot
	hasLast    bool
	terminal   bool
	ready      bool
	paused     bool
	totalBytes int64
	streamURL  string
}

func NewEventDrivenTransport(engine ports.HostEngine, logger *slog.Logger) *EventDrivenTransport {
	t := &EventDrivenTransport{engine: engine, logger: logger}
	if engine != nil {
		go t.consume()
	}
	return t
}

func (t *EventDrivenTransport) Kind() domain.TransportKind {
	return domain.TransportNative
}

// Available fails when the surrounding application never initialized the
// host engine.
func (t *EventDrivenTransport) Available(ctx context.Context) error {
	if t.engine == nil {
		return fmt.Errorf("%w: host engine not initialized", domain.ErrTransportUnavailable)
	}
	return nil
}

func (t *EventDrivenTransport) Start(ctx context.Context, source string, opts domain.StartOptions) (domain.StreamID, error) {
	if err := t.Available(ctx); err != nil {
		return "", err
	}

	if err := t.engine.Start(ctx, source, opts); err != nil {
		return "", err
	}

	sess := &nativeSession{
		id:   domain.StreamID(uuid.NewString()),
		subs: make(map[int]ports.SnapshotFunc),
	}
	t.mu.Lock()
	t.current = sess
	t.mu.Unlock()

	t.logger.Info("native session started", "id", sess.id)
	return sess.id, nil
}

// consume translates the engine's event stream into snapshots for the
// lifetime of the transport. Events arriving with no session (e.g. the
// stopped event of a superseded stream) are dropped.
func (t *EventDrivenTransport) consume() {
	for ev := range t.engine.Events() {
		t.mu.Lock()
		sess := t.current
		t.mu.Unlock()
		if sess == nil {
			continue
		}

		snap, ok := sess.translate(ev)
		if !ok {
			continue
		}
		sess.deliver(snap)
		if snap.Phase.Terminal() && snap.Phase != domain.PhaseReady {
			t.mu.Lock()
			if t.current == sess {
				t.current = nil
			}
			t.mu.Unlock()
		}
	}
}

// translate maps one engine event into the shared snapshot vocabulary.
// Progress arriving after ready folds into seeding so the phase never
// regresses backward from ready.
func (s *nativeSession) translate(ev ports.EngineEvent) (domain.StatusSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case ports.EngineMetadata:
		s.totalBytes = ev.TotalBytes
		return domain.StatusSnapshot{
			Phase:      domain.PhaseConnecting,
			EtaSeconds: domain.EtaUnknown,
			Message:    fmt.Sprintf("Metadata received: %s (%d files)", ev.Name, ev.FileCount),
			TotalBytes: ev.TotalBytes,
		}, true

	case ports.EngineReady:
		s.ready = true
		s.streamURL = ev.StreamURL
		snap := s.last
		snap.Phase = domain.PhaseReady
		snap.EtaSeconds = domain.EtaUnknown
		snap.Message = "Stream ready to play"
		snap.StreamURL = ev.StreamURL
		snap.TotalBytes = s.totalBytes
		return snap, true

	case ports.EngineProgress:
		phase := domain.PhaseDownloading
		if s.ready {
			phase = domain.PhaseSeeding
		}
		snap := domain.StatusSnapshot{
			Phase:        phase,
			Progress:     ev.Progress,
			DownloadRate: ev.DownloadRate,
			UploadRate:   ev.UploadRate,
			Peers:        ev.Peers,
			EtaSeconds:   domain.EtaUnknown,
			Message:      fmt.Sprintf("Downloading: %d%%", int(ev.Progress*100)),
			StreamURL:    s.streamURL,
			TotalBytes:   s.totalBytes,
		}
		if s.totalBytes > 0 {
			snap.EtaSeconds = domain.EstimateEta(snap, s.totalBytes)
		}
		if phase == domain.PhaseSeeding {
			snap.Message = "Seeding"
		}
		return snap, true

	case ports.EngineError:
		return domain.StatusSnapshot{
			Phase:       domain.PhaseError,
			EtaSeconds:  domain.EtaUnknown,
			Message:     "Stream failed",
			ErrorDetail: ev.ErrorDetail,
			TotalBytes:  s.totalBytes,
		}, true

	case ports.EngineStopped:
		return domain.StatusSnapshot{
			Phase:      domain.PhaseStopped,
			EtaSeconds: domain.EtaUnknown,
			Message:    "Stream stopped",
		}, true
	}
	return domain.StatusSnapshot{}, false
}

func (t *EventDrivenTransport) lookup(id domain.StreamID) *nativeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || t.current.id != id {
		return nil
	}
	return t.current
}

func (t *EventDrivenTransport) Subscribe(id domain.StreamID, fn ports.SnapshotFunc) (func(), error) {
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

	if hasReplay {
		fn(replay)
	}
	return func() {
		sess.mu.Lock()
		delete(sess.subs, key)
		sess.mu.Unlock()
	}, nil
}

// Stop detaches the session first so that no late engine event can reach
// it or a successor, then synthesizes the terminal stopped snapshot itself.
func (t *EventDrivenTransport) Stop(ctx context.Context, id domain.StreamID) error {
	sess := t.lookup(id)
	if sess == nil {
		return nil
	}
	t.mu.Lock()
	if t.current == sess {
		t.current = nil
	}
	t.mu.Unlock()

	err := t.engine.Stop(ctx)
	sess.deliver(domain.StatusSnapshot{
		Phase:      domain.PhaseStopped,
		EtaSeconds: domain.EtaUnknown,
		Message:    "Stream stopped",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngine, err)
	}
	return nil
}

func (t *EventDrivenTransport) Pause(ctx context.Context, id domain.StreamID) error {
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

	if err := t.engine.Pause(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngine, err)
	}
	last.Phase = domain.PhasePaused
	last.Message = "Stream paused"
	sess.deliver(last)
	return nil
}

func (t *EventDrivenTransport) Resume(ctx context.Context, id domain.StreamID) error {
	sess := t.lookup(id)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	paused := sess.paused
	sess.paused = false
	sess.mu.Unlock()
	if !paused {
		return nil
	}

	if err := t.engine.Resume(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngine, err)
	}
	return nil
}

func (t *EventDrivenTransport) VideoCandidates(ctx context.Context, id domain.StreamID) ([]domain.VideoCandidate, error) {
	if t.lookup(id) == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return t.engine.Files(ctx)
}

func (t *EventDrivenTransport) SelectFile(ctx context.Context, id domain.StreamID, index int) error {
	if t.lookup(id) == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return t.engine.SelectFile(ctx, index)
}

func (s *nativeSession) deliver(snap domain.StatusSnapshot) {
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
	if snap.Phase.Terminal() && snap.Phase != domain.PhaseReady {
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

// Package anacrolix implements the in-process host engine behind the
// native transport on top of the anacrolix/torrent client.
package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"

	"streamcast/internal/domain"
	"streamcast/internal/domain/ports"
	"streamcast/internal/storage/memory"
)

// defaultMaxConns balances peer connections against resource usage and is
// restored when resuming a hard-paused stream.
const defaultMaxConns = 35

const (
	// addMagnetTimeout caps the time we wait for the anacrolix client to
	// accept a magnet link. AddMagnet can block on an internal client
	// mutex while metadata for another torrent resolves.
	addMagnetTimeout = 10 * time.Second

	// metadataWaitTimeout bounds how long a zero-peer magnet may sit
	// without metadata before the start is declared failed.
	metadataWaitTimeout = 2 * time.Minute

	progressInterval = time.Second
)

type Config struct {
	DataDir string

	// AdvertiseURL is the externally reachable base URL of the playback
	// endpoint announced in the ready event.
	AdvertiseURL string

	MaxConns        int
	MaxDownloadRate int64 // bytes/sec, 0 = unlimited
	MaxUploadRate   int64 // bytes/sec, 0 = unlimited

	// MemoryBufferBytes, when positive, keeps pieces in a bounded
	// in-memory store instead of writing them straight to DataDir.
	// Evicted pieces spill into DataDir so they survive restarts.
	MemoryBufferBytes int64
}

// Engine runs at most one stream at a time and pushes raw engine events on
// a single channel until a terminal event retires the stream.
type Engine struct {
	client       *torrent.Client
	logger       *slog.Logger
	advertiseURL string
	maxConns     int

	mu      sync.Mutex
	current *stream

	events chan ports.EngineEvent
}

type stream struct {
	torrent   *torrent.Torrent
	fileIndex int
	cancel    context.CancelFunc
	done      chan struct{}

	prevSample speedSample
	ready      bool
}

func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	if cfg.MemoryBufferBytes > 0 {
		provider := memory.NewProvider(
			memory.WithCapacity(cfg.MemoryBufferBytes),
			memory.WithSpillDir(cfg.DataDir),
		)
		clientConfig.DefaultStorage = storage.NewResourcePieces(provider)
	}
	if cfg.MaxDownloadRate > 0 {
		clientConfig.DownloadRateLimiter = rate.NewLimiter(rate.Limit(cfg.MaxDownloadRate), int(cfg.MaxDownloadRate))
	}
	if cfg.MaxUploadRate > 0 {
		clientConfig.UploadRateLimiter = rate.NewLimiter(rate.Limit(cfg.MaxUploadRate), int(cfg.MaxUploadRate))
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return &Engine{
		client:       client,
		logger:       logger,
		advertiseURL: cfg.AdvertiseURL,
		maxConns:     maxConns,
		events:       make(chan ports.EngineEvent, 64),
	}, nil
}

func (e *Engine) Events() <-chan ports.EngineEvent {
	return e.events
}

// Start adds the magnet and spawns the event loop for it. Any previously
// active stream is stopped first; the engine owns one stream at a time.
func (e *Engine) Start(ctx context.Context, source string, opts domain.StartOptions) error {
	if e.client == nil {
		return fmt.Errorf("%w: engine not initialized", domain.ErrTransportUnavailable)
	}
	if err := domain.ValidateSource(source); err != nil {
		return err
	}

	if err := e.Stop(ctx); err != nil {
		return err
	}

	t, err := e.addMagnet(ctx, source)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStartFailed, err)
	}

	maxConns := e.maxConns
	if opts.MaxPeers > 0 && opts.MaxPeers < maxConns {
		maxConns = opts.MaxPeers
	}
	t.SetMaxEstablishedConns(maxConns)

	loopCtx, cancel := context.WithCancel(context.Background())
	st := &stream{
		torrent:   t,
		fileIndex: -1,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	e.mu.Lock()
	e.current = st
	e.mu.Unlock()

	go e.run(loopCtx, st, opts)
	return nil
}

// addMagnet runs AddMagnet with a timeout so a busy client never blocks the
// caller indefinitely. A torrent materializing after the timeout is dropped.
func (e *Engine) addMagnet(ctx context.Context, source string) (*torrent.Torrent, error) {
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, err := e.client.AddMagnet(source)
		ch <- addResult{t, err}
	}()

	select {
	case res := <-ch:
		return res.t, res.err
	case <-time.After(addMagnetTimeout):
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, ctx.Err()
	}
}

// run waits for metadata, announces the playable endpoint and then emits
// periodic progress until the stream is cancelled.
func (e *Engine) run(ctx context.Context, st *stream, opts domain.StartOptions) {
	defer close(st.done)
	t := st.torrent

	select {
	case <-t.GotInfo():
	case <-time.After(metadataWaitTimeout):
		e.emit(ports.EngineEvent{Kind: ports.EngineError, ErrorDetail: "timed out waiting for metadata"})
		e.retire(st)
		return
	case <-ctx.Done():
		return
	}

	candidates := mapCandidates(t)
	index := opts.FileIndex
	if index < 0 || index >= len(candidates) {
		picked, ok := domain.PickLargestPlayable(candidates)
		if !ok {
			e.emit(ports.EngineEvent{Kind: ports.EngineError, ErrorDetail: "no playable video file in resource"})
			e.retire(st)
			return
		}
		index = picked
	}
	e.selectFile(st, index)

	e.emit(ports.EngineEvent{
		Kind:         ports.EngineMetadata,
		Name:         t.Name(),
		TotalBytes:   t.Length(),
		FileCount:    len(candidates),
		SelectedFile: index,
	})

	e.emit(ports.EngineEvent{
		Kind:      ports.EngineReady,
		StreamURL: e.advertiseURL + "/stream/video",
	})
	st.ready = true

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emitProgress(st)
		}
	}
}

func (e *Engine) emitProgress(st *stream) {
	t := st.torrent
	length := t.Length()
	completed := t.BytesCompleted()
	progress := float64(0)
	if length > 0 {
		progress = float64(completed) / float64(length)
	}

	stats := t.Stats()
	download, upload := st.sampleSpeed(stats, time.Now().UTC())

	e.emit(ports.EngineEvent{
		Kind:         ports.EngineProgress,
		Progress:     progress,
		DownloadRate: download,
		UploadRate:   upload,
		Peers:        stats.ActivePeers,
		Downloaded:   completed,
	})
}

// emit never drops lifecycle events. Progress events are best effort: if the
// consumer lags behind a full buffer, stale samples are discarded.
func (e *Engine) emit(ev ports.EngineEvent) {
	if ev.Kind == ports.EngineProgress {
		select {
		case e.events <- ev:
		default:
		}
		return
	}
	e.events <- ev
}

// Stop tears down the active stream. The caller announces termination;
// EngineStopped is reserved for engine-initiated shutdowns. Stopping an
// idle engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	st := e.current
	e.current = nil
	e.mu.Unlock()
	if st == nil {
		return nil
	}

	st.cancel()
	select {
	case <-st.done:
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}

	st.torrent.Drop()
	freeOSMemory()
	return nil
}

// retire drops a stream that failed before reaching ready. The terminal
// event has already been emitted by the caller.
func (e *Engine) retire(st *stream) {
	e.mu.Lock()
	if e.current == st {
		e.current = nil
	}
	e.mu.Unlock()
	st.torrent.Drop()
	freeOSMemory()
}

// Pause disconnects all peers and disallows data transfer. Pausing an idle
// or already-paused stream is a no-op.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	st := e.current
	e.mu.Unlock()
	if st == nil {
		return nil
	}
	t := st.torrent
	t.DisallowDataDownload()
	t.DisallowDataUpload()
	t.SetMaxEstablishedConns(0)
	return nil
}

// Resume re-enables data transfer and peer connections.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	st := e.current
	e.mu.Unlock()
	if st == nil {
		return nil
	}
	t := st.torrent
	t.SetMaxEstablishedConns(e.maxConns)
	t.AllowDataUpload()
	t.AllowDataDownload()
	return nil
}

func (e *Engine) Files(ctx context.Context) ([]domain.VideoCandidate, error) {
	st, err := e.activeStream()
	if err != nil {
		return nil, err
	}
	if !torrentInfoReady(st.torrent) {
		return nil, errors.New("metadata not yet available")
	}
	return mapCandidates(st.torrent), nil
}

func (e *Engine) SelectFile(ctx context.Context, index int) error {
	st, err := e.activeStream()
	if err != nil {
		return err
	}
	if !torrentInfoReady(st.torrent) {
		return errors.New("metadata not yet available")
	}
	if index < 0 || index >= len(st.torrent.Files()) {
		return fmt.Errorf("invalid file index %d", index)
	}
	e.selectFile(st, index)
	return nil
}

// selectFile focuses download bandwidth on one file: the selection
// gets normal priority, everything else none.
func (e *Engine) selectFile(st *stream, index int) {
	files := st.torrent.Files()
	for i, f := range files {
		if i == index {
			f.SetPriority(torrent.PiecePriorityNormal)
		} else {
			f.SetPriority(torrent.PiecePriorityNone)
		}
	}
	e.mu.Lock()
	st.fileIndex = index
	e.mu.Unlock()
}

// OpenVideo returns a seekable reader over the selected file for the
// playback endpoint.
func (e *Engine) OpenVideo(ctx context.Context) (ports.StreamReader, string, int64, error) {
	st, err := e.activeStream()
	if err != nil {
		return nil, "", 0, err
	}
	if !torrentInfoReady(st.torrent) {
		return nil, "", 0, fmt.Errorf("%w: metadata not yet available", domain.ErrNotFound)
	}

	e.mu.Lock()
	index := st.fileIndex
	e.mu.Unlock()
	files := st.torrent.Files()
	if index < 0 || index >= len(files) {
		return nil, "", 0, fmt.Errorf("%w: no file selected", domain.ErrNotFound)
	}

	file := files[index]
	// The reader stays in blocking mode. A responsive reader returns EOF
	// over pieces that have not arrived yet, which truncates direct HTTP
	// playback mid-stream; blocking reads let ServeContent wait for data.
	reader := file.NewReader()
	return reader, file.DisplayPath(), file.Length(), nil
}

func (e *Engine) activeStream() (*stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil, fmt.Errorf("%w: no active stream", domain.ErrNotFound)
	}
	return e.current, nil
}

func (e *Engine) Close() error {
	_ = e.Stop(context.Background())
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

func mapCandidates(t *torrent.Torrent) []domain.VideoCandidate {
	if !torrentInfoReady(t) {
		return nil
	}
	files := t.Files()
	out := make([]domain.VideoCandidate, 0, len(files))
	for i, f := range files {
		out = append(out, domain.VideoCandidate{
			Index:     i,
			Name:      f.DisplayPath(),
			SizeBytes: f.Length(),
		})
	}
	return out
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

type speedSample struct {
	at           time.Time
	bytesRead    int64
	bytesWritten int64
}

func (st *stream) sampleSpeed(stats torrent.TorrentStats, now time.Time) (int64, int64) {
	currentRead := stats.BytesReadUsefulData.Int64()
	currentWritten := stats.BytesWrittenData.Int64()

	prev := st.prevSample
	st.prevSample = speedSample{at: now, bytesRead: currentRead, bytesWritten: currentWritten}

	if prev.at.IsZero() {
		return 0, 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}

	deltaRead := currentRead - prev.bytesRead
	deltaWritten := currentWritten - prev.bytesWritten
	if deltaRead < 0 {
		deltaRead = 0
	}
	if deltaWritten < 0 {
		deltaWritten = 0
	}
	return int64(float64(deltaRead) / dt), int64(float64(deltaWritten) / dt)
}

// freeOSMemory returns freed memory to the OS promptly after a stream is
// dropped. Without this the GC may hold freed memory long enough to OOM
// memory-constrained hosts.
func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

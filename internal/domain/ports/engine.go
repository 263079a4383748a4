package ports

import (
	"context"

	"streamcast/internal/domain"
)

// EngineEventKind enumerates the five event kinds a host engine emits.
type EngineEventKind string

const (
	EngineMetadata EngineEventKind = "metadata" // Resource structure known.
	EngineReady    EngineEventKind = "ready"    // Playable HTTP endpoint exists.
	EngineProgress EngineEventKind = "progress" // Periodic counters.
	EngineError    EngineEventKind = "error"    // Terminal failure.
	EngineStopped  EngineEventKind = "stopped"  // Terminal, user- or system-initiated.
)

// EngineEvent is one raw host-engine event before translation into the
// shared snapshot vocabulary.
type EngineEvent struct {
	Kind EngineEventKind

	// Metadata fields, set when Kind == EngineMetadata.
	Name         string
	TotalBytes   int64
	FileCount    int
	SelectedFile int

	// Set when Kind == EngineReady.
	StreamURL string

	// Progress fields, set when Kind == EngineProgress.
	Progress     float64
	DownloadRate int64
	UploadRate   int64
	Peers        int
	Downloaded   int64

	// Set when Kind == EngineError.
	ErrorDetail string
}

// HostEngine is the in-process transfer engine behind the native transport.
// It runs at most one stream at a time and pushes events on the channel
// returned by Events until a terminal event is emitted.
type HostEngine interface {
	Start(ctx context.Context, source string, opts domain.StartOptions) error
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Files(ctx context.Context) ([]domain.VideoCandidate, error)
	SelectFile(ctx context.Context, index int) error
	Events() <-chan EngineEvent
	Close() error
}

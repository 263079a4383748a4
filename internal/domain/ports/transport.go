package ports

import (
	"context"

	"streamcast/internal/domain"
)

// SnapshotFunc receives status updates. Delivery order is guaranteed per
// subscriber within one session; nothing is guaranteed across subscribers.
type SnapshotFunc func(domain.StatusSnapshot)

// Transport abstracts "start/stop/pause/resume a transfer and report its
// status" over two structurally different backends: an in-process
// event-driven engine and a remote poll-based HTTP service.
type Transport interface {
	Kind() domain.TransportKind

	// Available reports whether the underlying dependency is usable.
	// A non-nil error means the transport must not be started.
	Available(ctx context.Context) error

	// Start begins a session and returns its handle. It must not block
	// indefinitely; callers own user-visible error surfacing.
	Start(ctx context.Context, source string, opts domain.StartOptions) (domain.StreamID, error)

	// Subscribe registers a callback for every new snapshot and returns
	// the matching unsubscribe function.
	Subscribe(id domain.StreamID, fn SnapshotFunc) (func(), error)

	// Stop, Pause and Resume are idempotent. Stopping an already-stopped
	// handle is a no-op, not an error.
	Stop(ctx context.Context, id domain.StreamID) error
	Pause(ctx context.Context, id domain.StreamID) error
	Resume(ctx context.Context, id domain.StreamID) error

	// VideoCandidates and SelectFile are optional capabilities for
	// multi-file resources; transports without them return ErrUnsupported.
	VideoCandidates(ctx context.Context, id domain.StreamID) ([]domain.VideoCandidate, error)
	SelectFile(ctx context.Context, id domain.StreamID, index int) error
}

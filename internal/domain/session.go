package domain

import "time"

type StreamID string

// TransportKind selects which adapter owns a session.
type TransportKind string

const (
	TransportNative TransportKind = "native" // In-process event-driven engine.
	TransportRemote TransportKind = "remote" // Remote poll-based HTTP backend.
)

// StreamSession is the central entity: one end-to-end attempt to turn a
// resource descriptor into a playable stream.
type StreamSession struct {
	ID         StreamID       `json:"id"`
	Source     string         `json:"source"`
	Transport  TransportKind  `json:"transport"`
	CreatedAt  time.Time      `json:"createdAt"`
	Status     StatusSnapshot `json:"status"`
	RetryCount int            `json:"retryCount"`
	StreamURL  string         `json:"streamUrl,omitempty"`
}

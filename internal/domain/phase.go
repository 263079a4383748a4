package domain

import "errors"

// Phase is the discrete stage of a stream session's state machine. It is
// shared vocabulary: both transports and the simulator report status in
// these terms.
type Phase string

const (
	PhaseChecking    Phase = "checking"    // Verifying already-present data.
	PhaseConnecting  Phase = "connecting"  // Resolving metadata / peers.
	PhaseDownloading Phase = "downloading" // Actively transferring.
	PhaseConverting  Phase = "converting"  // Backend is preparing the playable asset.
	PhaseReady       Phase = "ready"       // Playable endpoint exists.
	PhaseSeeding     Phase = "seeding"     // Still uploading after ready.
	PhaseFinished    Phase = "finished"    // Transfer fully complete.
	PhasePaused      Phase = "paused"      // User paused.
	PhaseError       Phase = "error"       // Terminal failure.
	PhaseStopped     Phase = "stopped"     // User or system stopped.
)

var ErrInvalidTransition = errors.New("invalid phase transition")

// validTransitions defines the adjacency list of allowed phase transitions.
// The only backward edge is the explicit pause/resume pair.
var validTransitions = map[Phase][]Phase{
	PhaseChecking:    {PhaseConnecting, PhaseDownloading, PhasePaused, PhaseError, PhaseStopped},
	PhaseConnecting:  {PhaseDownloading, PhasePaused, PhaseError, PhaseStopped},
	PhaseDownloading: {PhaseConverting, PhaseReady, PhasePaused, PhaseError, PhaseStopped},
	PhaseConverting:  {PhaseReady, PhasePaused, PhaseError, PhaseStopped},
	PhaseReady:       {PhaseSeeding, PhaseFinished, PhaseError, PhaseStopped},
	PhaseSeeding:     {PhaseFinished, PhaseError, PhaseStopped},
	PhaseFinished:    {PhaseStopped},
	PhasePaused:      {PhaseDownloading, PhaseConverting, PhaseError, PhaseStopped},
	PhaseError:       {},
	PhaseStopped:     {},
}

// CanTransition reports whether moving from one phase to another is valid.
func CanTransition(from, to Phase) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the phase ends a session: once a terminal
// snapshot is delivered no further snapshots follow.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseReady, PhaseFinished, PhaseError, PhaseStopped:
		return true
	}
	return false
}

// Playable reports whether a stream URL is expected to be present.
func (p Phase) Playable() bool {
	switch p {
	case PhaseReady, PhaseSeeding, PhaseFinished:
		return true
	}
	return false
}

// Rank orders the forward progression downloading < converting < ready so
// callers can detect regressions. Phases outside the forward path rank -1.
func (p Phase) Rank() int {
	switch p {
	case PhaseChecking:
		return 0
	case PhaseConnecting:
		return 1
	case PhaseDownloading:
		return 2
	case PhaseConverting:
		return 3
	case PhaseReady:
		return 4
	case PhaseSeeding:
		return 5
	case PhaseFinished:
		return 6
	default:
		return -1
	}
}

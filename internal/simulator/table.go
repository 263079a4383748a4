package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"streamcast/internal/domain"
)

// step is one row of the wall-clock phase table. Snapshots are a pure step
// function of session age; no timer chain, no interpolation.
type step struct {
	elapsed  time.Duration
	phase    domain.Phase
	progress float64
	eta      float64
}

var phaseTable = []step{
	{0, domain.PhaseDownloading, 0.00, 120},
	{3 * time.Second, domain.PhaseDownloading, 0.15, 100},
	{6 * time.Second, domain.PhaseDownloading, 0.35, 80},
	{9 * time.Second, domain.PhaseDownloading, 0.55, 60},
	{12 * time.Second, domain.PhaseDownloading, 0.75, 40},
	{15 * time.Second, domain.PhaseConverting, 0.85, 20},
	{18 * time.Second, domain.PhaseConverting, 0.95, 10},
	{20 * time.Second, domain.PhaseReady, 1.00, 0},
}

// Fixed display values once the simulated stream is ready.
const (
	readyDurationSeconds = 7200
	readyDownloadRate    = 5 * 1024 * 1024
	readyPeers           = 42
)

// SnapshotAt returns the status of a session at the given age. The walk is
// backward through the table: the latest entry whose threshold has been
// crossed wins. Rate and peer counts during download are synthesized for
// display realism and are not deterministic.
func SnapshotAt(elapsed time.Duration, streamURL string) domain.StatusSnapshot {
	row := phaseTable[0]
	for i := len(phaseTable) - 1; i >= 0; i-- {
		if elapsed >= phaseTable[i].elapsed {
			row = phaseTable[i]
			break
		}
	}

	snap := domain.StatusSnapshot{
		Phase:      row.phase,
		Progress:   row.progress,
		EtaSeconds: row.eta,
	}

	switch row.phase {
	case domain.PhaseDownloading:
		snap.DownloadRate = rand.Int63n(10 * 1024 * 1024)
		snap.Peers = 10 + rand.Intn(100)
		snap.Message = fmt.Sprintf("Downloading to server: %d%%", int(row.progress*100))
	case domain.PhaseConverting:
		snap.Message = fmt.Sprintf("Converting to HLS format: %d%%", int(row.progress*100))
	case domain.PhaseReady:
		snap.Message = "Stream ready to play"
		snap.StreamURL = streamURL
		snap.DurationSeconds = readyDurationSeconds
		snap.DownloadRate = readyDownloadRate
		snap.Peers = readyPeers
	}
	return snap
}

package domain

import (
	"math"
	"testing"
)

func TestEstimateEtaZeroRateIsInfinite(t *testing.T) {
	s := StatusSnapshot{Phase: PhaseDownloading, Progress: 0.5}
	if got := EstimateEta(s, 1 << 30); !math.IsInf(got, 1) {
		t.Fatalf("expected +Inf for zero rate, got %v", got)
	}
}

func TestEstimateEta(t *testing.T) {
	cases := []struct {
		name     string
		progress float64
		rate     int64
		total    int64
		want     float64
	}{
		{"half done", 0.5, 1024, 2048, 1},
		{"not started", 0, 512, 5120, 10},
		{"complete", 1.0, 1024, 4096, 0},
		{"over-reported progress", 1.2, 1024, 4096, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := StatusSnapshot{Progress: c.progress, DownloadRate: c.rate}
			got := EstimateEta(s, c.total)
			if got != c.want {
				t.Errorf("EstimateEta = %v, want %v", got, c.want)
			}
			if got < 0 {
				t.Errorf("eta must never be negative, got %v", got)
			}
		})
	}
}

func TestFiniteEta(t *testing.T) {
	if _, ok := (StatusSnapshot{EtaSeconds: EtaUnknown}).FiniteEta(); ok {
		t.Error("unknown eta must not be finite")
	}
	if _, ok := (StatusSnapshot{EtaSeconds: math.Inf(1)}).FiniteEta(); ok {
		t.Error("infinite eta must not be finite")
	}
	if got, ok := (StatusSnapshot{EtaSeconds: 42}).FiniteEta(); !ok || got != 42 {
		t.Errorf("expected finite 42, got %v %v", got, ok)
	}
}

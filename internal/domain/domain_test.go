package domain

import (
	"testing"
	"time"
)

func TestChainIsSupported(t *testing.T) {
	for _, c := range SupportedChains {
		if !c.IsSupported() {
			t.Errorf("chain %s should be supported", c)
		}
	}
	if Chain("tron").IsSupported() {
		t.Error("unknown chain reported as supported")
	}
}

func TestChainIsEVM(t *testing.T) {
	if !ChainEthereum.IsEVM() || !ChainBase.IsEVM() || !ChainBSC.IsEVM() {
		t.Error("EVM chains not flagged as EVM")
	}
	if ChainSolana.IsEVM() {
		t.Error("solana flagged as EVM")
	}
}

func TestCandleContains(t *testing.T) {
	open := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Candle{OpenTime: open, CloseTime: open.Add(time.Hour)}

	if !c.Contains(open) {
		t.Error("open_time should be contained")
	}
	if !c.Contains(open.Add(30 * time.Minute)) {
		t.Error("mid-candle timestamp should be contained")
	}
	if c.Contains(open.Add(time.Hour)) {
		t.Error("close_time is exclusive")
	}
	if c.Contains(open.Add(-time.Second)) {
		t.Error("timestamp before open should not be contained")
	}
}

func TestPositionCheckpointLookup(t *testing.T) {
	p := TrackedPosition{
		Checkpoints: []CheckpointROI{
			{Horizon: "1h", ROI: 1.1},
			{Horizon: "24h", ROI: 1.6},
		},
	}

	cp, ok := p.Checkpoint("24h")
	if !ok || cp.ROI != 1.6 {
		t.Errorf("expected 24h checkpoint with ROI 1.6, got %+v ok=%v", cp, ok)
	}
	if _, ok := p.Checkpoint("7d"); ok {
		t.Error("uncomputed horizon should not be found")
	}
}

func TestPositionCurrentROI(t *testing.T) {
	p := TrackedPosition{StartPrice: 100}
	if got := p.CurrentROI(150); got != 1.5 {
		t.Errorf("expected ROI 1.5, got %f", got)
	}

	zero := TrackedPosition{}
	if got := zero.CurrentROI(150); got != 0 {
		t.Errorf("zero start price must yield ROI 0, got %f", got)
	}
}

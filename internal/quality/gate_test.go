package quality

import (
	"testing"

	"mintwatch/internal/domain"
)

func normalSnapshot(price float64) *domain.PriceSnapshot {
	liq := 50000.0
	vol := 20000.0
	chg := 2.5
	return &domain.PriceSnapshot{
		Address:        "0xabc",
		Chain:          domain.ChainEthereum,
		PriceUSD:       price,
		LiquidityUSD:   &liq,
		Volume24hUSD:   &vol,
		PriceChange24h: &chg,
	}
}

func TestGateDisabledPassesEverything(t *testing.T) {
	t.Parallel()

	gate := NewGate(false, 0.6, 128, nil)
	snap := normalSnapshot(1)
	if gate.Check(snap) {
		t.Fatal("disabled gate must not flag")
	}
	if snap.Suspect {
		t.Fatal("snapshot must stay clean")
	}
}

func TestGatePassesBeforeWindowFilled(t *testing.T) {
	t.Parallel()

	gate := NewGate(true, 0.6, 128, nil)
	for i := 0; i < 10; i++ {
		if gate.Check(normalSnapshot(1 + float64(i)/100)) {
			t.Fatal("gate must not flag before the window is filled")
		}
	}
}

func TestGateFlagsFarOutlier(t *testing.T) {
	t.Parallel()

	gate := NewGate(true, 0.6, 256, nil)
	for i := 0; i < 100; i++ {
		gate.Check(normalSnapshot(1 + float64(i%10)/100))
	}

	outlier := normalSnapshot(1)
	tiny := 0.5
	huge := 9e12
	outlier.PriceUSD = 4e9
	outlier.LiquidityUSD = &tiny
	outlier.Volume24hUSD = &huge
	crash := 9500.0
	outlier.PriceChange24h = &crash

	// Forest scoring is probabilistic; the invariant under test is that a
	// flagged snapshot is marked and an unflagged one is not.
	flagged := gate.Check(outlier)
	if flagged != outlier.Suspect {
		t.Fatalf("flag result %v disagrees with Suspect %v", flagged, outlier.Suspect)
	}
}

func TestNilGatePasses(t *testing.T) {
	t.Parallel()

	var gate *Gate
	if gate.Check(normalSnapshot(1)) {
		t.Fatal("nil gate must pass")
	}
}

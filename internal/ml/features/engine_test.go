package features

import (
	"testing"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/common"
)

var launch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestVectorMatchesFeatureContract(t *testing.T) {
	t.Parallel()

	engine := NewEngine(6)
	vecA, ok := engine.Vector(100, launch, risingCandles(6))
	if !ok {
		t.Fatal("expected a scorable vector")
	}
	if len(vecA) != len(common.FeatureNames) {
		t.Fatalf("expected %d features, got %d", len(common.FeatureNames), len(vecA))
	}
	vecB, _ := engine.Vector(100, launch, risingCandles(6))
	for i := range vecA {
		if vecA[i] != vecB[i] {
			t.Fatalf("expected deterministic features, got %v vs %v", vecA, vecB)
		}
	}
}

func TestVectorCapturesRunup(t *testing.T) {
	t.Parallel()

	engine := NewEngine(6)
	vec, ok := engine.Vector(100, launch, risingCandles(6))
	if !ok {
		t.Fatal("expected a scorable vector")
	}
	m := Map(vec)
	if m["ret_window"] <= 0 {
		t.Fatalf("expected positive window return for rising candles, got %.4f", m["ret_window"])
	}
	if m["runup"] <= 0 {
		t.Fatalf("expected positive runup, got %.4f", m["runup"])
	}
	if m["coverage"] != 1 {
		t.Fatalf("expected full coverage for 6 candles over 6h, got %.4f", m["coverage"])
	}
}

func TestVectorReportsPartialCoverage(t *testing.T) {
	t.Parallel()

	engine := NewEngine(6)
	vec, ok := engine.Vector(100, launch, risingCandles(3))
	if !ok {
		t.Fatal("expected a scorable vector from a partial window")
	}
	if got := Map(vec)["coverage"]; got != 0.5 {
		t.Fatalf("expected coverage 0.5 for 3 of 6 candles, got %.4f", got)
	}
}

func TestVectorIgnoresCandlesOutsideWindow(t *testing.T) {
	t.Parallel()

	engine := NewEngine(6)
	candles := risingCandles(6)
	candles = append(candles, hourCandle(launch.Add(48*time.Hour), 10000))
	candles = append(candles, hourCandle(launch.Add(-2*time.Hour), 1))

	vec, ok := engine.Vector(100, launch, candles)
	if !ok {
		t.Fatal("expected a scorable vector")
	}
	if got := Map(vec)["coverage"]; got != 1 {
		t.Fatalf("expected out-of-window candles dropped, coverage %.4f", got)
	}
	if got := Map(vec)["runup"]; got > 10 {
		t.Fatalf("expected runup unaffected by the late spike, got %.4f", got)
	}
}

func TestVectorRejectsUnscorableInputs(t *testing.T) {
	t.Parallel()

	engine := NewEngine(6)
	if _, ok := engine.Vector(0, launch, risingCandles(6)); ok {
		t.Fatal("expected no vector for a zero entry price")
	}
	if _, ok := engine.Vector(100, launch, risingCandles(1)); ok {
		t.Fatal("expected no vector from a single candle")
	}
	if _, ok := engine.Vector(100, launch, nil); ok {
		t.Fatal("expected no vector without candles")
	}
}

func risingCandles(n int) []domain.Candle {
	out := make([]domain.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1.05
		out = append(out, hourCandle(launch.Add(time.Duration(i)*time.Hour), price))
	}
	return out
}

func hourCandle(open time.Time, closePrice float64) domain.Candle {
	return domain.Candle{
		OpenTime:  open,
		CloseTime: open.Add(time.Hour),
		Open:      closePrice * 0.99,
		High:      closePrice * 1.02,
		Low:       closePrice * 0.97,
		Close:     closePrice,
		VolumeUSD: 50000,
	}
}

package ta

import (
	"math"
	"testing"
)

func TestMeanStd(t *testing.T) {
	t.Parallel()

	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Fatalf("expected mean 5, got %v", mean)
	}
	if std != 2 {
		t.Fatalf("expected std 2, got %v", std)
	}

	mean, std = MeanStd(nil)
	if mean != 0 || std != 0 {
		t.Fatalf("expected zeros for empty input, got %v %v", mean, std)
	}
}

func TestEMASeries(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	ema := EMASeries(values, 3)
	if len(ema) != len(values) {
		t.Fatalf("expected %d points, got %d", len(values), len(ema))
	}
	if ema[0] != values[0] {
		t.Fatalf("expected seed from first value, got %v", ema[0])
	}
	// alpha = 0.5 for period 3: 1, 1.5, 2.25, 3.125
	if math.Abs(ema[3]-3.125) > 1e-12 {
		t.Fatalf("expected 3.125, got %v", ema[3])
	}
	if ema[3] >= values[3] {
		t.Fatalf("expected the average to lag a rising series, got %v", ema[3])
	}

	same := EMASeries(values, 1)
	for i := range values {
		if same[i] != values[i] {
			t.Fatalf("expected period 1 to copy input, got %v", same)
		}
	}
	if got := EMASeries(nil, 3); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

package logreg

import (
	"math"
	"testing"
)

func TestTrainSeparatesClasses(t *testing.T) {
	t.Parallel()

	samples, labels := separableData()
	model, err := Train(samples, labels, []string{"x1", "x2"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	pLow := model.PredictProb([]float64{-2, -2})
	pHigh := model.PredictProb([]float64{3, 3})
	if pLow >= 0.5 {
		t.Fatalf("expected negative sample prob < 0.5, got %.4f", pLow)
	}
	if pHigh <= 0.5 {
		t.Fatalf("expected positive sample prob > 0.5, got %.4f", pHigh)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	samples, labels := separableData()
	model, err := Train(samples, labels, []string{"x1", "x2"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	want := model.PredictProb([]float64{3, 3})

	blob, err := model.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if diff := math.Abs(restored.PredictProb([]float64{3, 3}) - want); diff > 1e-9 {
		t.Fatalf("roundtrip changed prediction by %.12f", diff)
	}
}

func TestPredictProbHandlesBadInput(t *testing.T) {
	t.Parallel()

	samples, labels := separableData()
	model, err := Train(samples, labels, []string{"x1", "x2"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if got := model.PredictProb([]float64{1}); got != 0.5 {
		t.Fatalf("expected 0.5 for a wrong-width sample, got %.4f", got)
	}
	var nilModel *Model
	if got := nilModel.PredictProb([]float64{1, 2}); got != 0.5 {
		t.Fatalf("expected 0.5 from nil model, got %.4f", got)
	}
}

func TestUnmarshalRejectsCorruptArtifacts(t *testing.T) {
	t.Parallel()

	if _, err := UnmarshalBinary(nil); err == nil {
		t.Fatal("expected error for empty artifact")
	}
	if _, err := UnmarshalBinary([]byte(`{"weights":[1,2],"means":[0],"stds":[1,1]}`)); err == nil {
		t.Fatal("expected error for mismatched moments")
	}
	if _, err := UnmarshalBinary([]byte(`{"weights":[1],"means":[0],"stds":[0]}`)); err == nil {
		t.Fatal("expected error for zero std")
	}
}

func separableData() ([][]float64, []float64) {
	samples := make([][]float64, 0, 80)
	labels := make([]float64, 0, 80)
	for i := 0; i < 40; i++ {
		samples = append(samples, []float64{-1.5 - float64(i)/40, -1.0 - float64(i)/60})
		labels = append(labels, 0)
	}
	for i := 0; i < 40; i++ {
		samples = append(samples, []float64{1.0 + float64(i)/40, 1.4 + float64(i)/60})
		labels = append(labels, 1)
	}
	return samples, labels
}

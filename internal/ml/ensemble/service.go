// Package ensemble blends the trained models with a source reputation prior
// into one win probability.
package ensemble

import "mintwatch/internal/ml/common"

// Components are the inputs for one blended score. Probabilities for models
// that are not loaded are ignored via the Has flags; the prior is always
// available (0.5 for unknown sources).
type Components struct {
	SourcePrior float64
	LogRegProb  float64
	XGBoostProb float64
	HasLogReg   bool
	HasXGBoost  bool
}

// Weights follow the idea that the models carry most of the signal and the
// source's track record seeds the rest. When a model is missing its weight
// is redistributed over what remains.
const (
	priorWeight = 0.30
	modelWeight = 0.35
)

type Blender struct{}

func NewBlender() *Blender { return &Blender{} }

// WinProb blends the available components into a single probability.
func (b *Blender) WinProb(c Components) float64 {
	sum := priorWeight * common.Clamp01(c.SourcePrior)
	total := priorWeight
	if c.HasLogReg {
		sum += modelWeight * common.Clamp01(c.LogRegProb)
		total += modelWeight
	}
	if c.HasXGBoost {
		sum += modelWeight * common.Clamp01(c.XGBoostProb)
		total += modelWeight
	}
	return sum / total
}

// Label buckets a probability for display.
func Label(prob float64) string {
	if prob >= 0.60 {
		return "likely_winner"
	}
	if prob <= 0.40 {
		return "likely_loser"
	}
	return "uncertain"
}

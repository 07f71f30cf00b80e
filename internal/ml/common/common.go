// Package common holds the contract shared by model training and inference:
// model keys, the feature vector layout, and the label definition. Both sides
// must agree on all three, so they live in one place.
package common

import "mintwatch/internal/domain"

// FeatureSpecVersion identifies the vector layout in FeatureNames. Bump it
// whenever the layout changes so artifacts trained on an old layout are never
// scored against new vectors.
const FeatureSpecVersion = 1

const (
	ModelKeyLogReg   = "winprob-logreg"
	ModelKeyXGBoost  = "winprob-xgboost"
	ModelKeyEnsemble = "winprob-ensemble"
)

const (
	ArtifactFormatLogReg  = "json/logreg-v1"
	ArtifactFormatXGBoost = "json/boo-xgboost-v1"
)

// FeatureNames is the canonical early-window vector layout, in order. The
// features engine produces vectors in exactly this order and models persist
// these names inside their artifacts.
var FeatureNames = []string{
	"ret_first_hour",
	"ret_window",
	"volatility",
	"momentum",
	"range_norm",
	"runup",
	"drawdown",
	"volume_log",
	"coverage",
}

// TargetLabel maps a resolved signal outcome onto the binary training
// target. Dead tokens count as losses.
func TargetLabel(outcome domain.Outcome) float64 {
	if outcome == domain.OutcomeWinner {
		return 1
	}
	return 0
}

// Clamp01 bounds a probability to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Confidence maps a win probability onto [0, 1], where 0 is a coin flip and
// 1 is a certain call in either direction.
func Confidence(prob float64) float64 {
	d := 2*Clamp01(prob) - 1
	if d < 0 {
		d = -d
	}
	return d
}

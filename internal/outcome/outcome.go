// Package outcome labels resolved signals and folds a source's signal history
// into its reputation record. Every function is a pure computation: the same
// inputs always produce the same record, so recomputation is idempotent.
package outcome

import (
	"errors"
	"math"
	"sort"
	"time"

	"mintwatch/internal/domain"
)

// DefaultWinnerThreshold is the ROI multiple at which a signal counts as a
// winner.
const DefaultWinnerThreshold = 1.5

// ErrUnknownSource means a source has no signal history to fold, so no
// reputation can exist for it.
var ErrUnknownSource = errors.New("unknown source: no signal history")

// Label classifies a decision-horizon ROI. Dead tokens are labeled dead
// regardless of ROI; they are counted but excluded from rate and ROI
// aggregates.
func Label(roi float64, dead bool, winnerThreshold float64) domain.Outcome {
	if dead {
		return domain.OutcomeDead
	}
	if winnerThreshold <= 0 {
		winnerThreshold = DefaultWinnerThreshold
	}
	if roi >= winnerThreshold {
		return domain.OutcomeWinner
	}
	return domain.OutcomeLoser
}

// Weights are the composite component weights. They are normalized against
// their sum, so any positive scale works.
type Weights struct {
	WinRate float64
	MeanROI float64
	Sharpe  float64
	Speed   float64
}

// DefaultWeights mirror the shipped configuration.
var DefaultWeights = Weights{WinRate: 0.35, MeanROI: 0.30, Sharpe: 0.15, Speed: 0.20}

// ComputeReputation folds all signals of one source into a reputation record.
// The fold runs over a sorted copy of the input, so the result is
// bit-identical across recomputations of the same signal set.
func ComputeReputation(source string, signals []domain.Signal, w Weights, computedAt time.Time) domain.ReputationRecord {
	sorted := make([]domain.Signal, len(signals))
	copy(sorted, signals)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].FirstSeen.Equal(sorted[j].FirstSeen) {
			return sorted[i].FirstSeen.Before(sorted[j].FirstSeen)
		}
		if sorted[i].Address != sorted[j].Address {
			return sorted[i].Address < sorted[j].Address
		}
		return sorted[i].Chain < sorted[j].Chain
	})

	rec := domain.ReputationRecord{Source: source, ComputedAt: computedAt}
	var (
		rois     []float64
		athHours []float64
	)
	for _, sig := range sorted {
		rec.TotalSignals++
		switch sig.Outcome {
		case domain.OutcomeDead:
			rec.DeadCount++
			continue
		case domain.OutcomeWinner:
			rec.Wins++
			athHours = append(athHours, math.Max(0, sig.HoursToATH))
		default:
			rec.Losses++
		}
		rois = append(rois, sig.ROI)
	}

	if scored := rec.Wins + rec.Losses; scored > 0 {
		rec.WinRate = float64(rec.Wins) / float64(scored)
		rec.MeanROI = mean(rois)
		rec.SharpeLike = sharpeLike(rois)
	}
	rec.SpeedScore = speedScore(athHours)
	rec.Composite = composite(rec, w)
	return rec
}

// speedScore rewards fast runs to ATH: 100 x 2^(-meanHours/24), so a source
// whose winners peak within a day scores above 50. No winners means no
// evidence of speed, scored 0.
func speedScore(athHours []float64) float64 {
	if len(athHours) == 0 {
		return 0
	}
	return clamp(100*math.Exp2(-mean(athHours)/24), 0, 100)
}

// sharpeLike is mean ROI over the sample standard deviation of ROI. Fewer
// than two samples, or zero variance, yields 0 rather than dividing by zero.
func sharpeLike(rois []float64) float64 {
	if len(rois) < 2 {
		return 0
	}
	m := mean(rois)
	var sum float64
	for _, r := range rois {
		d := r - m
		sum += d * d
	}
	sd := math.Sqrt(sum / float64(len(rois)-1))
	if sd == 0 {
		return 0
	}
	return m / sd
}

// composite blends the normalized components on a 0-100 scale: win rate maps
// directly, a 3x mean ROI and a Sharpe of 4 earn full marks, speed is already
// 0-100.
func composite(rec domain.ReputationRecord, w Weights) float64 {
	sum := w.WinRate + w.MeanROI + w.Sharpe + w.Speed
	if sum <= 0 {
		w = DefaultWeights
		sum = w.WinRate + w.MeanROI + w.Sharpe + w.Speed
	}

	win := clamp(rec.WinRate*100, 0, 100)
	roi := clamp(rec.MeanROI/3*100, 0, 100)
	sharpe := clamp(rec.SharpeLike*25, 0, 100)
	speed := clamp(rec.SpeedScore, 0, 100)

	score := (w.WinRate*win + w.MeanROI*roi + w.Sharpe*sharpe + w.Speed*speed) / sum
	return clamp(score, 0, 100)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

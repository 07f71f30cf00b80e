// Package features builds the early-window vectors the win probability
// models consume. A vector describes the first few hours of a tracked
// position using only its entry price and hourly candles, so the same code
// path serves training (resolved signals, candles from the immutable history
// cache) and inference (open positions, candles fetched live).
package features

import (
	"math"
	"sort"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/common"
	"mintwatch/internal/ta"
)

// DefaultWindowHours is how much of a position's early life a vector
// describes. Positions younger than the window can still be scored once two
// candles exist; the coverage feature tells the model how complete the
// window was.
const DefaultWindowHours = 6

// Engine turns one position's entry facts and early candles into a feature
// vector matching common.FeatureNames.
type Engine struct {
	window time.Duration
}

func NewEngine(windowHours int) *Engine {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	return &Engine{window: time.Duration(windowHours) * time.Hour}
}

// WindowHours is the span of candles callers should fetch per position.
func (e *Engine) WindowHours() int {
	return int(e.window / time.Hour)
}

// Vector computes the early-window features for one position. ok is false
// when the inputs cannot produce a finite vector: a non-positive entry
// price, fewer than two candles inside the window, or NaN/Inf leaking out of
// the math. Callers skip unscorable positions rather than invent values.
func (e *Engine) Vector(startPrice float64, firstSeen time.Time, candles []domain.Candle) ([]float64, bool) {
	if startPrice <= 0 {
		return nil, false
	}
	window := clipWindow(candles, firstSeen, firstSeen.Add(e.window))
	if len(window) < 2 {
		return nil, false
	}

	closes := make([]float64, len(window))
	volume := 0.0
	maxHigh := window[0].High
	minLow := window[0].Low
	for i, c := range window {
		closes[i] = c.Close
		volume += c.VolumeUSD
		maxHigh = math.Max(maxHigh, c.High)
		minLow = math.Min(minLow, c.Low)
	}
	_, vol := ta.MeanStd(hourlyReturns(startPrice, closes))
	ema := ta.EMASeries(closes, 3)

	vec := []float64{
		closes[0]/startPrice - 1,
		closes[len(closes)-1]/startPrice - 1,
		vol,
		(ema[len(ema)-1] - ema[0]) / startPrice,
		(maxHigh - minLow) / startPrice,
		(maxHigh - startPrice) / startPrice,
		(startPrice - minLow) / startPrice,
		math.Log10(1 + math.Max(0, volume)),
		float64(len(window)) / e.window.Hours(),
	}
	if len(vec) != len(common.FeatureNames) || anyNaN(vec) {
		return nil, false
	}
	return vec, true
}

// Map pairs the canonical feature names with a vector's values, for
// explainability payloads attached to predictions.
func Map(vec []float64) map[string]float64 {
	out := make(map[string]float64, len(vec))
	for i, name := range common.FeatureNames {
		if i < len(vec) {
			out[name] = vec[i]
		}
	}
	return out
}

// clipWindow keeps candles whose open falls in [from, to), sorted by open
// time. History segments can overlap the window edges on both sides.
func clipWindow(candles []domain.Candle, from, to time.Time) []domain.Candle {
	out := make([]domain.Candle, 0, len(candles))
	for _, c := range candles {
		if c.OpenTime.Before(from) || !c.OpenTime.Before(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

func hourlyReturns(start float64, closes []float64) []float64 {
	out := make([]float64, 0, len(closes))
	prev := start
	for _, c := range closes {
		if prev > 0 {
			out = append(out, c/prev-1)
		}
		prev = c
	}
	return out
}

func anyNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// Package quality scores resolved snapshots for plausibility. An isolation
// forest is fit on a rolling window of accepted snapshots; outliers get
// flagged, never dropped. The flag exists for the ATH path: a fat-fingered
// liquidity pull or a poisoned pool prints absurd candles, and a flagged
// snapshot keeps those spikes out of peak tracking.
package quality

import (
	"log"
	"math"
	"sync"

	"mintwatch/internal/domain"
	"mintwatch/internal/observability"

	"github.com/narumiruna/go-iforest/pkg/iforest"
)

const (
	// minFitSamples is the window size below which everything passes.
	minFitSamples = 64
	refitEvery    = 32
)

type Gate struct {
	enabled   bool
	threshold float64
	window    int
	metrics   *observability.Metrics

	mu       sync.Mutex
	samples  [][]float64
	forest   *iforest.IsolationForest
	sinceFit int
}

// NewGate builds a gate. threshold is the anomaly score above which a
// snapshot is flagged; window bounds the rolling training set.
func NewGate(enabled bool, threshold float64, window int, metrics *observability.Metrics) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.65
	}
	if window < minFitSamples {
		window = 512
	}
	return &Gate{enabled: enabled, threshold: threshold, window: window, metrics: metrics}
}

// Check scores the snapshot and marks it Suspect when it lands above the
// anomaly threshold. Accepted snapshots join the training window. Returns
// whether the snapshot was flagged.
func (g *Gate) Check(snap *domain.PriceSnapshot) bool {
	if g == nil || !g.enabled || snap == nil {
		return false
	}

	vec := featureVector(snap)

	g.mu.Lock()
	suspect := false
	if g.forest != nil {
		scores := g.forest.Score([][]float64{vec})
		if len(scores) == 1 && scores[0] >= g.threshold {
			suspect = true
		}
	}
	if !suspect {
		g.samples = append(g.samples, vec)
		if len(g.samples) > g.window {
			g.samples = g.samples[len(g.samples)-g.window:]
		}
		g.sinceFit++
		if len(g.samples) >= minFitSamples && (g.forest == nil || g.sinceFit >= refitEvery) {
			forest := iforest.New()
			forest.Fit(g.samples)
			g.forest = forest
			g.sinceFit = 0
		}
	}
	g.mu.Unlock()

	if suspect {
		snap.Suspect = true
		g.metrics.RecordQualityFlag(string(snap.Chain))
		log.Printf("quality: flagged snapshot %s/%s from %s (price=%g liq=%v)",
			snap.Chain, snap.Address, snap.Source, snap.PriceUSD, deref(snap.LiquidityUSD))
	}
	return suspect
}

// featureVector maps a snapshot onto the dimensions the detector separates
// on. Logs compress the magnitude spread; the volume/liquidity ratio is the
// classic wash-trading tell.
func featureVector(snap *domain.PriceSnapshot) []float64 {
	liquidity := deref(snap.LiquidityUSD)
	volume := deref(snap.Volume24hUSD)
	change := 0.0
	if snap.PriceChange24h != nil {
		change = math.Abs(*snap.PriceChange24h)
	}
	ratio := 0.0
	if liquidity > 0 {
		ratio = math.Min(volume/liquidity, 1000)
	}
	return []float64{
		safeLog10(snap.PriceUSD),
		safeLog10(liquidity),
		safeLog10(volume),
		ratio,
		change,
	}
}

func safeLog10(v float64) float64 {
	if v <= 0 {
		return -18
	}
	return math.Log10(v)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

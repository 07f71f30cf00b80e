package domain

import "time"

// Observation is one sighting of a token address in some upstream source.
type Observation struct {
	Address    string    `json:"address"`
	Chain      Chain     `json:"chain"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
	Sentiment  *float64  `json:"sentiment,omitempty"`
	Excerpt    string    `json:"excerpt,omitempty"`
}

// PositionStatus is the lifecycle state of a tracked position.
type PositionStatus string

const (
	PositionOpen     PositionStatus = "open"
	PositionComplete PositionStatus = "complete"
	PositionDead     PositionStatus = "dead"
)

// CheckpointROI is the return multiple measured at a fixed horizon after the
// first observation. Immutable once computed.
type CheckpointROI struct {
	Horizon    string    `json:"horizon"`
	DueAt      time.Time `json:"due_at"`
	PriceUSD   float64   `json:"price_usd"`
	ROI        float64   `json:"roi"`
	ComputedAt time.Time `json:"computed_at"`
}

// TrackedPosition is the longitudinal record for one (address, chain).
// Created on first observation, mutated only by tracker sweeps, never deleted.
type TrackedPosition struct {
	Address     string          `json:"address"`
	Chain       Chain           `json:"chain"`
	Source      string          `json:"source"`
	FirstSeen   time.Time       `json:"first_seen"`
	StartPrice  float64         `json:"start_price"`
	ATHPrice    float64         `json:"ath_price"`
	ATHAt       time.Time       `json:"ath_at"`
	Checkpoints []CheckpointROI `json:"checkpoints,omitempty"`
	Status      PositionStatus  `json:"status"`
	Mentions    int             `json:"mentions"`
	LastSweepAt time.Time       `json:"last_sweep_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Checkpoint returns the computed checkpoint for a horizon, if any.
func (p *TrackedPosition) Checkpoint(horizon string) (CheckpointROI, bool) {
	for _, cp := range p.Checkpoints {
		if cp.Horizon == horizon {
			return cp, true
		}
	}
	return CheckpointROI{}, false
}

// CurrentROI is the return multiple implied by a price against the entry.
func (p *TrackedPosition) CurrentROI(price float64) float64 {
	if p.StartPrice <= 0 {
		return 0
	}
	return price / p.StartPrice
}

// Outcome labels a resolved signal.
type Outcome string

const (
	OutcomeWinner Outcome = "winner"
	OutcomeLoser  Outcome = "loser"
	OutcomeDead   Outcome = "dead"
)

// Signal is the immutable resolution of one tracked position for its source:
// the decision-horizon ROI and the win/loss/dead label.
type Signal struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	Address    string    `json:"address"`
	Chain      Chain     `json:"chain"`
	FirstSeen  time.Time `json:"first_seen"`
	StartPrice float64   `json:"start_price"`
	Horizon    string    `json:"horizon"`
	ROI        float64   `json:"roi"`
	ATHPrice   float64   `json:"ath_price"`
	ATHAt      time.Time `json:"ath_at"`
	HoursToATH float64   `json:"hours_to_ath"`
	Outcome    Outcome   `json:"outcome"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReputationRecord is the aggregate reliability metric set for one source,
// recomputed from that source's full signal history and replaced atomically.
type ReputationRecord struct {
	Source       string    `json:"source"`
	TotalSignals int       `json:"total_signals"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	DeadCount    int       `json:"dead_count"`
	WinRate      float64   `json:"win_rate"`
	MeanROI      float64   `json:"mean_roi"`
	SharpeLike   float64   `json:"sharpe_like"`
	SpeedScore   float64   `json:"speed_score"`
	Composite    float64   `json:"composite"`
	ComputedAt   time.Time `json:"computed_at"`
}

// ProviderStatus is a dashboard view of one provider's admission state.
type ProviderStatus struct {
	Provider     string     `json:"provider"`
	BreakerState string     `json:"breaker_state"`
	Failures     int        `json:"failures"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	RatePerSec   float64    `json:"rate_per_sec"`
	Burst        int        `json:"burst"`
}

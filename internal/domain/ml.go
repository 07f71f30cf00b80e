package domain

import "time"

// MLModelVersion is one persisted training artifact for a win probability
// model. Versions are immutable once inserted; promotion flips is_active, and
// at most one version per model key is active at a time.
type MLModelVersion struct {
	ID                 int64      `json:"id"`
	ModelKey           string     `json:"model_key"`
	Version            int        `json:"version"`
	FeatureSpecVersion int        `json:"feature_spec_version"`
	TrainedFrom        time.Time  `json:"trained_from"`
	TrainedTo          time.Time  `json:"trained_to"`
	TrainedAt          time.Time  `json:"trained_at"`
	HyperparamsJSON    string     `json:"hyperparams_json,omitempty"`
	MetricsJSON        string     `json:"metrics_json,omitempty"`
	ArtifactFormat     string     `json:"artifact_format"`
	ArtifactBlob       []byte     `json:"-"`
	IsActive           bool       `json:"is_active"`
	ActivatedAt        *time.Time `json:"activated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// WinPrediction is a model's advisory estimate that an open position will
// resolve as a winner. Predictions never feed back into tracking, signal
// resolution, or reputation; once the position's signal exists they are
// graded against its outcome and frozen.
type WinPrediction struct {
	ID            int64      `json:"id"`
	Chain         Chain      `json:"chain"`
	Address       string     `json:"address"`
	ModelKey      string     `json:"model_key"`
	ModelVersion  int        `json:"model_version"`
	WinProb       float64    `json:"win_prob"`
	Confidence    float64    `json:"confidence"`
	DetailsJSON   string     `json:"details_json,omitempty"`
	SignalID      *int64     `json:"signal_id,omitempty"`
	ScoredAt      time.Time  `json:"scored_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ActualOutcome *Outcome   `json:"actual_outcome,omitempty"`
	IsCorrect     *bool      `json:"is_correct,omitempty"`
}

// Resolved reports whether the prediction has been graded against a signal.
func (p *WinPrediction) Resolved() bool {
	return p.ResolvedAt != nil
}

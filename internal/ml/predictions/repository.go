// Package predictions persists advisory win probability scores and grades
// them against the signals the tracker eventually emits.
package predictions

import (
	"context"
	"encoding/json"
	"time"

	"mintwatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"
)

const createWinPredictionsTable = `
CREATE TABLE IF NOT EXISTS win_predictions (
    id             BIGSERIAL PRIMARY KEY,
    chain          TEXT NOT NULL,
    address        TEXT NOT NULL,
    model_key      TEXT NOT NULL,
    model_version  INT NOT NULL,
    win_prob       DOUBLE PRECISION NOT NULL,
    confidence     DOUBLE PRECISION NOT NULL,
    details_json   JSONB NOT NULL DEFAULT '{}',
    signal_id      BIGINT,
    scored_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at    TIMESTAMPTZ,
    actual_outcome TEXT,
    is_correct     BOOLEAN,
    UNIQUE (chain, address, model_key, model_version)
);
CREATE INDEX IF NOT EXISTS idx_win_predictions_unresolved
    ON win_predictions (chain, address) WHERE resolved_at IS NULL;
`

const predictionColumns = `id, chain, address, model_key, model_version,
       win_prob, confidence, details_json, signal_id,
       scored_at, resolved_at, actual_outcome, is_correct`

// PgxPool is the slice of pgxpool.Pool the repository uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRepository(pool PgxPool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "win-predictions.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createWinPredictionsTable)
	return err
}

// UpsertPrediction writes one model's current score for a token. Re-scoring
// the same (token, model, version) replaces the advisory fields; the
// resolution fields are never touched here. Only open positions are scored,
// so resolved rows are not rewritten in practice.
func (r *Repository) UpsertPrediction(ctx context.Context, p domain.WinPrediction) (*domain.WinPrediction, error) {
	_, span := r.tracer.Start(ctx, "win-predictions.upsert")
	defer span.End()

	details := p.DetailsJSON
	if details == "" {
		details = "{}"
	}
	if !json.Valid([]byte(details)) {
		details = `{"raw":"invalid"}`
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO win_predictions (
    chain, address, model_key, model_version,
    win_prob, confidence, details_json, scored_at
) VALUES (
    $1, $2, $3, $4,
    $5, $6, $7, COALESCE($8, NOW())
)
ON CONFLICT (chain, address, model_key, model_version) DO UPDATE SET
    win_prob = EXCLUDED.win_prob,
    confidence = EXCLUDED.confidence,
    details_json = EXCLUDED.details_json,
    scored_at = EXCLUDED.scored_at
RETURNING `+predictionColumns,
		string(p.Chain),
		p.Address,
		p.ModelKey,
		p.ModelVersion,
		p.WinProb,
		p.Confidence,
		details,
		nullIfZeroTime(p.ScoredAt),
	)
	return scanPrediction(row)
}

// ResolveOutcomes grades every unresolved prediction whose token has emitted
// a signal. A prediction is correct when calling win_prob >= 0.5 agrees with
// the signal landing a winner outcome. One set-based statement; positions
// emit at most one signal, so the join is unambiguous.
func (r *Repository) ResolveOutcomes(ctx context.Context) (int64, error) {
	_, span := r.tracer.Start(ctx, "win-predictions.resolve-outcomes")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
UPDATE win_predictions p
SET resolved_at = NOW(),
    signal_id = s.id,
    actual_outcome = s.outcome,
    is_correct = ((s.outcome = $1) = (p.win_prob >= 0.5))
FROM signals s
WHERE s.chain = p.chain
  AND s.address = p.address
  AND p.resolved_at IS NULL`, string(domain.OutcomeWinner))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LatestForToken returns the most recent prediction per model key for one
// token, covering every version that scored it.
func (r *Repository) LatestForToken(ctx context.Context, chain domain.Chain, address string) ([]domain.WinPrediction, error) {
	_, span := r.tracer.Start(ctx, "win-predictions.latest-for-token")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT ON (model_key) `+predictionColumns+`
FROM win_predictions
WHERE chain = $1 AND address = $2
ORDER BY model_key, scored_at DESC, model_version DESC`, string(chain), address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.WinPrediction, 0, 4)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ModelAccuracy is the resolved hit rate for one model key.
type ModelAccuracy struct {
	ModelKey string  `json:"model_key"`
	Total    int64   `json:"total"`
	Resolved int64   `json:"resolved"`
	Correct  int64   `json:"correct"`
	HitRate  float64 `json:"hit_rate"`
}

// AccuracyByModel summarizes how each model's resolved predictions scored.
func (r *Repository) AccuracyByModel(ctx context.Context) ([]ModelAccuracy, error) {
	_, span := r.tracer.Start(ctx, "win-predictions.accuracy")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT model_key,
       COUNT(*),
       COUNT(*) FILTER (WHERE resolved_at IS NOT NULL),
       COUNT(*) FILTER (WHERE is_correct)
FROM win_predictions
GROUP BY model_key
ORDER BY model_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ModelAccuracy, 0, 4)
	for rows.Next() {
		var a ModelAccuracy
		if err := rows.Scan(&a.ModelKey, &a.Total, &a.Resolved, &a.Correct); err != nil {
			return nil, err
		}
		if a.Resolved > 0 {
			a.HitRate = float64(a.Correct) / float64(a.Resolved)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes resolved predictions scored before the cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "win-predictions.delete-old")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM win_predictions WHERE resolved_at IS NOT NULL AND scored_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(s scanner) (*domain.WinPrediction, error) {
	var out domain.WinPrediction
	var signalID pgtype.Int8
	var resolvedAt pgtype.Timestamptz
	var outcome pgtype.Text
	var isCorrect pgtype.Bool

	if err := s.Scan(
		&out.ID,
		&out.Chain,
		&out.Address,
		&out.ModelKey,
		&out.ModelVersion,
		&out.WinProb,
		&out.Confidence,
		&out.DetailsJSON,
		&signalID,
		&out.ScoredAt,
		&resolvedAt,
		&outcome,
		&isCorrect,
	); err != nil {
		return nil, err
	}
	out.ScoredAt = out.ScoredAt.UTC()
	if signalID.Valid {
		v := signalID.Int64
		out.SignalID = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		out.ResolvedAt = &t
	}
	if outcome.Valid && outcome.String != "" {
		o := domain.Outcome(outcome.String)
		out.ActualOutcome = &o
	}
	if isCorrect.Valid {
		v := isCorrect.Bool
		out.IsCorrect = &v
	}
	return &out, nil
}

func nullIfZeroTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v.UTC()
}

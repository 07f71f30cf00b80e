package repository

import (
	"context"
	"errors"

	"mintwatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const createReputationTable = `
CREATE TABLE IF NOT EXISTS source_reputation (
    source        TEXT        PRIMARY KEY,
    total_signals INT         NOT NULL,
    wins          INT         NOT NULL,
    losses        INT         NOT NULL,
    dead_count    INT         NOT NULL,
    win_rate      NUMERIC     NOT NULL,
    mean_roi      NUMERIC     NOT NULL,
    sharpe_like   NUMERIC     NOT NULL,
    speed_score   NUMERIC     NOT NULL,
    composite     NUMERIC     NOT NULL,
    computed_at   TIMESTAMPTZ NOT NULL
);
`

const reputationColumns = `source, total_signals, wins, losses, dead_count,
       win_rate, mean_roi, sharpe_like, speed_score, composite, computed_at`

type ReputationRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewReputationRepository(pool PgxPool, tracer trace.Tracer) *ReputationRepository {
	return &ReputationRepository{pool: pool, tracer: tracer}
}

func (r *ReputationRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "reputation-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createReputationTable)
	return err
}

// UpsertRecords replaces each source's row with the freshly recomputed one.
func (r *ReputationRepository) UpsertRecords(ctx context.Context, records []domain.ReputationRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "reputation-repo.upsert-records")
	defer span.End()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
INSERT INTO source_reputation (
    source, total_signals, wins, losses, dead_count,
    win_rate, mean_roi, sharpe_like, speed_score, composite, computed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (source) DO UPDATE SET
    total_signals = EXCLUDED.total_signals,
    wins          = EXCLUDED.wins,
    losses        = EXCLUDED.losses,
    dead_count    = EXCLUDED.dead_count,
    win_rate      = EXCLUDED.win_rate,
    mean_roi      = EXCLUDED.mean_roi,
    sharpe_like   = EXCLUDED.sharpe_like,
    speed_score   = EXCLUDED.speed_score,
    composite     = EXCLUDED.composite,
    computed_at   = EXCLUDED.computed_at`,
			rec.Source, rec.TotalSignals, rec.Wins, rec.Losses, rec.DeadCount,
			rec.WinRate, rec.MeanROI, rec.SharpeLike, rec.SpeedScore, rec.Composite,
			rec.ComputedAt.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Record returns one source's reputation, with ok=false for a source that
// has never been scored.
func (r *ReputationRepository) Record(ctx context.Context, source string) (domain.ReputationRecord, bool, error) {
	_, span := r.tracer.Start(ctx, "reputation-repo.record")
	defer span.End()

	var rec domain.ReputationRecord
	err := r.pool.QueryRow(ctx, `
SELECT `+reputationColumns+`
FROM source_reputation
WHERE source = $1`, source).Scan(
		&rec.Source, &rec.TotalSignals, &rec.Wins, &rec.Losses, &rec.DeadCount,
		&rec.WinRate, &rec.MeanROI, &rec.SharpeLike, &rec.SpeedScore, &rec.Composite,
		&rec.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReputationRecord{}, false, nil
	}
	if err != nil {
		return domain.ReputationRecord{}, false, err
	}
	rec.ComputedAt = rec.ComputedAt.UTC()
	return rec, true, nil
}

// Leaderboard returns sources ranked by composite score.
func (r *ReputationRepository) Leaderboard(ctx context.Context, limit int) ([]domain.ReputationRecord, error) {
	_, span := r.tracer.Start(ctx, "reputation-repo.leaderboard")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+reputationColumns+`
FROM source_reputation
ORDER BY composite DESC, source
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ReputationRecord
	for rows.Next() {
		var rec domain.ReputationRecord
		if err := rows.Scan(
			&rec.Source, &rec.TotalSignals, &rec.Wins, &rec.Losses, &rec.DeadCount,
			&rec.WinRate, &rec.MeanROI, &rec.SharpeLike, &rec.SpeedScore, &rec.Composite,
			&rec.ComputedAt,
		); err != nil {
			return nil, err
		}
		rec.ComputedAt = rec.ComputedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mintwatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createPositionsTable = `
CREATE TABLE IF NOT EXISTS positions (
    chain         TEXT        NOT NULL,
    address       TEXT        NOT NULL,
    source        TEXT        NOT NULL,
    first_seen    TIMESTAMPTZ NOT NULL,
    start_price   NUMERIC     NOT NULL,
    ath_price     NUMERIC     NOT NULL,
    ath_at        TIMESTAMPTZ NOT NULL,
    checkpoints   JSONB       NOT NULL DEFAULT '[]',
    status        TEXT        NOT NULL,
    mentions      INT         NOT NULL DEFAULT 1,
    last_sweep_at TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (chain, address)
);

CREATE INDEX IF NOT EXISTS idx_positions_status
    ON positions (status);
`

// PgxPool is the slice of pgxpool.Pool the repositories use.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type PositionRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPositionRepository(pool PgxPool, tracer trace.Tracer) *PositionRepository {
	return &PositionRepository{pool: pool, tracer: tracer}
}

func (r *PositionRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "position-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createPositionsTable)
	return err
}

// UpsertPosition writes one position. Entry facts (source, first_seen,
// start_price) are write-once: a conflict only advances the longitudinal
// columns, and mentions never move backwards.
func (r *PositionRepository) UpsertPosition(ctx context.Context, pos domain.TrackedPosition) error {
	_, span := r.tracer.Start(ctx, "position-repo.upsert")
	defer span.End()

	checkpoints := []byte("[]")
	if len(pos.Checkpoints) > 0 {
		encoded, err := json.Marshal(pos.Checkpoints)
		if err != nil {
			return fmt.Errorf("encode checkpoints for %s/%s: %w", pos.Chain, pos.Address, err)
		}
		checkpoints = encoded
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO positions (
    chain, address, source, first_seen, start_price,
    ath_price, ath_at, checkpoints, status, mentions,
    last_sweep_at, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5,
    $6, $7, $8, $9, $10,
    $11, COALESCE($12, NOW()), COALESCE($13, NOW())
)
ON CONFLICT (chain, address) DO UPDATE SET
    ath_price     = EXCLUDED.ath_price,
    ath_at        = EXCLUDED.ath_at,
    checkpoints   = EXCLUDED.checkpoints,
    status        = EXCLUDED.status,
    mentions      = GREATEST(positions.mentions, EXCLUDED.mentions),
    last_sweep_at = EXCLUDED.last_sweep_at,
    updated_at    = EXCLUDED.updated_at`,
		string(pos.Chain),
		pos.Address,
		pos.Source,
		pos.FirstSeen.UTC(),
		pos.StartPrice,
		pos.ATHPrice,
		pos.ATHAt.UTC(),
		checkpoints,
		string(pos.Status),
		pos.Mentions,
		nullIfZeroTime(pos.LastSweepAt),
		nullIfZeroTime(pos.CreatedAt),
		nullIfZeroTime(pos.UpdatedAt),
	)
	return err
}

func (r *PositionRepository) ListPositions(ctx context.Context) ([]domain.TrackedPosition, error) {
	_, span := r.tracer.Start(ctx, "position-repo.list")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT chain, address, source, first_seen, start_price,
       ath_price, ath_at, checkpoints, status, mentions,
       last_sweep_at, created_at, updated_at
FROM positions
ORDER BY first_seen`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.TrackedPosition
	for rows.Next() {
		var (
			p           domain.TrackedPosition
			checkpoints []byte
			lastSweep   *time.Time
		)
		if err := rows.Scan(
			&p.Chain, &p.Address, &p.Source, &p.FirstSeen, &p.StartPrice,
			&p.ATHPrice, &p.ATHAt, &checkpoints, &p.Status, &p.Mentions,
			&lastSweep, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(checkpoints) > 0 {
			if err := json.Unmarshal(checkpoints, &p.Checkpoints); err != nil {
				return nil, fmt.Errorf("decode checkpoints for %s/%s: %w", p.Chain, p.Address, err)
			}
		}
		p.FirstSeen = p.FirstSeen.UTC()
		p.ATHAt = p.ATHAt.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		if lastSweep != nil {
			p.LastSweepAt = lastSweep.UTC()
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// DeleteResolvedBefore prunes complete and dead positions whose last update
// predates the cutoff. Open positions are never touched.
func (r *PositionRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "position-repo.delete-resolved")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM positions WHERE status <> $1 AND updated_at < $2`,
		string(domain.PositionOpen), cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullIfZeroTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v.UTC()
}

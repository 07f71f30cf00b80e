package repository

import (
	"context"
	"fmt"
	"time"

	"mintwatch/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const createSignalsTable = `
CREATE TABLE IF NOT EXISTS signals (
    id           BIGSERIAL   PRIMARY KEY,
    source       TEXT        NOT NULL,
    chain        TEXT        NOT NULL,
    address      TEXT        NOT NULL,
    first_seen   TIMESTAMPTZ NOT NULL,
    start_price  NUMERIC     NOT NULL,
    horizon      TEXT        NOT NULL,
    roi          NUMERIC     NOT NULL,
    ath_price    NUMERIC     NOT NULL,
    ath_at       TIMESTAMPTZ NOT NULL,
    hours_to_ath NUMERIC     NOT NULL,
    outcome      TEXT        NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_signals_source_created
    ON signals (source, created_at DESC);
`

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

func (r *SignalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createSignalsTable)
	return err
}

// InsertSignal appends one resolved signal and returns it with the assigned
// id. Signals are append-only; nothing updates them after this.
func (r *SignalRepository) InsertSignal(ctx context.Context, sig domain.Signal) (domain.Signal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.insert")
	defer span.End()

	err := r.pool.QueryRow(ctx, `
INSERT INTO signals (
    source, chain, address, first_seen, start_price,
    horizon, roi, ath_price, ath_at, hours_to_ath,
    outcome, created_at
) VALUES (
    $1, $2, $3, $4, $5,
    $6, $7, $8, $9, $10,
    $11, COALESCE($12, NOW())
)
RETURNING id, created_at`,
		sig.Source,
		string(sig.Chain),
		sig.Address,
		sig.FirstSeen.UTC(),
		sig.StartPrice,
		sig.Horizon,
		sig.ROI,
		sig.ATHPrice,
		sig.ATHAt.UTC(),
		sig.HoursToATH,
		string(sig.Outcome),
		nullIfZeroTime(sig.CreatedAt),
	).Scan(&sig.ID, &sig.CreatedAt)
	if err != nil {
		return domain.Signal{}, err
	}
	sig.CreatedAt = sig.CreatedAt.UTC()
	return sig, nil
}

// ListSignals returns signals newest-first, optionally filtered by source.
// A limit of zero means no limit.
func (r *SignalRepository) ListSignals(ctx context.Context, source string, limit int) ([]domain.Signal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list")
	defer span.End()

	query := `
SELECT id, source, chain, address, first_seen, start_price,
       horizon, roi, ath_price, ath_at, hours_to_ath,
       outcome, created_at
FROM signals`
	var args []any
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var s domain.Signal
		if err := rows.Scan(
			&s.ID, &s.Source, &s.Chain, &s.Address, &s.FirstSeen, &s.StartPrice,
			&s.Horizon, &s.ROI, &s.ATHPrice, &s.ATHAt, &s.HoursToATH,
			&s.Outcome, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.FirstSeen = s.FirstSeen.UTC()
		s.ATHAt = s.ATHAt.UTC()
		s.CreatedAt = s.CreatedAt.UTC()
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// DeleteOlderThan prunes signals created before the cutoff and returns how
// many rows went.
func (r *SignalRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.delete-older")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM signals WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

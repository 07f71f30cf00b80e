// Package tracker maintains the longitudinal position table: one record per
// observed (address, chain), swept on a schedule for ATH updates, checkpoint
// ROIs, dead-token detection and signal emission.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/observability"
	"mintwatch/internal/outcome"
	"mintwatch/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

// History answers the time-series questions a sweep asks.
type History interface {
	PriceAt(ctx context.Context, chain domain.Chain, address string, ts time.Time) (float64, error)
	Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error)
}

// SnapshotSource serves current market snapshots for dead-token checks.
type SnapshotSource interface {
	Resolve(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
}

// Store persists positions and signals. The in-memory table stays
// authoritative; persistence failures are logged and retried on the next
// write.
type Store interface {
	UpsertPosition(ctx context.Context, pos domain.TrackedPosition) error
	ListPositions(ctx context.Context) ([]domain.TrackedPosition, error)
	InsertSignal(ctx context.Context, sig domain.Signal) (domain.Signal, error)
	ListSignals(ctx context.Context, source string, limit int) ([]domain.Signal, error)
}

type Config struct {
	Horizons          []string
	DecisionHorizon   string
	WinnerThreshold   float64
	DeadLiquidityUSD  float64
	DeadPriceFraction float64
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Scanned     int      `json:"scanned"`
	ATHUpdates  int      `json:"ath_updates"`
	Checkpoints int      `json:"checkpoints"`
	Signals     int      `json:"signals"`
	Dead        int      `json:"dead"`
	Suspect     int      `json:"suspect"`
	Errors      []string `json:"errors,omitempty"`
}

type Tracker struct {
	tracer    trace.Tracer
	history   History
	snapshots SnapshotSource
	repo      Store
	metrics   *observability.Metrics
	cfg       Config
	now       func() time.Time

	mu        sync.RWMutex
	positions map[string]*domain.TrackedPosition
	signals   []domain.Signal
}

// New builds a tracker. repo may be nil for memory-only operation; a nil now
// defaults to time.Now.
func New(tracer trace.Tracer, history History, snapshots SnapshotSource, repo Store, metrics *observability.Metrics, cfg Config, now func() time.Time) *Tracker {
	cfg.Horizons = domain.SortHorizons(cfg.Horizons)
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = []string{"1h", "24h", "7d", "30d"}
	}
	if cfg.DecisionHorizon == "" {
		cfg.DecisionHorizon = "24h"
	}
	if !containsLabel(cfg.Horizons, cfg.DecisionHorizon) {
		cfg.Horizons = domain.SortHorizons(append(cfg.Horizons, cfg.DecisionHorizon))
	}
	if cfg.WinnerThreshold <= 0 {
		cfg.WinnerThreshold = outcome.DefaultWinnerThreshold
	}
	if cfg.DeadLiquidityUSD <= 0 {
		cfg.DeadLiquidityUSD = 1000
	}
	if cfg.DeadPriceFraction <= 0 || cfg.DeadPriceFraction >= 1 {
		cfg.DeadPriceFraction = 0.01
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		tracer:    tracer,
		history:   history,
		snapshots: snapshots,
		repo:      repo,
		metrics:   metrics,
		cfg:       cfg,
		now:       now,
		positions: make(map[string]*domain.TrackedPosition),
	}
}

// Load restores positions and signals from the store. Call once on boot,
// before the sweep job starts.
func (t *Tracker) Load(ctx context.Context) error {
	if t.repo == nil {
		return nil
	}
	positions, err := t.repo.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	signals, err := t.repo.ListSignals(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("load signals: %w", err)
	}

	t.mu.Lock()
	for i := range positions {
		pos := positions[i]
		t.positions[positionKey(pos.Chain, pos.Address)] = &pos
	}
	t.signals = signals
	open := t.openLocked()
	t.mu.Unlock()

	t.metrics.SetOpenPositions(open)
	log.Printf("tracker: loaded %d positions (%d open), %d signals", len(positions), open, len(signals))
	return nil
}

// Track records one observation. The first sighting of an (address, chain)
// opens a position with its start price anchored to the observation time;
// re-observations only bump the mention counter.
func (t *Tracker) Track(ctx context.Context, obs domain.Observation) (*domain.TrackedPosition, bool, error) {
	ctx, span := t.tracer.Start(ctx, "tracker.track")
	defer span.End()

	addr, err := provider.NormalizeAddress(obs.Chain, obs.Address)
	if err != nil {
		return nil, false, fmt.Errorf("track: %w", err)
	}
	key := positionKey(obs.Chain, addr)
	now := t.now().UTC()

	t.mu.Lock()
	if pos, ok := t.positions[key]; ok {
		pos.Mentions++
		pos.UpdatedAt = now
		out := clonePosition(pos)
		t.mu.Unlock()
		t.metrics.RecordMention(obs.Source)
		t.persistPosition(ctx, out)
		return &out, false, nil
	}
	t.mu.Unlock()

	startPrice, err := t.history.PriceAt(ctx, obs.Chain, addr, obs.ObservedAt)
	if err != nil {
		// Too new for candle history: the live snapshot is the nearest
		// available price to the mention.
		snap, snapErr := t.snapshots.Resolve(ctx, obs.Chain, addr)
		if snapErr != nil {
			return nil, false, fmt.Errorf("track %s/%s: no start price: %v; %v", obs.Chain, addr, err, snapErr)
		}
		startPrice = snap.PriceUSD
	}
	if startPrice <= 0 {
		return nil, false, fmt.Errorf("track %s/%s: start price unavailable", obs.Chain, addr)
	}

	pos := domain.TrackedPosition{
		Address:    addr,
		Chain:      obs.Chain,
		Source:     obs.Source,
		FirstSeen:  obs.ObservedAt.UTC(),
		StartPrice: startPrice,
		ATHPrice:   startPrice,
		ATHAt:      obs.ObservedAt.UTC(),
		Status:     domain.PositionOpen,
		Mentions:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	t.mu.Lock()
	if existing, ok := t.positions[key]; ok {
		// Another observer created it while we were fetching the start price.
		existing.Mentions++
		existing.UpdatedAt = now
		out := clonePosition(existing)
		t.mu.Unlock()
		t.metrics.RecordMention(obs.Source)
		t.persistPosition(ctx, out)
		return &out, false, nil
	}
	t.positions[key] = &pos
	open := t.openLocked()
	out := clonePosition(&pos)
	t.mu.Unlock()

	t.metrics.RecordMention(obs.Source)
	t.metrics.SetOpenPositions(open)
	t.persistPosition(ctx, out)
	log.Printf("tracker: opened %s/%s from %s at %.8g", obs.Chain, addr, obs.Source, startPrice)
	return &out, true, nil
}

// Sweep advances every open position: forward candles since the last sweep
// raise the ATH (never lower it), due checkpoints are computed once, dead
// tokens are flagged, and a signal is emitted when the decision horizon
// resolves or the token dies.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, span := t.tracer.Start(ctx, "tracker.sweep")
	defer span.End()
	started := time.Now()

	now = now.UTC()
	var result SweepResult

	t.mu.RLock()
	batch := make([]domain.TrackedPosition, 0, len(t.positions))
	for _, pos := range t.positions {
		if pos.Status != domain.PositionOpen {
			continue
		}
		batch = append(batch, clonePosition(pos))
	}
	t.mu.RUnlock()
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })

	for i := range batch {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, "sweep aborted: "+err.Error())
			break
		}
		t.sweepPosition(ctx, &batch[i], now, &result)
		result.Scanned++
	}

	status := "ok"
	if len(result.Errors) > 0 {
		status = "partial"
	}
	t.metrics.RecordSweep(status, time.Since(started).Seconds(), t.OpenCount(), now.Unix())
	log.Printf("tracker: sweep scanned=%d ath=%d checkpoints=%d signals=%d dead=%d suspect=%d errors=%d",
		result.Scanned, result.ATHUpdates, result.Checkpoints, result.Signals, result.Dead, result.Suspect, len(result.Errors))
	return result, nil
}

func (t *Tracker) sweepPosition(ctx context.Context, pos *domain.TrackedPosition, now time.Time, result *SweepResult) {
	chain, addr := pos.Chain, pos.Address

	// One snapshot per sweep: it feeds the dead-token check and, when the
	// quality gate flagged it, vetoes this sweep's ATH bump so a poisoned
	// print cannot become the permanent peak.
	snap, snapErr := t.snapshots.Resolve(ctx, chain, addr)
	suspect := snapErr == nil && snap.Suspect
	if suspect {
		result.Suspect++
		log.Printf("tracker: %s/%s snapshot flagged suspect, skipping ATH update this sweep", chain, addr)
	}

	from := pos.LastSweepAt
	if from.IsZero() || from.Before(pos.FirstSeen) {
		from = pos.FirstSeen
	}
	// Overlap one candle: the hour that was still filling last sweep has
	// closed since, and its final high counts.
	if f := from.Add(-time.Hour); !f.Before(pos.FirstSeen) {
		from = f
	}

	candles, err := t.history.Candles(ctx, chain, addr, from, now)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s/%s candles: %v", chain, addr, err))
	} else if !suspect {
		athBumped := false
		for _, candle := range candles {
			if candle.High > pos.ATHPrice {
				pos.ATHPrice = candle.High
				pos.ATHAt = candle.OpenTime
				athBumped = true
			}
		}
		if athBumped {
			result.ATHUpdates++
		}
	}

	for _, label := range t.cfg.Horizons {
		if _, ok := pos.Checkpoint(label); ok {
			continue
		}
		d, err := domain.ParseHorizon(label)
		if err != nil {
			continue
		}
		dueAt := pos.FirstSeen.Add(d)
		if dueAt.After(now) {
			continue
		}
		price, err := t.history.PriceAt(ctx, chain, addr, dueAt)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s checkpoint %s: %v", chain, addr, label, err))
			continue
		}
		pos.Checkpoints = append(pos.Checkpoints, domain.CheckpointROI{
			Horizon:    label,
			DueAt:      dueAt,
			PriceUSD:   price,
			ROI:        pos.CurrentROI(price),
			ComputedAt: now,
		})
		t.metrics.RecordCheckpoint(label)
		result.Checkpoints++
	}

	dead := false
	var lastPrice float64
	if snapErr != nil {
		// Cannot tell dead from unreachable; leave the position alone.
		result.Errors = append(result.Errors, fmt.Sprintf("%s/%s snapshot: %v", chain, addr, snapErr))
	} else {
		lastPrice = snap.PriceUSD
		if snap.LiquidityUSD != nil && *snap.LiquidityUSD < t.cfg.DeadLiquidityUSD {
			dead = true
		}
		if pos.StartPrice > 0 && snap.PriceUSD < t.cfg.DeadPriceFraction*pos.StartPrice {
			dead = true
		}
	}

	decision, hasDecision := pos.Checkpoint(t.cfg.DecisionHorizon)
	if dead || hasDecision {
		roi := decision.ROI
		if !hasDecision {
			roi = pos.CurrentROI(lastPrice)
		}
		label := outcome.Label(roi, dead, t.cfg.WinnerThreshold)
		sig := domain.Signal{
			Source:     pos.Source,
			Address:    addr,
			Chain:      chain,
			FirstSeen:  pos.FirstSeen,
			StartPrice: pos.StartPrice,
			Horizon:    t.cfg.DecisionHorizon,
			ROI:        roi,
			ATHPrice:   pos.ATHPrice,
			ATHAt:      pos.ATHAt,
			HoursToATH: pos.ATHAt.Sub(pos.FirstSeen).Hours(),
			Outcome:    label,
			CreatedAt:  now,
		}
		t.emitSignal(ctx, sig)
		result.Signals++
		if dead {
			pos.Status = domain.PositionDead
			result.Dead++
		} else {
			pos.Status = domain.PositionComplete
		}
	}

	// A suspect sweep leaves the window open so the skipped candles are
	// re-examined once the flag clears.
	if !suspect {
		pos.LastSweepAt = now
	}
	pos.UpdatedAt = now
	t.storePosition(ctx, pos)
}

// storePosition writes the swept copy back, keeping any mention bumps that
// landed while the sweep ran.
func (t *Tracker) storePosition(ctx context.Context, pos *domain.TrackedPosition) {
	key := positionKey(pos.Chain, pos.Address)

	t.mu.Lock()
	if stored, ok := t.positions[key]; ok && stored.Mentions > pos.Mentions {
		pos.Mentions = stored.Mentions
	}
	clone := clonePosition(pos)
	t.positions[key] = &clone
	open := t.openLocked()
	t.mu.Unlock()

	t.metrics.SetOpenPositions(open)
	t.persistPosition(ctx, clonePosition(pos))
}

func (t *Tracker) emitSignal(ctx context.Context, sig domain.Signal) {
	if t.repo != nil {
		persisted, err := t.repo.InsertSignal(ctx, sig)
		if err != nil {
			log.Printf("tracker: persist signal %s/%s failed: %v", sig.Chain, sig.Address, err)
		} else {
			sig = persisted
		}
	}
	t.mu.Lock()
	t.signals = append(t.signals, sig)
	t.mu.Unlock()

	t.metrics.RecordSignal(string(sig.Outcome))
	log.Printf("tracker: signal %s %s/%s roi=%.3f outcome=%s", sig.Source, sig.Chain, sig.Address, sig.ROI, sig.Outcome)
}

// Position returns a copy of one position.
func (t *Tracker) Position(chain domain.Chain, address string) (domain.TrackedPosition, bool) {
	addr, err := provider.NormalizeAddress(chain, address)
	if err != nil {
		return domain.TrackedPosition{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.positions[positionKey(chain, addr)]
	if !ok {
		return domain.TrackedPosition{}, false
	}
	return clonePosition(pos), true
}

// Positions returns copies filtered by status ("" for all), newest first.
// limit <= 0 returns everything.
func (t *Tracker) Positions(status domain.PositionStatus, limit int) []domain.TrackedPosition {
	t.mu.RLock()
	out := make([]domain.TrackedPosition, 0, len(t.positions))
	for _, pos := range t.positions {
		if status != "" && pos.Status != status {
			continue
		}
		out = append(out, clonePosition(pos))
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.After(out[j].FirstSeen) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Signals returns emitted signals for a source ("" for all), newest first.
// limit <= 0 returns everything.
func (t *Tracker) Signals(source string, limit int) []domain.Signal {
	t.mu.RLock()
	out := make([]domain.Signal, 0, len(t.signals))
	for _, sig := range t.signals {
		if source != "" && !strings.EqualFold(sig.Source, source) {
			continue
		}
		out = append(out, sig)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Sources lists the distinct sources with at least one signal.
func (t *Tracker) Sources() []string {
	t.mu.RLock()
	seen := make(map[string]struct{}, 16)
	for _, sig := range t.signals {
		seen[sig.Source] = struct{}{}
	}
	t.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for source := range seen {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// OpenCount reports the number of open positions.
func (t *Tracker) OpenCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.openLocked()
}

func (t *Tracker) openLocked() int {
	n := 0
	for _, pos := range t.positions {
		if pos.Status == domain.PositionOpen {
			n++
		}
	}
	return n
}

func (t *Tracker) persistPosition(ctx context.Context, pos domain.TrackedPosition) {
	if t.repo == nil {
		return
	}
	if err := t.repo.UpsertPosition(ctx, pos); err != nil {
		log.Printf("tracker: persist position %s/%s failed: %v", pos.Chain, pos.Address, err)
	}
}

func positionKey(chain domain.Chain, addr string) string {
	return string(chain) + ":" + addr
}

func clonePosition(p *domain.TrackedPosition) domain.TrackedPosition {
	out := *p
	out.Checkpoints = append([]domain.CheckpointROI(nil), p.Checkpoints...)
	return out
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

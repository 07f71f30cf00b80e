// Package resolver turns (chain, address) pairs into market data snapshots by
// walking a prioritized provider sequence behind a TTL cache, per-provider
// circuit breakers and a shared retry policy.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"mintwatch/internal/breaker"
	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/observability"
	"mintwatch/internal/provider"
	"mintwatch/internal/quality"
	"mintwatch/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable means every eligible provider failed. Callers get this
// sentinel instead of a zero-filled snapshot; unavailable is an expected
// outcome, not an exception.
var ErrUnavailable = errors.New("price unavailable from all providers")

// Source is one upstream client in the failover sequence.
type Source interface {
	Name() string
	Supports(chain domain.Chain) bool
	TokenPrice(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
}

type Resolver struct {
	tracer   trace.Tracer
	sources  []Source
	breakers *breaker.Registry
	limits   *ratelimit.Registry
	retry    *breaker.Policy
	store    *cache.Store
	gate     *quality.Gate
	metrics  *observability.Metrics
	fanout   int
	flight   singleflight.Group
}

// New builds a resolver over sources in priority order. fanout >= 2 queries
// that many of the leading providers concurrently; 1 walks them sequentially.
func New(tracer trace.Tracer, sources []Source, breakers *breaker.Registry, limits *ratelimit.Registry, retry *breaker.Policy, store *cache.Store, gate *quality.Gate, metrics *observability.Metrics, fanout int) *Resolver {
	if fanout < 1 {
		fanout = 1
	}
	return &Resolver{
		tracer:   tracer,
		sources:  sources,
		breakers: breakers,
		limits:   limits,
		retry:    retry,
		store:    store,
		gate:     gate,
		metrics:  metrics,
		fanout:   fanout,
	}
}

// Resolve returns the current snapshot for the token, served from cache
// within the TTL.
func (r *Resolver) Resolve(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	return r.resolve(ctx, chain, address, false)
}

// ResolveFresh bypasses the cache read but still refreshes it on success.
func (r *Resolver) ResolveFresh(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	return r.resolve(ctx, chain, address, true)
}

func (r *Resolver) resolve(ctx context.Context, chain domain.Chain, address string, fresh bool) (*domain.PriceSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.resolve")
	defer span.End()

	addr, err := provider.NormalizeAddress(chain, address)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	key := cacheKey(chain, addr)

	if !fresh {
		if data, ok := r.store.Get(key); ok {
			var snap domain.PriceSnapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				r.metrics.RecordResolve(string(chain), "hit")
				return &snap, nil
			}
		}
	}

	// One provider sequence per key at a time; concurrent callers for the
	// same token share the winner's result.
	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		return r.fetch(ctx, chain, addr, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.PriceSnapshot), nil
}

func (r *Resolver) fetch(ctx context.Context, chain domain.Chain, addr, key string) (*domain.PriceSnapshot, error) {
	eligible := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		if src.Supports(chain) {
			eligible = append(eligible, src)
		}
	}

	var (
		snap    *domain.PriceSnapshot
		reasons []string
	)
	if r.fanout >= 2 && len(eligible) >= 2 {
		head := min(r.fanout, len(eligible))
		snap, reasons = r.fanOut(ctx, eligible[:head], chain, addr)
		if snap == nil {
			var rest []string
			snap, rest = r.sequential(ctx, eligible[head:], chain, addr)
			reasons = append(reasons, rest...)
		}
	} else {
		snap, reasons = r.sequential(ctx, eligible, chain, addr)
	}

	if snap == nil {
		r.metrics.RecordResolve(string(chain), "unavailable")
		log.Printf("resolver: %s/%s unavailable: %s", chain, addr, strings.Join(reasons, "; "))
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(reasons, "; "))
	}

	r.gate.Check(snap)

	if data, err := json.Marshal(snap); err == nil {
		if err := r.store.Set(key, data); err != nil {
			log.Printf("resolver: cache write for %s failed: %v", key, err)
		}
	}
	r.metrics.RecordResolve(string(chain), "resolved")
	return snap, nil
}

// sequential walks sources in priority order and stops at the first usable
// snapshot. Failures become reasons for the unavailable report.
func (r *Resolver) sequential(ctx context.Context, sources []Source, chain domain.Chain, addr string) (*domain.PriceSnapshot, []string) {
	var reasons []string
	for _, src := range sources {
		snap, err := r.call(ctx, src, chain, addr)
		if err != nil {
			reasons = append(reasons, src.Name()+": "+err.Error())
			continue
		}
		return snap, reasons
	}
	return nil, reasons
}

// fanOut queries sources concurrently and waits for all of them. The
// highest-priority success wins; optional fields it lacks are backfilled
// from the other completed snapshots.
func (r *Resolver) fanOut(ctx context.Context, sources []Source, chain domain.Chain, addr string) (*domain.PriceSnapshot, []string) {
	type result struct {
		name string
		snap *domain.PriceSnapshot
		err  error
	}

	results := make(chan result, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			snap, err := r.call(ctx, s, chain, addr)
			results <- result{name: s.Name(), snap: snap, err: err}
		}(src)
	}
	wg.Wait()
	close(results)

	byName := make(map[string]result, len(sources))
	for res := range results {
		byName[res.name] = res
	}

	var (
		winner  *domain.PriceSnapshot
		reasons []string
	)
	for _, src := range sources {
		res := byName[src.Name()]
		if res.err != nil {
			reasons = append(reasons, res.name+": "+res.err.Error())
			continue
		}
		if winner == nil {
			winner = res.snap
			continue
		}
		mergeFields(winner, res.snap)
	}
	return winner, reasons
}

// call runs one provider under its breaker and the shared retry policy.
func (r *Resolver) call(ctx context.Context, src Source, chain domain.Chain, addr string) (*domain.PriceSnapshot, error) {
	br := r.breakers.For(src.Name(), "price")

	var snap *domain.PriceSnapshot
	start := time.Now()
	err := breaker.Do(ctx, br, r.retry, func(ctx context.Context) error {
		s, callErr := src.TokenPrice(ctx, chain, addr)
		if callErr != nil {
			return callErr
		}
		snap = s
		return nil
	})
	r.metrics.RecordProviderCall(src.Name(), "price", observability.OutcomeLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// mergeFields copies optional fields the winner lacks from a losing
// snapshot and records the contribution.
func mergeFields(winner, other *domain.PriceSnapshot) {
	contributed := false
	if winner.MarketCapUSD == nil && other.MarketCapUSD != nil {
		winner.MarketCapUSD = other.MarketCapUSD
		contributed = true
	}
	if winner.LiquidityUSD == nil && other.LiquidityUSD != nil {
		winner.LiquidityUSD = other.LiquidityUSD
		contributed = true
	}
	if winner.Volume24hUSD == nil && other.Volume24hUSD != nil {
		winner.Volume24hUSD = other.Volume24hUSD
		contributed = true
	}
	if winner.PriceChange24h == nil && other.PriceChange24h != nil {
		winner.PriceChange24h = other.PriceChange24h
		contributed = true
	}
	if winner.PairCreatedAt == nil && other.PairCreatedAt != nil {
		winner.PairCreatedAt = other.PairCreatedAt
		contributed = true
	}
	if winner.Symbol == "" && other.Symbol != "" {
		winner.Symbol = other.Symbol
		contributed = true
	}
	if contributed {
		winner.MergedSources = append(winner.MergedSources, other.Source)
	}
}

func cacheKey(chain domain.Chain, addr string) string {
	return string(chain) + ":" + addr
}

// Providers reports per-source operational status for dashboards.
func (r *Resolver) Providers() []domain.ProviderStatus {
	snapshots := r.breakers.Snapshots()
	byKey := make(map[string]breaker.Snapshot, len(snapshots))
	for _, s := range snapshots {
		byKey[s.Name] = s
	}

	out := make([]domain.ProviderStatus, 0, len(r.sources))
	for _, src := range r.sources {
		status := domain.ProviderStatus{Provider: src.Name(), BreakerState: breaker.StateClosed.String()}
		if s, ok := byKey[src.Name()+":price"]; ok {
			status.BreakerState = s.State
			status.Failures = s.Failures
			status.OpenedAt = s.OpenedAt
		}
		if r.limits != nil {
			status.RatePerSec, status.Burst = r.limits.For(src.Name()).Rate()
		}
		out = append(out, status)
	}
	return out
}

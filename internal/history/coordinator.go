// Package history answers OHLC-window and price-at-timestamp queries over a
// provider fallback sequence, backed by an immutable cache: fetched windows,
// picked prices and resolved symbols are historical facts and never refetched.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"mintwatch/internal/breaker"
	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/observability"
	"mintwatch/internal/provider"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ErrNoHistory means no candle exists at or before the requested timestamp.
// Callers get this sentinel instead of a zero-filled price.
var ErrNoHistory = errors.New("no historical data at or before timestamp")

// ErrSymbolUnresolved means no provider could map the address to a trading
// symbol.
var ErrSymbolUnresolved = errors.New("symbol unresolved")

// Candle windows are fetched and cached in fixed segments so repeat queries
// over overlapping ranges hit the same keys.
const segmentSize = 24 * time.Hour

// CandleSource serves hourly OHLCV windows for one upstream provider.
type CandleSource interface {
	Name() string
	Supports(chain domain.Chain) bool
	Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error)
}

// SymbolSource resolves token metadata for one upstream provider.
type SymbolSource interface {
	Name() string
	Supports(chain domain.Chain) bool
	TokenInfo(ctx context.Context, chain domain.Chain, address string) (*provider.TokenInfo, error)
}

type Coordinator struct {
	tracer   trace.Tracer
	candles  []CandleSource
	symbols  []SymbolSource
	breakers *breaker.Registry
	retry    *breaker.Policy
	store    *cache.Store
	metrics  *observability.Metrics
	now      func() time.Time
	flight   singleflight.Group
}

// NewCoordinator builds a coordinator over sources in fallback order. The
// store should be an immutable cache (zero TTL). A nil now defaults to
// time.Now.
func NewCoordinator(tracer trace.Tracer, candles []CandleSource, symbols []SymbolSource, breakers *breaker.Registry, retry *breaker.Policy, store *cache.Store, metrics *observability.Metrics, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		tracer:   tracer,
		candles:  candles,
		symbols:  symbols,
		breakers: breakers,
		retry:    retry,
		store:    store,
		metrics:  metrics,
		now:      now,
	}
}

// Candles returns hourly candles with open times inside [from, to], ascending.
// The range is served from cached day segments; only uncovered segments and
// the still-filling tail touch providers.
func (c *Coordinator) Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error) {
	ctx, span := c.tracer.Start(ctx, "history.candles")
	defer span.End()

	addr, err := provider.NormalizeAddress(chain, address)
	if err != nil {
		return nil, fmt.Errorf("candles: %w", err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("candles: window end %s before start %s", to.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339))
	}

	var out []domain.Candle
	for seg := from.Truncate(segmentSize); !seg.After(to); seg = seg.Add(segmentSize) {
		candles, err := c.segment(ctx, chain, addr, seg)
		if err != nil {
			return nil, err
		}
		for _, candle := range candles {
			if candle.OpenTime.Before(from) || candle.OpenTime.After(to) {
				continue
			}
			out = append(out, candle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

// PriceAt returns the price at ts: the close of the candle whose
// [open_time, close_time) interval contains ts, or of the nearest preceding
// candle; on exact ties the earliest candle wins. Picks from fully closed
// candles are cached immutably.
func (c *Coordinator) PriceAt(ctx context.Context, chain domain.Chain, address string, ts time.Time) (float64, error) {
	ctx, span := c.tracer.Start(ctx, "history.price_at")
	defer span.End()

	addr, err := provider.NormalizeAddress(chain, address)
	if err != nil {
		return 0, fmt.Errorf("price at: %w", err)
	}
	key := fmt.Sprintf("priceat:%s:%s:%d", chain, addr, ts.Unix())
	if data, ok := c.store.Get(key); ok {
		var pt pricePoint
		if err := json.Unmarshal(data, &pt); err == nil {
			return pt.Price, nil
		}
	}

	// A day of history almost always covers ts; widen once for tokens with
	// sparse candles before giving up.
	for _, lookback := range []time.Duration{24 * time.Hour, 7 * 24 * time.Hour} {
		candles, err := c.Candles(ctx, chain, addr, ts.Add(-lookback), ts.Add(time.Hour))
		if err != nil {
			return 0, err
		}
		chosen, ok := pickCandle(candles, ts)
		if !ok {
			continue
		}
		if !chosen.CloseTime.After(c.now()) {
			if data, err := json.Marshal(pricePoint{Price: chosen.Close, CandleOpen: chosen.OpenTime}); err == nil {
				if err := c.store.Set(key, data); err != nil {
					log.Printf("history: cache write for %s failed: %v", key, err)
				}
			}
		}
		return chosen.Close, nil
	}
	return 0, fmt.Errorf("%w: %s/%s at %s", ErrNoHistory, chain, addr, ts.UTC().Format(time.RFC3339))
}

// Symbol resolves the trading symbol for a token, walking symbol sources in
// fallback order. Resolutions are cached immutably; failures are not, so a
// later listing can still resolve.
func (c *Coordinator) Symbol(ctx context.Context, chain domain.Chain, address string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "history.symbol")
	defer span.End()

	addr, err := provider.NormalizeAddress(chain, address)
	if err != nil {
		return "", fmt.Errorf("symbol: %w", err)
	}
	key := "symbol:" + string(chain) + ":" + addr
	if data, ok := c.store.Get(key); ok {
		var rec symbolRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return rec.Symbol, nil
		}
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return c.fetchSymbol(ctx, chain, addr, key)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Coordinator) fetchSymbol(ctx context.Context, chain domain.Chain, addr, key string) (string, error) {
	var reasons []string
	for _, src := range c.symbols {
		if !src.Supports(chain) {
			continue
		}
		info, err := c.callSymbol(ctx, src, chain, addr)
		if err != nil {
			reasons = append(reasons, src.Name()+": "+err.Error())
			continue
		}
		if info == nil || info.Symbol == "" {
			reasons = append(reasons, src.Name()+": no symbol")
			continue
		}
		rec := symbolRecord{Symbol: info.Symbol, TokenName: info.Name, Source: src.Name()}
		if data, err := json.Marshal(rec); err == nil {
			if err := c.store.Set(key, data); err != nil {
				log.Printf("history: cache write for %s failed: %v", key, err)
			}
		}
		return info.Symbol, nil
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no provider serves "+string(chain))
	}
	return "", fmt.Errorf("%w: %s/%s: %s", ErrSymbolUnresolved, chain, addr, strings.Join(reasons, "; "))
}

// segment returns the candles of one day-aligned window, from cache when the
// window was already fetched. Concurrent callers for the same segment share
// one fetch.
func (c *Coordinator) segment(ctx context.Context, chain domain.Chain, addr string, start time.Time) ([]domain.Candle, error) {
	key := fmt.Sprintf("candles:%s:%s:%d", chain, addr, start.Unix())
	if data, ok := c.store.Get(key); ok {
		var candles []domain.Candle
		if err := json.Unmarshal(data, &candles); err == nil {
			return candles, nil
		}
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return c.fetchSegment(ctx, chain, addr, start, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Candle), nil
}

func (c *Coordinator) fetchSegment(ctx context.Context, chain domain.Chain, addr string, start time.Time, key string) ([]domain.Candle, error) {
	end := start.Add(segmentSize)

	var (
		candles []domain.Candle
		served  bool
		reasons []string
	)
	for _, src := range c.candles {
		if !src.Supports(chain) {
			continue
		}
		got, err := c.callCandles(ctx, src, chain, addr, start, end)
		if err != nil {
			reasons = append(reasons, src.Name()+": "+err.Error())
			continue
		}
		served = true
		if len(got) > 0 {
			candles = got
			break
		}
		// An empty window from one provider may still be known to the next.
	}
	if !served {
		if len(reasons) == 0 {
			reasons = append(reasons, "no provider serves "+string(chain))
		}
		return nil, fmt.Errorf("candles %s/%s: %s", chain, addr, strings.Join(reasons, "; "))
	}

	// A window still inside the current day keeps filling; freezing it would
	// hide the candles that land later.
	if end.After(c.now()) {
		return candles, nil
	}
	if data, err := json.Marshal(candles); err == nil {
		if err := c.store.Set(key, data); err != nil {
			log.Printf("history: cache write for %s failed: %v", key, err)
		}
	}
	return candles, nil
}

func (c *Coordinator) callCandles(ctx context.Context, src CandleSource, chain domain.Chain, addr string, from, to time.Time) ([]domain.Candle, error) {
	br := c.breakers.For(src.Name(), "candles")

	var candles []domain.Candle
	start := time.Now()
	err := breaker.Do(ctx, br, c.retry, func(ctx context.Context) error {
		got, callErr := src.Candles(ctx, chain, addr, from, to)
		if callErr != nil {
			return callErr
		}
		candles = got
		return nil
	})
	c.metrics.RecordProviderCall(src.Name(), "candles", observability.OutcomeLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return candles, nil
}

func (c *Coordinator) callSymbol(ctx context.Context, src SymbolSource, chain domain.Chain, addr string) (*provider.TokenInfo, error) {
	br := c.breakers.For(src.Name(), "symbol")

	var info *provider.TokenInfo
	start := time.Now()
	err := breaker.Do(ctx, br, c.retry, func(ctx context.Context) error {
		got, callErr := src.TokenInfo(ctx, chain, addr)
		if callErr != nil {
			return callErr
		}
		info = got
		return nil
	})
	c.metrics.RecordProviderCall(src.Name(), "symbol", observability.OutcomeLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return info, nil
}

// pickCandle selects the candle for ts from an ascending window: the first
// candle containing ts, else the nearest preceding one, keeping the earlier
// candle on equal distance.
func pickCandle(candles []domain.Candle, ts time.Time) (domain.Candle, bool) {
	var (
		best  domain.Candle
		found bool
	)
	for _, candle := range candles {
		if candle.Contains(ts) {
			return candle, true
		}
		if candle.CloseTime.After(ts) {
			continue
		}
		if !found || candle.CloseTime.After(best.CloseTime) {
			best, found = candle, true
		}
	}
	return best, found
}

type pricePoint struct {
	Price      float64   `json:"price"`
	CandleOpen time.Time `json:"candle_open"`
}

type symbolRecord struct {
	Symbol    string `json:"symbol"`
	TokenName string `json:"name,omitempty"`
	Source    string `json:"source"`
}

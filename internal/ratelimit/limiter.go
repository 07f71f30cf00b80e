package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket admission gate for one provider. Tokens refill at
// a fixed per-second rate up to a burst capacity; Acquire suspends the caller
// until the requested cost is available and never over-admits.
type Limiter struct {
	name   string
	bucket *rate.Limiter
	perSec float64
	burst  int
}

// New creates a limiter refilling perSec tokens per second with the given
// burst capacity. The bucket starts full.
func New(name string, perSec float64, burst int) *Limiter {
	if perSec <= 0 {
		perSec = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		name:   name,
		bucket: rate.NewLimiter(rate.Limit(perSec), burst),
		perSec: perSec,
		burst:  burst,
	}
}

// Acquire blocks until cost tokens are available, then debits them. The only
// failure mode is ctx cancellation; a cost above the burst capacity is capped
// to it so the call cannot deadlock.
func (l *Limiter) Acquire(ctx context.Context, cost int) error {
	if cost < 1 {
		cost = 1
	}
	if cost > l.burst {
		cost = l.burst
	}
	if err := l.bucket.WaitN(ctx, cost); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Name returns the provider id this limiter guards.
func (l *Limiter) Name() string { return l.name }

// Rate returns the refill rate and burst capacity for dashboards.
func (l *Limiter) Rate() (perSec float64, burst int) { return l.perSec, l.burst }

// Registry hands out one shared limiter per provider id.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	defaults map[string]Setting
}

// Setting is the bucket shape for one provider.
type Setting struct {
	PerSec float64
	Burst  int
}

// DefaultSettings reflect each provider's published free-tier budget, kept a
// notch under the hard limit.
var DefaultSettings = map[string]Setting{
	"dexscreener":   {PerSec: 4, Burst: 8},
	"geckoterminal": {PerSec: 0.4, Burst: 4},
	"birdeye":       {PerSec: 0.8, Burst: 4},
	"coingecko":     {PerSec: 0.15, Burst: 3},
	"onchain":       {PerSec: 2, Burst: 5},
	"reddit":        {PerSec: 0.5, Burst: 2},
	"rss":           {PerSec: 1, Burst: 3},
}

// NewRegistry creates a registry. Overrides replace the default bucket shape
// for the named providers.
func NewRegistry(overrides map[string]Setting) *Registry {
	defaults := make(map[string]Setting, len(DefaultSettings))
	for name, s := range DefaultSettings {
		defaults[name] = s
	}
	for name, s := range overrides {
		defaults[name] = s
	}
	return &Registry{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

// For returns the shared limiter for a provider id, creating it on first use.
// Unknown providers get a conservative 1 req/s bucket.
func (r *Registry) For(name string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		return l
	}
	s, ok := r.defaults[name]
	if !ok {
		s = Setting{PerSec: 1, Burst: 1}
	}
	l := New(name, s.PerSec, s.Burst)
	r.limiters[name] = l
	return l
}

package breaker

import (
	"sort"
	"sync"
	"time"
)

// Registry owns one breaker per (provider, operation) key.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry handing out breakers with shared threshold
// and cooldown settings. A nil now defaults to time.Now.
func NewRegistry(threshold int, cooldown time.Duration, now func() time.Time) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

// For returns the breaker keyed provider:operation, creating it on first use.
func (r *Registry) For(provider, operation string) *Breaker {
	key := provider + ":" + operation

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := New(key, r.threshold, r.cooldown, r.now)
	r.breakers[key] = b
	return b
}

// Snapshots returns all breaker states sorted by key, for dashboards.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	keys := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		keys = append(keys, k)
	}
	breakers := make([]*Breaker, 0, len(keys))
	sort.Strings(keys)
	for _, k := range keys {
		breakers = append(breakers, r.breakers[k])
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

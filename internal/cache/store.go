package cache

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Entry is one cached value. A zero TTL means the entry never expires
// (immutable historical facts).
type Entry struct {
	Data       json.RawMessage `json:"data"`
	StoredAt   time.Time       `json:"stored_at"`
	TTLSeconds int64           `json:"ttl_seconds,omitempty"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(e.StoredAt) >= time.Duration(e.TTLSeconds)*time.Second
}

// Backend persists a store's full entry map.
type Backend interface {
	Load(name string) (map[string]Entry, error)
	Save(name string, entries map[string]Entry) error
}

// Store is a key-value cache with TTL expiry and batched persistence: every
// write marks the store dirty, and after flushEvery dirty writes the whole
// map is saved to the backend. Flush forces a save regardless of the counter
// and must be called on shutdown. A failed save is logged, keeps the dirty
// count, and is retried on the next trigger.
type Store struct {
	name       string
	defaultTTL time.Duration
	flushEvery int
	backend    Backend
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
	dirty   int

	hits    uint64
	misses  uint64
	flushes uint64
}

// NewStore creates a store and loads any previously persisted entries. A nil
// now defaults to time.Now; defaultTTL 0 makes every entry immutable.
func NewStore(name string, defaultTTL time.Duration, flushEvery int, backend Backend, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		name:       name,
		defaultTTL: defaultTTL,
		flushEvery: flushEvery,
		backend:    backend,
		now:        now,
		entries:    make(map[string]Entry),
	}
	if backend != nil {
		loaded, err := backend.Load(name)
		if err != nil {
			log.Printf("cache %s: load failed, starting empty: %v", name, err)
		} else if len(loaded) > 0 {
			s.entries = loaded
			log.Printf("cache %s: loaded %d entries", name, len(loaded))
		}
	}
	return s
}

// Get returns the raw value for key if present and unexpired. An expired
// entry is never returned as a hit.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.Expired(s.now()) {
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		return nil, false
	}
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
	return entry.Data, true
}

// Set stores data under key with the store's default TTL and counts one
// dirty write. Crossing the flush threshold triggers a synchronous flush.
func (s *Store) Set(key string, data json.RawMessage) error {
	ttl := int64(0)
	if s.defaultTTL > 0 {
		ttl = int64(s.defaultTTL / time.Second)
	}

	s.mu.Lock()
	s.entries[key] = Entry{Data: data, StoredAt: s.now(), TTLSeconds: ttl}
	s.dirty++
	shouldFlush := s.flushEvery > 0 && s.dirty >= s.flushEvery
	s.mu.Unlock()

	if shouldFlush {
		return s.Flush()
	}
	return nil
}

// Flush persists the current entry map if any writes are buffered, dropping
// expired entries on the way so neither memory nor the persisted file grows
// without bound. On backend failure the buffered count is restored so the
// next trigger retries.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.dirty == 0 || s.backend == nil {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	snapshot := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		if v.Expired(now) {
			delete(s.entries, k)
			continue
		}
		snapshot[k] = v
	}
	pending := s.dirty
	s.dirty = 0
	s.mu.Unlock()

	if err := s.backend.Save(s.name, snapshot); err != nil {
		s.mu.Lock()
		s.dirty += pending
		s.mu.Unlock()
		log.Printf("cache %s: flush failed (%d writes buffered): %v", s.name, pending, err)
		return err
	}

	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

// Stats is a point-in-time counter view for dashboards.
type Stats struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Dirty   int    `json:"dirty"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Flushes uint64 `json:"flushes"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Name:    s.name,
		Entries: len(s.entries),
		Dirty:   s.dirty,
		Hits:    s.hits,
		Misses:  s.misses,
		Flushes: s.flushes,
	}
}

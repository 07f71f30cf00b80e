package cache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestStore_SetFlushesAfterThreshold(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	store := NewStore("live", 5*time.Minute, 10, backend, nil)

	for i := 0; i < 9; i++ {
		if err := store.Set(key(i), json.RawMessage(`{"p":1}`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if backend.saveCalls != 0 {
		t.Fatalf("expected no flush before threshold, got %d saves", backend.saveCalls)
	}

	if err := store.Set(key(9), json.RawMessage(`{"p":1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.saveCalls != 1 {
		t.Fatalf("expected flush at threshold, got %d saves", backend.saveCalls)
	}
	if len(backend.lastSaved) != 10 {
		t.Fatalf("expected 10 persisted entries, got %d", len(backend.lastSaved))
	}
}

func TestStore_ExplicitFlushPersistsPartialBatch(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	store := NewStore("live", 5*time.Minute, 10, backend, nil)

	for i := 0; i < 3; i++ {
		_ = store.Set(key(i), json.RawMessage(`{}`))
	}
	if backend.saveCalls != 0 {
		t.Fatalf("expected no flush yet, got %d saves", backend.saveCalls)
	}

	if err := store.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.saveCalls != 1 || len(backend.lastSaved) != 3 {
		t.Fatalf("expected one save with 3 entries, got %d saves with %d entries", backend.saveCalls, len(backend.lastSaved))
	}
}

func TestStore_FlushWithoutWritesIsNoop(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	store := NewStore("live", 5*time.Minute, 10, backend, nil)

	if err := store.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.saveCalls != 0 {
		t.Fatalf("expected no save with clean store, got %d", backend.saveCalls)
	}
}

func TestStore_ExpiredEntryIsNeverAHit(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	store := NewStore("live", 300*time.Second, 0, nil, clock.Now)

	_ = store.Set("sol:abc", json.RawMessage(`{"price":1.5}`))

	if _, ok := store.Get("sol:abc"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clock.Advance(299 * time.Second)
	if _, ok := store.Get("sol:abc"); !ok {
		t.Fatal("expected hit just before TTL")
	}

	clock.Advance(1 * time.Second)
	if _, ok := store.Get("sol:abc"); ok {
		t.Fatal("expected miss once TTL elapsed")
	}

	stats := store.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	store := NewStore("historical", 0, 0, nil, clock.Now)

	_ = store.Set("eth:0xdead:1h", json.RawMessage(`[]`))

	clock.Advance(1000 * time.Hour)
	if _, ok := store.Get("eth:0xdead:1h"); !ok {
		t.Fatal("expected immutable entry to survive")
	}
}

func TestStore_FailedFlushKeepsWritesBuffered(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.saveErr = errors.New("disk full")
	store := NewStore("live", 5*time.Minute, 10, backend, nil)

	for i := 0; i < 10; i++ {
		_ = store.Set(key(i), json.RawMessage(`{}`))
	}
	if backend.saveCalls != 1 {
		t.Fatalf("expected one failed save attempt, got %d", backend.saveCalls)
	}
	if got := store.Stats().Dirty; got != 10 {
		t.Fatalf("expected buffered writes restored, got dirty=%d", got)
	}

	backend.saveErr = nil
	_ = store.Set(key(10), json.RawMessage(`{}`))
	if backend.saveCalls != 2 {
		t.Fatalf("expected retry on next trigger, got %d saves", backend.saveCalls)
	}
	if got := store.Stats().Dirty; got != 0 {
		t.Fatalf("expected dirty cleared after successful save, got %d", got)
	}
	if len(backend.lastSaved) != 11 {
		t.Fatalf("expected 11 persisted entries, got %d", len(backend.lastSaved))
	}
}

func TestStore_FlushPrunesExpiredEntries(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	backend := newFakeBackend()
	store := NewStore("live", 300*time.Second, 0, backend, clock.Now)

	_ = store.Set("stale", json.RawMessage(`{"p":1}`))
	clock.Advance(301 * time.Second)
	_ = store.Set("fresh", json.RawMessage(`{"p":2}`))

	if err := store.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.lastSaved["stale"]; ok {
		t.Fatal("expired entry persisted")
	}
	if _, ok := backend.lastSaved["fresh"]; !ok {
		t.Fatal("live entry missing from the flush")
	}
	if got := store.Stats().Entries; got != 1 {
		t.Fatalf("expected the expired entry dropped in memory, got %d entries", got)
	}
}

func TestStore_LoadsPersistedEntries(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.loadResp = map[string]Entry{
		"sol:abc": {Data: json.RawMessage(`{"price":2}`), StoredAt: time.Now(), TTLSeconds: 0},
	}
	store := NewStore("historical", 0, 10, backend, nil)

	data, ok := store.Get("sol:abc")
	if !ok {
		t.Fatal("expected persisted entry to be served")
	}
	if string(data) != `{"price":2}` {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestStore_LoadFailureStartsEmpty(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.loadErr = errors.New("corrupt file")
	store := NewStore("live", time.Minute, 10, backend, nil)

	if _, ok := store.Get("anything"); ok {
		t.Fatal("expected empty store after failed load")
	}
}

func key(i int) string {
	return string(rune('a' + i))
}

type fakeBackend struct {
	loadResp map[string]Entry
	loadErr  error
	saveErr  error

	saveCalls int
	lastSaved map[string]Entry
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func (f *fakeBackend) Load(name string) (map[string]Entry, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.loadResp != nil {
		return f.loadResp, nil
	}
	return map[string]Entry{}, nil
}

func (f *fakeBackend) Save(name string, entries map[string]Entry) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.lastSaved = entries
	return nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

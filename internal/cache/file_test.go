package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	t.Parallel()

	backend := NewFileBackend(t.TempDir())
	entries := map[string]Entry{
		"eth:0xabc": {Data: json.RawMessage(`{"price":1.25}`), StoredAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), TTLSeconds: 300},
		"sol:xyz":   {Data: json.RawMessage(`[1,2,3]`), StoredAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	if err := backend.Save("live", entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := backend.Load("live")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	if string(loaded["eth:0xabc"].Data) != `{"price":1.25}` {
		t.Fatalf("unexpected payload: %s", loaded["eth:0xabc"].Data)
	}
	if loaded["eth:0xabc"].TTLSeconds != 300 {
		t.Fatalf("expected TTL to survive, got %d", loaded["eth:0xabc"].TTLSeconds)
	}
}

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	backend := NewFileBackend(t.TempDir())
	loaded, err := backend.Load("never-written")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(loaded))
	}
}

func TestFileBackend_CorruptFileReturnsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "live.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backend := NewFileBackend(dir)
	if _, err := backend.Load("live"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFileBackend_SaveCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	backend := NewFileBackend(dir)

	if err := backend.Save("live", map[string]Entry{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "live.json")); err != nil {
		t.Fatalf("expected cache file on disk: %v", err)
	}
}

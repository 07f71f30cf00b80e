package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend persists each store as a JSON file under dir, written through
// a temp file and an atomic rename so readers never see a partial file.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) path(name string) string {
	return filepath.Join(b.dir, name+".json")
}

func (b *FileBackend) Load(name string) (map[string]Entry, error) {
	data, err := os.ReadFile(b.path(name))
	if os.IsNotExist(err) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file %s: %w", b.path(name), err)
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", b.path(name), err)
	}
	return entries, nil
}

func (b *FileBackend) Save(name string, entries map[string]Entry) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", b.dir, err)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", name, err)
	}

	final := b.path(name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename cache file %s: %w", final, err)
	}
	return nil
}

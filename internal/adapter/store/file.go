package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every entry in one JSON document on disk. Each write
// replaces the document through a temp file and rename, so a crash never
// leaves a half-written file behind.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]json.RawMessage
}

// NewFileStore loads path, creating its directory when needed. A document
// that cannot be parsed is moved aside to path+".corrupt" and the store
// starts empty.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	fs := &FileStore{path: path, entries: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage file: %w", err)
	}
	if len(raw) == 0 {
		return fs, nil
	}

	if err := json.Unmarshal(raw, &fs.entries); err != nil {
		slog.Warn("storage file is malformed, starting empty", "path", path, "error", err)
		fs.entries = make(map[string]json.RawMessage)
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
			slog.Warn("could not move malformed storage file aside", "path", path, "error", renameErr)
		}
	}
	return fs, nil
}

// Get implements port.KVStore.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements port.KVStore.
func (f *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return f.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany implements port.KVStore. The document on disk is updated once for
// all entries.
func (f *FileStore) SetMany(_ context.Context, entries map[string][]byte) error {
	for key, value := range entries {
		if !json.Valid(value) {
			return fmt.Errorf("set %s: value is not valid JSON", key)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]json.RawMessage, len(f.entries)+len(entries))
	for k, v := range f.entries {
		next[k] = v
	}
	for k, v := range entries {
		next[k] = append(json.RawMessage(nil), v...)
	}

	if err := f.flush(next); err != nil {
		return err
	}
	f.entries = next
	return nil
}

// Delete implements port.KVStore.
func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]json.RawMessage, len(f.entries))
	changed := false
	for k, v := range f.entries {
		next[k] = v
	}
	for _, k := range keys {
		if _, ok := next[k]; ok {
			delete(next, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	if err := f.flush(next); err != nil {
		return err
	}
	f.entries = next
	return nil
}

func (f *FileStore) flush(entries map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}

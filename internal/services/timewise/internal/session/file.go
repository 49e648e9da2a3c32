package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const fileDataType = "session"

// File keeps every key in its own json file under a data directory.
type File struct {
	dir string
	ttl time.Duration
	mu  sync.RWMutex
	now func() time.Time
}

type fileEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func NewFile(dir string, ttl time.Duration) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	return &File{dir: dir, ttl: ttl, now: time.Now}, nil
}

func (f *File) filePath(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(f.dir, fileDataType+"."+name+".json")
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.RLock()
	b, err := os.ReadFile(f.filePath(key))
	f.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read %s: %w", key, err)
	}

	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return "", fmt.Errorf("decode %s: %w", key, err)
	}

	if !e.ExpiresAt.IsZero() && f.now().After(e.ExpiresAt) {
		return "", ErrNotFound
	}

	return e.Value, nil
}

func (f *File) Set(_ context.Context, key, val string) error {
	e := fileEntry{Value: val}
	if f.ttl > 0 {
		e.ExpiresAt = f.now().Add(f.ttl)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), f.filePath(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", key, err)
	}

	return nil
}

func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, k := range keys {
		err := os.Remove(f.filePath(k))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}

	return errors.Join(errs...)
}

// Package filestore implements the file storage backend. Each key is one
// file in DataDir; writes use the temp-file, fsync, rename pattern so a
// crash never leaves a half-written blob behind.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// blobExt is appended to every escaped key.
const blobExt = ".json"

// Backend implements types.Storage with one file per key.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	dataDir  string
}

// NewBackend creates a new file backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach validates config and creates DataDir if it does not exist.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	b.dataDir = dataDir
	b.attached = true
	return nil
}

// Detach marks the backend detached. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attached = false
	return nil
}

// Get reads the file for key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, types.ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStorageDetached
	}

	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, types.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Set atomically replaces the file for key.
func (b *Backend) Set(ctx context.Context, key string, blob []byte) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStorageDetached
	}
	return writeAtomic(b.path(key), blob)
}

// path maps a key to its file. Keys are query-escaped so namespaced keys
// such as "@GoMarket:products" are safe file names on every platform.
func (b *Backend) path(key string) string {
	return filepath.Join(b.dataDir, FileName(key))
}

// FileName returns the file name used for key inside DataDir.
func FileName(key string) string {
	return url.QueryEscape(key) + blobExt
}

// writeAtomic writes data to path using the temp-file, fsync, rename
// pattern.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".blob-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

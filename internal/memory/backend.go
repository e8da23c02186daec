// Package memory implements an in-process Storage backend. Blobs live in a
// map and are lost on Detach; it backs tests and ephemeral carts.
package memory

import (
	"context"
	"sync"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// Backend implements types.Storage over a map.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	blobs    map[string][]byte
}

// NewBackend creates a new memory backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach initializes an empty blob map.
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

	b.blobs = make(map[string][]byte)
	b.attached = true
	return nil
}

// Detach drops every stored blob. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attached = false
	b.blobs = nil
	return nil
}

// Get returns a copy of the blob stored under key.
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
	blob, ok := b.blobs[key]
	if !ok {
		return nil, types.ErrBlobNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// Set stores a copy of blob under key.
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
	cp := make([]byte, len(blob))
	copy(cp, blob)
	b.blobs[key] = cp
	return nil
}

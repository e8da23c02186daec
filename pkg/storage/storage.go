// Package storage provides the public API for creating cart storage
// backends. It exposes the factory functions while keeping backend
// implementations internal.
package storage

import (
	"fmt"

	"github.com/mesh-intelligence/gomarket/internal/filestore"
	"github.com/mesh-intelligence/gomarket/internal/memory"
	"github.com/mesh-intelligence/gomarket/internal/redis"
	"github.com/mesh-intelligence/gomarket/internal/sqlite"
	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// NewBackend creates an unattached backend for the given backend name.
// Returns ErrBackendEmpty or ErrBackendUnknown for unsupported names.
func NewBackend(name string) (types.Storage, error) {
	switch name {
	case types.BackendSQLite:
		return sqlite.NewBackend(), nil
	case types.BackendFile:
		return filestore.NewBackend(), nil
	case types.BackendRedis:
		return redis.NewBackend(), nil
	case types.BackendMemory:
		return memory.NewBackend(), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, name)
	}
}

// Open creates the backend named by config.Backend and attaches it.
// The caller must Detach the returned storage.
//
// Example:
//
//	store, err := storage.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".gomarket-db",
//	})
//	defer store.Detach()
func Open(config types.Config) (types.Storage, error) {
	backend, err := NewBackend(config.Backend)
	if err != nil {
		return nil, err
	}
	if err := backend.Attach(config); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", config.Backend, err)
	}
	return backend, nil
}

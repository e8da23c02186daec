package types

import (
	"context"
	"errors"
)

// Storage is a key-value store holding persisted cart blobs.
// Callers attach to a backend, read and write whole blobs by key, and detach
// when done.
type Storage interface {
	// Attach connects the backend described by config. Creates DataDir for
	// file-based backends. Returns ErrAlreadyAttached if called while
	// already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, Get and Set return ErrStorageDetached.
	Detach() error

	// Get returns the blob stored under key.
	// Returns ErrBlobNotFound if nothing is stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the blob stored under key.
	Set(ctx context.Context, key string, blob []byte) error
}

// Storage lifecycle errors.
var (
	ErrStorageDetached = errors.New("storage is detached")
	ErrAlreadyAttached = errors.New("storage is already attached")
	ErrBlobNotFound    = errors.New("blob not found")
	ErrInvalidKey      = errors.New("invalid storage key")
)

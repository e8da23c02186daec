// Package sqlite implements the SQLite storage backend for cart blobs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// dbFileName is the database file created inside DataDir.
const dbFileName = "cart.db"

// Backend implements types.Storage using a single SQLite key-value table.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach initializes the backend with the given configuration.
// Creates DataDir if it does not exist, opens the database and applies the
// schema. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	// Create DataDir if needed
	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFileName))
	if err != nil {
		return err
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under the persister.
	db.SetMaxOpenConns(1)

	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true
	return nil
}

// Detach closes the SQLite connection. After Detach, all operations return
// ErrStorageDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil // idempotent
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	return nil
}

// Get returns the blob stored under key.
// Returns ErrBlobNotFound if no row exists.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, types.ErrInvalidKey
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStorageDetached
	}

	var blob []byte
	err := b.db.QueryRowContext(ctx, selectBlob, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", key, err)
	}
	return blob, nil
}

// Set inserts or replaces the blob stored under key.
func (b *Backend) Set(ctx context.Context, key string, blob []byte) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStorageDetached
	}

	if blob == nil {
		blob = []byte{}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := b.db.ExecContext(ctx, upsertBlob, key, blob, now); err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}

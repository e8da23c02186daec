// Package redis implements the Redis storage backend. Each cart blob is a
// plain string value stored under its storage key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// pingTimeout bounds the connectivity check performed by Attach.
const pingTimeout = 5 * time.Second

// Backend implements types.Storage on a Redis server.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	client   *redis.Client
}

// NewBackend creates a new Redis backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach connects to the server named by config.RedisConfig and pings it.
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

	rc := config.GetRedisConfig()
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("ping redis %s: %w", rc.Addr, err)
	}

	b.client = client
	b.attached = true
	return nil
}

// Detach closes the client. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	b.attached = false
	return err
}

// Get returns the value stored under key.
// Returns ErrBlobNotFound when the key does not exist.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, types.ErrInvalidKey
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStorageDetached
	}

	blob, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return blob, nil
}

// Set stores blob under key with no expiration.
func (b *Backend) Set(ctx context.Context, key string, blob []byte) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrStorageDetached
	}

	if err := b.client.Set(ctx, key, blob, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

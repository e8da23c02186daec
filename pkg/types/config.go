package types

import (
	"errors"
	"strings"
)

// Config holds backend selection and cart store parameters.
type Config struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// StorageKey is the key the whole cart blob is stored under.
	StorageKey string `json:"storage_key" yaml:"storage_key" mapstructure:"storage_key"`

	// SyncStrategy controls when snapshots are written: immediate or on_close.
	SyncStrategy string `json:"sync_strategy" yaml:"sync_strategy" mapstructure:"sync_strategy"`

	// WriteRetries is the number of extra attempts after a failed write.
	// nil means DefaultWriteRetries.
	WriteRetries *int `json:"write_retries,omitempty" yaml:"write_retries,omitempty" mapstructure:"write_retries"`

	// OnCorrupt selects the hydration policy for an undecodable blob.
	OnCorrupt string `json:"on_corrupt" yaml:"on_corrupt" mapstructure:"on_corrupt"`

	RedisConfig *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty" mapstructure:"redis"`
}

// RedisConfig holds connection parameters for the redis backend.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `json:"db" yaml:"db" mapstructure:"db"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Sync strategies.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
)

// Hydration policies for a blob that cannot be decoded.
const (
	OnCorruptReset = "reset"
	OnCorruptFail  = "fail"
)

// Defaults applied by the getters below.
const (
	DefaultStorageKey   = "@GoMarket:products"
	DefaultWriteRetries = 1
	DefaultRedisAddr    = "localhost:6379"
)

// Config validation errors.
var (
	ErrBackendEmpty        = errors.New("backend must not be empty")
	ErrBackendUnknown      = errors.New("unknown backend")
	ErrSyncStrategyUnknown = errors.New("unknown sync strategy")
	ErrOnCorruptUnknown    = errors.New("unknown on_corrupt policy")
	ErrWriteRetriesInvalid = errors.New("write retries must not be negative")
	ErrStorageKeyEmpty     = errors.New("storage key must not be blank")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendFile:   true,
	BackendRedis:  true,
	BackendMemory: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure. Empty optional fields are valid; the getters
// fill in defaults.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	switch c.SyncStrategy {
	case "", SyncImmediate, SyncOnClose:
	default:
		return ErrSyncStrategyUnknown
	}
	switch c.OnCorrupt {
	case "", OnCorruptReset, OnCorruptFail:
	default:
		return ErrOnCorruptUnknown
	}
	if c.StorageKey != "" && strings.TrimSpace(c.StorageKey) == "" {
		return ErrStorageKeyEmpty
	}
	if c.WriteRetries != nil && *c.WriteRetries < 0 {
		return ErrWriteRetriesInvalid
	}
	return nil
}

// GetStorageKey returns the storage key, defaulting to DefaultStorageKey.
func (c Config) GetStorageKey() string {
	if c.StorageKey == "" {
		return DefaultStorageKey
	}
	return c.StorageKey
}

// GetSyncStrategy returns the sync strategy, defaulting to SyncImmediate.
func (c Config) GetSyncStrategy() string {
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}

// GetWriteRetries returns the retry count, defaulting to DefaultWriteRetries.
func (c Config) GetWriteRetries() int {
	if c.WriteRetries == nil {
		return DefaultWriteRetries
	}
	return *c.WriteRetries
}

// GetOnCorrupt returns the corrupt-blob policy, defaulting to OnCorruptReset.
func (c Config) GetOnCorrupt() string {
	if c.OnCorrupt == "" {
		return OnCorruptReset
	}
	return c.OnCorrupt
}

// GetRedisConfig returns the redis parameters, defaulting the address to
// DefaultRedisAddr.
func (c Config) GetRedisConfig() RedisConfig {
	var rc RedisConfig
	if c.RedisConfig != nil {
		rc = *c.RedisConfig
	}
	if rc.Addr == "" {
		rc.Addr = DefaultRedisAddr
	}
	return rc
}

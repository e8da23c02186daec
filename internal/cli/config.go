package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mesh-intelligence/gomarket/internal/paths"
	"github.com/mesh-intelligence/gomarket/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	// envPrefix makes GOMARKET_BACKEND, GOMARKET_STORAGE_KEY and friends
	// override config.yaml.
	envPrefix = "GOMARKET"

	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeyStorageKey    = "storage_key"
	cfgKeySyncStrategy  = "sync_strategy"
	cfgKeyWriteRetries  = "write_retries"
	cfgKeyOnCorrupt     = "on_corrupt"
	cfgKeyRedisAddr     = "redis.addr"
	cfgKeyRedisPassword = "redis.password"
	cfgKeyRedisDB       = "redis.db"
)

// envKeys are the keys GOMARKET_* variables override. data_dir is left to
// paths.ResolveDataDir so that config.yaml beats GOMARKET_DATA_DIR.
var envKeys = []string{
	cfgKeyBackend,
	cfgKeyStorageKey,
	cfgKeySyncStrategy,
	cfgKeyWriteRetries,
	cfgKeyOnCorrupt,
	cfgKeyRedisAddr,
	cfgKeyRedisPassword,
	cfgKeyRedisDB,
}

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# GoMarket cart configuration

# Storage backend: sqlite, file, redis or memory
backend: sqlite

# Key the whole cart is stored under
storage_key: "@GoMarket:products"

# When to write: immediate or on_close
sync_strategy: immediate

# Extra attempts after a failed write before it is dropped
write_retries: 1

# Undecodable stored cart: reset (start empty, warn) or fail
on_corrupt: reset

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# redis:
#   addr: localhost:6379
#   db: 0
`

// newViper returns a Viper instance with the cart defaults and environment
// overrides applied.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyDataDir, "")
	v.SetDefault(cfgKeyStorageKey, types.DefaultStorageKey)
	v.SetDefault(cfgKeySyncStrategy, types.SyncImmediate)
	v.SetDefault(cfgKeyWriteRetries, types.DefaultWriteRetries)
	v.SetDefault(cfgKeyOnCorrupt, types.OnCorruptReset)
	v.SetDefault(cfgKeyRedisAddr, types.DefaultRedisAddr)
	v.SetDefault(cfgKeyRedisPassword, "")
	v.SetDefault(cfgKeyRedisDB, 0)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// loadConfig reads config.yaml from the resolved config directory using
// Viper, resolves the data directory and validates the result. It creates
// the config directory and a default config.yaml on first run. A missing
// config.yaml is not an error.
func (a *app) loadConfig() (types.Config, error) {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return types.Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := newViper()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.DataDir, err = paths.ResolveDataDir(a.flags.dataDir, cfg.DataDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}

	a.logger.Debug("config loaded",
		zap.String("config_dir", configDir),
		zap.String("backend", cfg.Backend),
		zap.String("data_dir", cfg.DataDir))
	return cfg, nil
}

// ensureDefaultConfigFile creates the config directory and a default
// config.yaml if the file does not exist.
func ensureDefaultConfigFile(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(configDir, paths.ConfigFileName)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// newLogger builds the production zap logger. Only warnings are printed
// unless verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/gomarket/internal/cart"
	"github.com/mesh-intelligence/gomarket/pkg/types"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cart storage",
		Long:  "Create the configuration and data directories, then initialize the storage backend and load the cart once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(a.config.DataDir, 0o755); err != nil {
				return sysError(fmt.Errorf("create data directory: %w", err))
			}

			var count int
			err := a.withStore(cmd.Context(), func(ctx context.Context) error {
				count = len(cart.MustFromContext(ctx).Products())
				return nil
			})
			if err != nil {
				return err
			}

			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"backend":  a.config.Backend,
					"data_dir": a.config.DataDir,
					"items":    count,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cart initialized (%s backend, %d items)\n", a.config.Backend, count)
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after applying config.yaml, GOMARKET_* environment variables and flags.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), effectiveConfig(a.config))
			}
			data, err := yaml.Marshal(effectiveConfig(a.config))
			if err != nil {
				return sysError(fmt.Errorf("marshal config: %w", err))
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// effectiveConfig returns cfg with every default filled in.
func effectiveConfig(cfg types.Config) types.Config {
	retries := cfg.GetWriteRetries()
	redis := cfg.GetRedisConfig()
	cfg.StorageKey = cfg.GetStorageKey()
	cfg.SyncStrategy = cfg.GetSyncStrategy()
	cfg.OnCorrupt = cfg.GetOnCorrupt()
	cfg.WriteRetries = &retries
	if cfg.Backend == types.BackendRedis {
		cfg.RedisConfig = &redis
	} else {
		cfg.RedisConfig = nil
	}
	return cfg
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cheatgate/cheatgate/internal/config"
	"github.com/cheatgate/cheatgate/internal/logging"
	"github.com/cheatgate/cheatgate/internal/store"
	"github.com/cheatgate/cheatgate/internal/store/sqlite"
	"github.com/cheatgate/cheatgate/internal/xdg"
)

const serviceName = "cheatgate"

type rootOptions struct {
	configFile string
	deps       *Deps
}

// NewRootCmd creates the root command for the cheatgate CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	opts := &rootOptions{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "cheatgate",
		Short: "Cheatgate - cheat code redemption service",
		Long: `Cheatgate logs members in by email, issues signed bearer tokens and
redeems cheat codes against per-member usage limits and tier restrictions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/cheatgate/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newValidateSeedsCmd())
	cmd.AddCommand(newTokenCmd(opts))

	return cmd
}

func (o *rootOptions) loadConfig(cmd *cobra.Command, scope config.Scope) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:  o.configFile,
		Flags: cmd.Flags(),
		Scope: scope,
	})
	if err != nil {
		return nil, oops.With("operation", "load configuration").Wrap(err)
	}
	return cfg, nil
}

func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, oops.With("operation", "set up logging").Wrap(err)
	}
	return logger, nil
}

func (o *rootOptions) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	driver := store.Driver(cfg.Store.Driver)
	if driver == store.DriverSQLite && cfg.Store.DSN != sqlite.MemoryPath {
		if err := xdg.EnsureDir(filepath.Dir(cfg.Store.DSN)); err != nil {
			return nil, oops.Code("STORE_DIR_FAILED").With("path", cfg.Store.DSN).Wrap(err)
		}
	}

	backend, err := o.deps.StoreOpener(ctx, store.Options{
		Driver:         driver,
		DSN:            cfg.Store.DSN,
		MaxConns:       cfg.Store.MaxConns,
		ConnectTimeout: cfg.Store.Timeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, oops.With("operation", "open store").Wrap(err)
	}
	return backend, nil
}

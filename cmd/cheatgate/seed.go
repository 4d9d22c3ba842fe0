// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cheatgate/cheatgate/internal/config"
	"github.com/cheatgate/cheatgate/internal/seed"
	"github.com/cheatgate/cheatgate/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

type seedConfig struct {
	timeout time.Duration
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Provision members and cheat codes from a seed file",
		Long: `Validates FILE and upserts every member and cheat code it lists.
This command is idempotent - running it again with the same file changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts, cfg, args[0])
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for store operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *rootOptions, sc *seedConfig, path string) error {
	cfg, err := opts.loadConfig(cmd, config.ScopeStore)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	if store.Driver(cfg.Store.Driver) == store.DriverMemory {
		logger.Warn("seeding the memory store has no lasting effect; use serve --seed instead")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sc.timeout)
	defer cancel()

	backend, err := opts.openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	return applySeed(ctx, cmd, backend, path)
}

func applySeed(ctx context.Context, cmd *cobra.Command, backend Backend, path string) error {
	f, err := seed.Load(path)
	if err != nil {
		return err
	}
	sum, err := seed.Apply(ctx, f, backend.Members(), backend.Codes())
	if err != nil {
		return oops.With("path", path).Wrap(err)
	}
	cmd.Printf("Seeded %d members and %d cheat codes from %s\n", sum.Members, sum.Codes, path)
	return nil
}

func newValidateSeedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-seeds FILE...",
		Short: "Validate seed files without touching a store",
		Long: `Checks each seed file against the schema, the supported format
version and the member and cheat code rules.
Does NOT require a database connection. Exits non-zero if any file is invalid.

Useful in CI pipelines:
  cheatgate validate-seeds seeds/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateSeeds(cmd, args)
		},
	}
}

func runValidateSeeds(cmd *cobra.Command, paths []string) error {
	var failed int
	for _, path := range paths {
		f, err := seed.Load(path)
		if err != nil {
			failed++
			cmd.PrintErrf("FAIL %s: %v\n", path, err)
			continue
		}
		cmd.Printf("ok   %s (%d members, %d codes)\n", path, len(f.Members), len(f.Codes))
	}

	if failed > 0 {
		return oops.Code("SEED_VALIDATION_FAILED").
			With("failed", failed).
			Errorf("validation failed: %d of %d seed files invalid", failed, len(paths))
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cheatgate/cheatgate/internal/api"
	"github.com/cheatgate/cheatgate/internal/auth"
	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/config"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/redeem"
	"github.com/cheatgate/cheatgate/internal/store"
	"github.com/cheatgate/cheatgate/pkg/errutil"
)

type serveConfig struct {
	migrate  bool
	seedFile string
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve /login, /verify-token, /use-cheat and /cheat-usage until SIGINT
or SIGTERM. Metrics and health probes are served on metrics.addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.migrate, "migrate", false, "apply pending postgres migrations before serving")
	cmd.Flags().StringVar(&cfg.seedFile, "seed", "", "seed file to apply before serving")

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, sc *serveConfig) error {
	cfg, err := opts.loadConfig(cmd, config.ScopeAll)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sc.migrate {
		if err := opts.migrateUp(cfg); err != nil {
			return err
		}
	}

	backend, err := opts.openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if sc.seedFile != "" {
		if err := applySeed(ctx, cmd, backend, sc.seedFile); err != nil {
			return err
		}
	}

	handler, err := buildHandler(cfg, backend, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		obs := opts.deps.ObservabilityServerFactory(cfg.Metrics.Addr, version, backend.Ping)
		obsErr, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErr, "observability", logger)
		defer stopServer(obs.Stop, cfg.HTTP.ShutdownTimeout, "observability", logger)
	}

	srv := api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Logger:       logger,
	}, handler.Routes())
	apiErr, err := srv.Start()
	if err != nil {
		return err
	}

	cmd.Printf("cheatgate listening on %s\n", srv.Addr())
	logger.InfoContext(ctx, "cheatgate ready",
		"addr", srv.Addr(),
		"driver", cfg.Store.Driver,
		"metrics_addr", cfg.Metrics.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-apiErr:
		if ok && err != nil {
			serveErr = oops.Code("API_SERVE_FAILED").Wrap(err)
		}
	}

	stopServer(srv.Stop, cfg.HTTP.ShutdownTimeout, "api", logger)
	return serveErr
}

func buildHandler(cfg *config.Config, backend Backend, logger *slog.Logger) (*api.Handler, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.Token.Secret), auth.WithTTL(cfg.Token.TTL))
	if err != nil {
		return nil, err
	}
	directory, err := member.NewDirectory(backend.Members(), logger)
	if err != nil {
		return nil, err
	}
	registry, err := cheat.NewRegistry(backend.Codes(), logger)
	if err != nil {
		return nil, err
	}

	authSvc, err := auth.NewService(auth.ServiceConfig{
		Members: directory,
		Tokens:  tokens,
		Timeout: cfg.Store.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	engine, err := redeem.NewEngine(redeem.EngineConfig{
		Tokens:     tokens,
		Members:    directory,
		Codes:      registry,
		Usage:      backend.Usage(),
		Timeout:    cfg.Store.Timeout,
		MaxRetries: cfg.Redeem.MaxRetries,
		RetryBase:  cfg.Redeem.RetryBase,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return api.NewHandler(api.HandlerConfig{Auth: authSvc, Redeemer: engine, Logger: logger})
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string, logger *slog.Logger) {
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			errutil.LogError(logger, name+" server failed", err)
			cancel()
		}
	}
}

func stopServer(stopFn func(context.Context) error, timeout time.Duration, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stopFn(ctx); err != nil {
		logger.Warn("server did not stop cleanly", "server", name, "error", err)
	}
}

func (o *rootOptions) migrateUp(cfg *config.Config) error {
	if store.Driver(cfg.Store.Driver) != store.DriverPostgres {
		return nil
	}
	m, err := o.deps.MigratorFactory(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package main

import (
	"context"

	"github.com/cheatgate/cheatgate/internal/api"
	"github.com/cheatgate/cheatgate/internal/auth"
	"github.com/cheatgate/cheatgate/internal/observability"
	"github.com/cheatgate/cheatgate/internal/redeem"
	"github.com/cheatgate/cheatgate/internal/store"
	"github.com/cheatgate/cheatgate/internal/store/postgres"
	"github.com/cheatgate/cheatgate/internal/usage"
)

// Backend is an opened store.
type Backend interface {
	Members() store.MemberStore
	Codes() store.CodeStore
	Usage() usage.Store
	Ping(ctx context.Context) error
	Close()
}

// Migrator drives postgres schema migrations.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (postgres.Status, error)
	Close() error
}

// ObservabilityServer serves metrics and health probes.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoreOpener opens the configured backend.
	// Default: store.Open
	StoreOpener func(ctx context.Context, opts store.Options) (Backend, error)

	// MigratorFactory creates a migrator for a postgres URL.
	// Default: postgres.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer with the auth, redeem and api metrics
	ObservabilityServerFactory func(addr, version string, ready observability.ReadinessChecker) ObservabilityServer
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = func(ctx context.Context, opts store.Options) (Backend, error) {
			return store.Open(ctx, opts)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return postgres.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr, version string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, version, ready,
				auth.RegisterMetrics,
				redeem.RegisterMetrics,
				api.RegisterMetrics,
			)
		}
	}
	return &out
}

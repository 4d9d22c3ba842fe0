// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package store opens the configured storage backend and exposes it through
// the domain repository interfaces.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/store/memory"
	"github.com/cheatgate/cheatgate/internal/store/postgres"
	"github.com/cheatgate/cheatgate/internal/store/sqlite"
	"github.com/cheatgate/cheatgate/internal/usage"
)

// Driver names a storage backend.
type Driver string

// Supported drivers.
const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverMemory   Driver = "memory"
)

// Drivers lists every supported driver.
func Drivers() []Driver {
	return []Driver{DriverPostgres, DriverSQLite, DriverMemory}
}

// Valid reports whether d is a supported driver.
func (d Driver) Valid() bool {
	switch d {
	case DriverPostgres, DriverSQLite, DriverMemory:
		return true
	}
	return false
}

// MemberStore reads and provisions members.
type MemberStore interface {
	member.Repository
	member.Provisioner
}

// CodeStore reads and provisions cheat codes.
type CodeStore interface {
	cheat.Repository
	cheat.Provisioner
}

// Options configures Open.
type Options struct {
	Driver Driver
	// DSN is a postgres connection string or a SQLite file path.
	DSN string
	// MaxConns caps the postgres pool.
	MaxConns int32
	// ConnectTimeout bounds the initial connection check.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Store is an opened backend.
type Store struct {
	driver  Driver
	members MemberStore
	codes   CodeStore
	usage   usage.Store
	ping    func(context.Context) error
	close   func()
}

// Open connects to the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Driver {
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, oops.Code("STORE_DSN_MISSING").With("driver", opts.Driver).Errorf("postgres requires a DSN")
		}
		pg, err := postgres.Open(ctx, opts.DSN, postgres.Options{
			MaxConns:       opts.MaxConns,
			ConnectTimeout: opts.ConnectTimeout,
		})
		if err != nil {
			return nil, oops.Code("STORE_OPEN_FAILED").With("driver", opts.Driver).Wrap(err)
		}
		logger.InfoContext(ctx, "store opened", "driver", opts.Driver)
		return &Store{
			driver:  opts.Driver,
			members: pg.Members(),
			codes:   pg.Codes(),
			usage:   pg.Usage(),
			ping:    pg.Ping,
			close:   pg.Close,
		}, nil

	case DriverSQLite:
		path := opts.DSN
		if path == "" {
			path = sqlite.MemoryPath
		}
		lite, err := sqlite.Open(ctx, path, sqlite.Options{BusyTimeout: opts.ConnectTimeout})
		if err != nil {
			return nil, oops.Code("STORE_OPEN_FAILED").With("driver", opts.Driver).With("path", path).Wrap(err)
		}
		logger.InfoContext(ctx, "store opened", "driver", opts.Driver, "path", path)
		return &Store{
			driver:  opts.Driver,
			members: lite.Members(),
			codes:   lite.Codes(),
			usage:   lite.Usage(),
			ping:    lite.Ping,
			close:   lite.Close,
		}, nil

	case DriverMemory:
		mem := memory.New()
		logger.WarnContext(ctx, "using in-memory store; data is lost on exit")
		return &Store{
			driver:  opts.Driver,
			members: mem.Members(),
			codes:   mem.Codes(),
			usage:   mem.Usage(),
			ping:    mem.Ping,
			close:   mem.Close,
		}, nil

	default:
		return nil, oops.Code("STORE_DRIVER_INVALID").
			With("driver", opts.Driver).
			Errorf("unknown store driver %q", opts.Driver)
	}
}

// Driver returns the backend in use.
func (s *Store) Driver() Driver { return s.driver }

// Members returns the member store.
func (s *Store) Members() MemberStore { return s.members }

// Codes returns the cheat code store.
func (s *Store) Codes() CodeStore { return s.codes }

// Usage returns the usage store.
func (s *Store) Usage() usage.Store { return s.usage }

// Ping checks the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ping(ctx); err != nil {
		return oops.Code("STORE_UNAVAILABLE").With("driver", s.driver).Wrap(err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() {
	s.close()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package sqlite implements the member, cheat code and usage stores on an
// embedded SQLite database through gorm.
//
// The pool is limited to one connection, so every write is serialised inside
// the process. Other processes sharing the file wait on the busy timeout and
// surface SQLITE_BUSY as usage.ErrTransient.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/samber/oops"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cheatgate/cheatgate/internal/usage"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options configures Open.
type Options struct {
	// BusyTimeout is how long SQLite waits on a locked database. Zero means 5s.
	BusyTimeout time.Duration
	// LogLevel sets gorm's statement logging. Zero means silent.
	LogLevel logger.LogLevel
}

// Store groups the SQLite repositories over one gorm handle.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Silent
	}

	db, err := gorm.Open(gormsqlite.Open(dsn(path, opts.BusyTimeout)), &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).Wrap(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).Wrap(err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close() //nolint:errcheck // migration error takes precedence
		return nil, err
	}
	return s, nil
}

func dsn(path string, busy time.Duration) string {
	if path == MemoryPath {
		return fmt.Sprintf("file::memory:?_busy_timeout=%d&_foreign_keys=on", busy.Milliseconds())
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, busy.Milliseconds())
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&memberModel{},
		&codeModel{},
		&usageModel{},
		&redemptionModel{},
	)
	if err != nil {
		return oops.Code("MIGRATION_UP_FAILED").With("driver", "sqlite").Wrap(err)
	}
	return nil
}

// Members returns the member repository.
func (s *Store) Members() *MemberRepository {
	return &MemberRepository{db: s.db}
}

// Codes returns the cheat code repository.
func (s *Store) Codes() *CodeRepository {
	return &CodeRepository{db: s.db}
}

// Usage returns the usage repository.
func (s *Store) Usage() *UsageRepository {
	return &UsageRepository{db: s.db, now: s.now}
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close() //nolint:errcheck // nothing useful to do on close failure
	}
}

// markTransient joins usage.ErrTransient onto lock contention errors.
func markTransient(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return errors.Join(usage.ErrTransient, err)
	}
	return err
}

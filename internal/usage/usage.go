// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package usage defines per-member redemption counters and the store contract
// that keeps them consistent under concurrency.
package usage

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned by Store.Get when no record exists for the pair.
var ErrNotFound = errors.New("usage record not found")

// ErrTransient marks store failures that left no trace and may be retried,
// such as serialization failures and deadlocks.
var ErrTransient = errors.New("transient usage store failure")

// Record is the persisted counter for one (member, code) pair.
type Record struct {
	Email     string
	Code      string
	UsedCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Consumption is the result of a single Consume call.
type Consumption struct {
	// Granted is false when the limit was already reached. Nothing was written.
	Granted bool
	// UsedCount is the counter after the call. Zero when no record exists.
	UsedCount int
	// Created is true when this call inserted the record.
	Created bool
}

// Entry is one row of the redemption log, appended in the same transaction
// as the increment it records.
type Entry struct {
	ID         ulid.ULID
	Email      string
	Code       string
	UsedCount  int
	RedeemedAt time.Time
}

// NewEntry returns a log entry with a fresh ULID.
func NewEntry(email, code string, usedCount int, at time.Time) Entry {
	return Entry{
		ID:         ulid.Make(),
		Email:      email,
		Code:       code,
		UsedCount:  usedCount,
		RedeemedAt: at,
	}
}

// Store persists usage records.
//
// Consume must be a single atomic step per (email, code): the limit check and
// the increment can never interleave with another Consume for the same pair,
// across goroutines or processes.
type Store interface {
	Consume(ctx context.Context, email, code string, limit int) (Consumption, error)
	// Get returns ErrNotFound (wrapped) for an unknown pair.
	Get(ctx context.Context, email, code string) (*Record, error)
}

// Decide applies the consumption rules to a counter snapshot. exists reports
// whether a record is present and used is its count. It returns whether the
// redemption is granted and the count to store.
//
// Without a record, the first redemption is granted only for a positive limit.
// With a record, a positive limit caps the count; a limit of zero or less
// never blocks an existing record.
func Decide(exists bool, used, limit int) (granted bool, next int) {
	if !exists {
		if limit > 0 {
			return true, 1
		}
		return false, 0
	}
	if limit > 0 && used >= limit {
		return false, used
	}
	return true, used + 1
}

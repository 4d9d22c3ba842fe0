// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package memory provides a process-local store for development and tests.
//
// All state lives behind one mutex, so Consume is atomic within a single
// process. Running more than one instance against it gives each instance its
// own counters; use the postgres driver for that.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/usage"
)

type usageKey struct {
	email string
	code  string
}

// Store is an in-memory implementation of the member, cheat and usage stores.
type Store struct {
	mu      sync.Mutex
	members map[string]member.Member
	codes   map[string]cheat.Code
	usage   map[usageKey]usage.Record
	log     []usage.Entry
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		members: make(map[string]member.Member),
		codes:   make(map[string]cheat.Code),
		usage:   make(map[usageKey]usage.Record),
		now:     time.Now,
	}
}

// Members returns the member view of the store.
func (s *Store) Members() *MemberStore {
	return &MemberStore{s: s}
}

// Codes returns the cheat code view of the store.
func (s *Store) Codes() *CodeStore {
	return &CodeStore{s: s}
}

// Usage returns the usage counter view of the store.
func (s *Store) Usage() *UsageStore {
	return &UsageStore{s: s}
}

// MemberStore is the member view of Store.
type MemberStore struct {
	s *Store
}

// GetByEmail implements member.Repository.
func (ms *MemberStore) GetByEmail(_ context.Context, email string) (*member.Member, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	m, ok := ms.s.members[email]
	if !ok {
		return nil, oops.Code("MEMBER_NOT_FOUND").With("email", email).Wrap(member.ErrNotFound)
	}
	return &m, nil
}

// Upsert implements member.Provisioner.
func (ms *MemberStore) Upsert(_ context.Context, m *member.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()
	ms.s.members[m.Email] = *m
	return nil
}

// CodeStore is the cheat code view of Store.
type CodeStore struct {
	s *Store
}

// GetByCode implements cheat.Repository.
func (c *CodeStore) GetByCode(_ context.Context, code string) (*cheat.Code, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	def, ok := c.s.codes[code]
	if !ok {
		return nil, oops.Code("CHEAT_NOT_FOUND").With("cheat_code", code).Wrap(cheat.ErrNotFound)
	}
	def.AllowedTiers = slices.Clone(def.AllowedTiers)
	def.Payload = slices.Clone(def.Payload)
	return &def, nil
}

// Upsert implements cheat.Provisioner.
func (c *CodeStore) Upsert(_ context.Context, code *cheat.Code) error {
	if err := code.Validate(); err != nil {
		return err
	}
	def := *code
	def.AllowedTiers = slices.Clone(code.AllowedTiers)
	def.Payload = slices.Clone(code.Payload)

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.codes[def.Code] = def
	return nil
}

// UsageStore is the usage counter view of Store.
type UsageStore struct {
	s *Store
}

// Consume implements usage.Store.
func (us *UsageStore) Consume(ctx context.Context, email, code string, limit int) (usage.Consumption, error) {
	if err := ctx.Err(); err != nil {
		return usage.Consumption{}, oops.Code("USAGE_CONSUME_FAILED").
			With("email", email).
			With("cheat_code", code).
			Wrap(err)
	}

	s := us.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{email: email, code: code}
	rec, exists := s.usage[key]
	granted, next := usage.Decide(exists, rec.UsedCount, limit)
	if !granted {
		return usage.Consumption{UsedCount: rec.UsedCount}, nil
	}

	now := s.now()
	if !exists {
		rec = usage.Record{Email: email, Code: code, CreatedAt: now}
	}
	rec.UsedCount = next
	rec.UpdatedAt = now
	s.usage[key] = rec
	s.log = append(s.log, usage.NewEntry(email, code, next, now))

	return usage.Consumption{Granted: true, UsedCount: next, Created: !exists}, nil
}

// Get implements usage.Store.
func (us *UsageStore) Get(_ context.Context, email, code string) (*usage.Record, error) {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()

	rec, ok := us.s.usage[usageKey{email: email, code: code}]
	if !ok {
		return nil, oops.Code("USAGE_NOT_FOUND").
			With("email", email).
			With("cheat_code", code).
			Wrap(usage.ErrNotFound)
	}
	return &rec, nil
}

// Log returns a copy of the redemption log in insertion order.
func (s *Store) Log() []usage.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// Verify interfaces are satisfied.
var (
	_ member.Repository  = (*MemberStore)(nil)
	_ member.Provisioner = (*MemberStore)(nil)
	_ cheat.Repository   = (*CodeStore)(nil)
	_ cheat.Provisioner  = (*CodeStore)(nil)
	_ usage.Store        = (*UsageStore)(nil)
)

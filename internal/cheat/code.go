// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package cheat holds cheat code definitions and the registry that resolves them.
package cheat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a code does not exist.
var ErrNotFound = errors.New("cheat code not found")

// Code is a redeemable cheat code definition.
type Code struct {
	Code   string
	Active bool
	// AllowedTiers restricts redemption to these tiers. Empty means unrestricted.
	AllowedTiers []string
	// AmountLimit bounds redemptions per member. Zero or less means the code
	// can never be consumed for the first time.
	AmountLimit int
	Effect      string
	// Payload is passed through to the caller untouched.
	Payload json.RawMessage
}

// Usable reports whether the code is active.
func (c *Code) Usable() bool {
	return c != nil && c.Active
}

// AllowsTier reports whether a member of the given tier may redeem the code.
func (c *Code) AllowsTier(tier string) bool {
	if len(c.AllowedTiers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedTiers, tier)
}

// Limit returns the configured amount limit.
func (c *Code) Limit() int {
	if c == nil {
		return 0
	}
	return c.AmountLimit
}

// Validate checks the fields a store requires before provisioning.
func (c *Code) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return oops.Code("CHEAT_INVALID_CODE").Errorf("code cannot be empty")
	}
	if c.AmountLimit < 0 {
		return oops.Code("CHEAT_INVALID_LIMIT").
			With("code", c.Code).
			With("amount_limit", c.AmountLimit).
			Errorf("amount limit cannot be negative")
	}
	if len(c.Payload) > 0 && !json.Valid(c.Payload) {
		return oops.Code("CHEAT_INVALID_PAYLOAD").With("code", c.Code).Errorf("payload must be valid JSON")
	}
	for _, tier := range c.AllowedTiers {
		if strings.TrimSpace(tier) == "" {
			return oops.Code("CHEAT_INVALID_TIER").With("code", c.Code).Errorf("allowed tiers cannot contain blanks")
		}
	}
	return nil
}

// Repository reads cheat codes by exact code.
type Repository interface {
	// GetByCode returns ErrNotFound (wrapped) when the code is unknown.
	GetByCode(ctx context.Context, code string) (*Code, error)
}

// Provisioner writes cheat code definitions. Only provisioning tools use it.
type Provisioner interface {
	Upsert(ctx context.Context, c *Code) error
}

// Registry is the read-side entry point used by redemption.
type Registry struct {
	repo   Repository
	logger *slog.Logger
}

// NewRegistry creates a Registry over repo.
func NewRegistry(repo Repository, logger *slog.Logger) (*Registry, error) {
	if repo == nil {
		return nil, oops.Code("CHEAT_REGISTRY_INVALID").Errorf("cheat code repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{repo: repo, logger: logger}, nil
}

// Lookup resolves a code to its definition.
func (r *Registry) Lookup(ctx context.Context, code string) (*Code, error) {
	if code == "" {
		return nil, oops.Code("CHEAT_NOT_FOUND").Wrap(ErrNotFound)
	}
	c, err := r.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.DebugContext(ctx, "cheat code not found", "code", code)
			return nil, err
		}
		return nil, oops.Code("CHEAT_LOOKUP_FAILED").
			With("operation", "get cheat code").
			With("code", code).
			Wrap(err)
	}
	return c, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package member resolves emails to membership status.
//
// Members are provisioned out-of-band (see the seed command); the request
// path only reads them through a Directory.
package member

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound is returned when no member has the requested email.
var ErrNotFound = errors.New("member not found")

// Member is a provisioned account.
type Member struct {
	Email       string
	Blacklisted bool
	Tier        string
}

// Eligible reports whether the member may perform protected actions.
func (m *Member) Eligible() bool {
	return m != nil && !m.Blacklisted
}

// Validate checks the fields a store requires before provisioning.
func (m *Member) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return oops.Code("MEMBER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if !strings.Contains(m.Email, "@") {
		return oops.Code("MEMBER_INVALID_EMAIL").With("email", m.Email).Errorf("email must contain '@'")
	}
	return nil
}

// Repository reads members by exact email.
type Repository interface {
	// GetByEmail returns ErrNotFound (wrapped) when the email is unknown.
	GetByEmail(ctx context.Context, email string) (*Member, error)
}

// Provisioner writes members. Only provisioning tools use it.
type Provisioner interface {
	// Upsert creates the member or replaces its blacklist flag and tier.
	Upsert(ctx context.Context, m *Member) error
}

// Directory is the read-side entry point used by login and redemption.
type Directory struct {
	repo   Repository
	logger *slog.Logger
}

// NewDirectory creates a Directory over repo.
func NewDirectory(repo Repository, logger *slog.Logger) (*Directory, error) {
	if repo == nil {
		return nil, oops.Code("MEMBER_DIRECTORY_INVALID").Errorf("member repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{repo: repo, logger: logger}, nil
}

// Lookup resolves email to a Member. Lookups are exact; no case folding is applied.
func (d *Directory) Lookup(ctx context.Context, email string) (*Member, error) {
	if email == "" {
		return nil, oops.Code("MEMBER_NOT_FOUND").Wrap(ErrNotFound)
	}
	m, err := d.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			d.logger.DebugContext(ctx, "member not found", "email", email)
			return nil, err
		}
		return nil, oops.Code("MEMBER_LOOKUP_FAILED").
			With("operation", "get member by email").
			With("email", email).
			Wrap(err)
	}
	return m, nil
}

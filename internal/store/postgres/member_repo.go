// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/cheatgate/cheatgate/internal/member"
)

// MemberRepository implements member.Repository and member.Provisioner.
type MemberRepository struct {
	pool poolIface
}

// NewMemberRepository creates a MemberRepository.
func NewMemberRepository(pool poolIface) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// GetByEmail retrieves a member by exact email.
func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*member.Member, error) {
	var m member.Member
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT email, blacklisted, tier
		FROM members
		WHERE email = $1
	`, email).Scan(&m.Email, &m.Blacklisted, &m.Tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("MEMBER_NOT_FOUND").With("email", email).Wrap(member.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("MEMBER_QUERY_FAILED").
			With("operation", "select member").
			With("email", email).
			Wrap(err)
	}
	return &m, nil
}

// Upsert creates the member or replaces its blacklist flag and tier.
func (r *MemberRepository) Upsert(ctx context.Context, m *member.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO members (email, blacklisted, tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET blacklisted = EXCLUDED.blacklisted,
		    tier = EXCLUDED.tier,
		    updated_at = now()
	`, m.Email, m.Blacklisted, m.Tier)
	if err != nil {
		return oops.Code("MEMBER_UPSERT_FAILED").
			With("operation", "upsert member").
			With("email", m.Email).
			Wrap(err)
	}
	return nil
}

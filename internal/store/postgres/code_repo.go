// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/cheatgate/cheatgate/internal/cheat"
)

// CodeRepository implements cheat.Repository and cheat.Provisioner.
type CodeRepository struct {
	pool poolIface
}

// NewCodeRepository creates a CodeRepository.
func NewCodeRepository(pool poolIface) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// GetByCode retrieves a cheat code definition.
func (r *CodeRepository) GetByCode(ctx context.Context, code string) (*cheat.Code, error) {
	var (
		c       cheat.Code
		payload []byte
	)
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT code, is_active, allowed_tiers, amount_limit, effect, payload
		FROM cheat_codes
		WHERE code = $1
	`, code).Scan(&c.Code, &c.Active, &c.AllowedTiers, &c.AmountLimit, &c.Effect, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CHEAT_NOT_FOUND").With("cheat_code", code).Wrap(cheat.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CHEAT_QUERY_FAILED").
			With("operation", "select cheat code").
			With("cheat_code", code).
			Wrap(err)
	}
	if len(payload) > 0 {
		c.Payload = json.RawMessage(payload)
	}
	return &c, nil
}

// Upsert creates or replaces a cheat code definition.
func (r *CodeRepository) Upsert(ctx context.Context, c *cheat.Code) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tiers := c.AllowedTiers
	if tiers == nil {
		tiers = []string{}
	}
	var payload []byte
	if len(c.Payload) > 0 {
		payload = c.Payload
	}

	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO cheat_codes (code, is_active, allowed_tiers, amount_limit, effect, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE
		SET is_active = EXCLUDED.is_active,
		    allowed_tiers = EXCLUDED.allowed_tiers,
		    amount_limit = EXCLUDED.amount_limit,
		    effect = EXCLUDED.effect,
		    payload = EXCLUDED.payload,
		    updated_at = now()
	`, c.Code, c.Active, tiers, c.AmountLimit, c.Effect, payload)
	if err != nil {
		return oops.Code("CHEAT_UPSERT_FAILED").
			With("operation", "upsert cheat code").
			With("cheat_code", c.Code).
			Wrap(err)
	}
	return nil
}

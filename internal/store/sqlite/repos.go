// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/usage"
)

// MemberRepository implements member.Repository and member.Provisioner.
type MemberRepository struct {
	db *gorm.DB
}

// GetByEmail retrieves a member by exact email.
func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*member.Member, error) {
	var m memberModel
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("MEMBER_NOT_FOUND").With("email", email).Wrap(member.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("MEMBER_QUERY_FAILED").With("email", email).Wrap(err)
	}
	return m.toDomain(), nil
}

// Upsert creates the member or replaces its blacklist flag and tier.
func (r *MemberRepository) Upsert(ctx context.Context, m *member.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	model := memberModel{Email: m.Email, Blacklisted: m.Blacklisted, Tier: m.Tier}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"blacklisted", "tier", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return oops.Code("MEMBER_UPSERT_FAILED").With("email", m.Email).Wrap(err)
	}
	return nil
}

// CodeRepository implements cheat.Repository and cheat.Provisioner.
type CodeRepository struct {
	db *gorm.DB
}

// GetByCode retrieves a cheat code definition.
func (r *CodeRepository) GetByCode(ctx context.Context, code string) (*cheat.Code, error) {
	var c codeModel
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("CHEAT_NOT_FOUND").With("cheat_code", code).Wrap(cheat.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CHEAT_QUERY_FAILED").With("cheat_code", code).Wrap(err)
	}
	return c.toDomain(), nil
}

// Upsert creates or replaces a cheat code definition.
func (r *CodeRepository) Upsert(ctx context.Context, c *cheat.Code) error {
	if err := c.Validate(); err != nil {
		return err
	}
	model := codeFromDomain(c)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_active", "allowed_tiers", "amount_limit", "effect", "payload", "updated_at",
		}),
	}).Create(&model).Error
	if err != nil {
		return oops.Code("CHEAT_UPSERT_FAILED").With("cheat_code", c.Code).Wrap(err)
	}
	return nil
}

const consumeSQL = `
	INSERT INTO usage_records (member_email, code, used_count, created_at, updated_at)
	VALUES (?, ?, 1, ?, ?)
	ON CONFLICT (member_email, code) DO UPDATE
	SET used_count = usage_records.used_count + 1,
	    updated_at = excluded.updated_at
	WHERE usage_records.used_count < ?
	RETURNING used_count`

const consumeUnboundedSQL = `
	UPDATE usage_records
	SET used_count = used_count + 1, updated_at = ?
	WHERE member_email = ? AND code = ?
	RETURNING used_count`

// UsageRepository implements usage.Store.
type UsageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

type returnedCount struct {
	UsedCount int `gorm:"column:used_count"`
}

// Consume applies one redemption atomically. The counter update and the
// redemption log row commit together.
func (r *UsageRepository) Consume(ctx context.Context, email, code string, limit int) (usage.Consumption, error) {
	var out usage.Consumption
	now := r.now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row returnedCount
		var res *gorm.DB
		if limit > 0 {
			res = tx.Raw(consumeSQL, email, code, now, now, limit).Scan(&row)
		} else {
			res = tx.Raw(consumeUnboundedSQL, now, email, code).Scan(&row)
		}
		if res.Error != nil {
			return oops.Code("USAGE_CONSUME_FAILED").With("operation", "conditional increment").Wrap(res.Error)
		}

		if res.RowsAffected == 0 {
			var current usageModel
			err := tx.Where("member_email = ? AND code = ?", email, code).Take(&current).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return oops.Code("USAGE_QUERY_FAILED").With("operation", "select used count").Wrap(err)
			}
			out = usage.Consumption{UsedCount: current.UsedCount}
			return nil
		}

		entry := redemptionFromEntry(usage.NewEntry(email, code, row.UsedCount, now))
		if err := tx.Create(&entry).Error; err != nil {
			return oops.Code("USAGE_LOG_FAILED").With("operation", "insert redemption log").Wrap(err)
		}

		// A record is only ever created at 1, and never at 0.
		out = usage.Consumption{Granted: true, UsedCount: row.UsedCount, Created: limit > 0 && row.UsedCount == 1}
		return nil
	})
	if err != nil {
		return usage.Consumption{}, oops.Code("USAGE_CONSUME_FAILED").
			With("email", email).
			With("cheat_code", code).
			With("limit", limit).
			Wrap(markTransient(err))
	}
	return out, nil
}

// Get retrieves the usage record for (email, code).
func (r *UsageRepository) Get(ctx context.Context, email, code string) (*usage.Record, error) {
	var rec usageModel
	err := r.db.WithContext(ctx).Where("member_email = ? AND code = ?", email, code).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("USAGE_NOT_FOUND").
			With("email", email).
			With("cheat_code", code).
			Wrap(usage.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USAGE_QUERY_FAILED").
			With("email", email).
			With("cheat_code", code).
			Wrap(markTransient(err))
	}
	return rec.toDomain(), nil
}

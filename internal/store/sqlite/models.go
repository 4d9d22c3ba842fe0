// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package sqlite

import (
	"encoding/json"
	"time"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/usage"
)

type memberModel struct {
	Email       string `gorm:"column:email;primaryKey"`
	Blacklisted bool   `gorm:"column:blacklisted;not null"`
	Tier        string `gorm:"column:tier;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (memberModel) TableName() string { return "members" }

func (m memberModel) toDomain() *member.Member {
	return &member.Member{Email: m.Email, Blacklisted: m.Blacklisted, Tier: m.Tier}
}

type codeModel struct {
	Code         string   `gorm:"column:code;primaryKey"`
	IsActive     bool     `gorm:"column:is_active;not null"`
	AllowedTiers []string `gorm:"column:allowed_tiers;serializer:json;not null"`
	AmountLimit  int      `gorm:"column:amount_limit;not null;check:amount_limit >= 0"`
	Effect       string   `gorm:"column:effect;not null"`
	Payload      []byte   `gorm:"column:payload"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (codeModel) TableName() string { return "cheat_codes" }

func (c codeModel) toDomain() *cheat.Code {
	out := &cheat.Code{
		Code:         c.Code,
		Active:       c.IsActive,
		AllowedTiers: c.AllowedTiers,
		AmountLimit:  c.AmountLimit,
		Effect:       c.Effect,
	}
	if len(c.Payload) > 0 {
		out.Payload = json.RawMessage(c.Payload)
	}
	return out
}

func codeFromDomain(c *cheat.Code) codeModel {
	tiers := c.AllowedTiers
	if tiers == nil {
		tiers = []string{}
	}
	return codeModel{
		Code:         c.Code,
		IsActive:     c.Active,
		AllowedTiers: tiers,
		AmountLimit:  c.AmountLimit,
		Effect:       c.Effect,
		Payload:      []byte(c.Payload),
	}
}

type usageModel struct {
	MemberEmail string `gorm:"column:member_email;primaryKey"`
	Code        string `gorm:"column:code;primaryKey"`
	UsedCount   int    `gorm:"column:used_count;not null;check:used_count >= 0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (usageModel) TableName() string { return "usage_records" }

func (u usageModel) toDomain() *usage.Record {
	return &usage.Record{
		Email:     u.MemberEmail,
		Code:      u.Code,
		UsedCount: u.UsedCount,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type redemptionModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	MemberEmail string    `gorm:"column:member_email;not null;index:idx_redemption_log_member_code"`
	Code        string    `gorm:"column:code;not null;index:idx_redemption_log_member_code"`
	UsedCount   int       `gorm:"column:used_count;not null"`
	RedeemedAt  time.Time `gorm:"column:redeemed_at;not null"`
}

func (redemptionModel) TableName() string { return "redemption_log" }

func redemptionFromEntry(e usage.Entry) redemptionModel {
	return redemptionModel{
		ID:          e.ID.String(),
		MemberEmail: e.Email,
		Code:        e.Code,
		UsedCount:   e.UsedCount,
		RedeemedAt:  e.RedeemedAt,
	}
}

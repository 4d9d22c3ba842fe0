// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package redeem_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cheatgate/cheatgate/internal/auth"
	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/redeem"
	"github.com/cheatgate/cheatgate/internal/redeem/redeemtest"
	"github.com/cheatgate/cheatgate/internal/usage"
)

const (
	testToken = "valid-token"
	testEmail = "a@x.com"
)

var (
	goldMember = &member.Member{Email: testEmail, Tier: "gold"}
	spring23   = &cheat.Code{
		Code:        "SPRING23",
		Active:      true,
		AmountLimit: 2,
		Effect:      "double_xp",
		Payload:     json.RawMessage(`{"multiplier":2,"minutes":30}`),
	}
)

func newEngine(t *testing.T, m *redeemtest.Mocks, mutate ...func(*redeem.EngineConfig)) *redeem.Engine {
	t.Helper()
	cfg := m.Config()
	cfg.Timeout = time.Second
	cfg.RetryBase = time.Millisecond
	for _, fn := range mutate {
		fn(&cfg)
	}
	engine, err := redeem.NewEngine(cfg)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*redeem.EngineConfig)
	}{
		{"tokens", func(c *redeem.EngineConfig) { c.Tokens = nil }},
		{"members", func(c *redeem.EngineConfig) { c.Members = nil }},
		{"codes", func(c *redeem.EngineConfig) { c.Codes = nil }},
		{"usage", func(c *redeem.EngineConfig) { c.Usage = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := redeemtest.NewMocks().Config()
			tt.mutate(&cfg)
			_, err := redeem.NewEngine(cfg)
			require.Error(t, err)
		})
	}
}

func TestEngine_GuardOrder(t *testing.T) {
	engine := newEngine(t, redeemtest.NewMocks())
	assert.Equal(t, []string{
		redeem.GuardRequireFields,
		redeem.GuardVerifyToken,
		redeem.GuardLoadMember,
		redeem.GuardCheckBan,
		redeem.GuardLoadCode,
		redeem.GuardCheckActive,
		redeem.GuardCheckTier,
		redeem.GuardResolveLimit,
		redeem.GuardConsume,
	}, engine.Guards())
}

func TestEngine_Redeem_MissingFields(t *testing.T) {
	for _, req := range []redeem.Request{
		{Token: "", Code: "SPRING23"},
		{Token: testToken, Code: ""},
		{},
	} {
		m := redeemtest.NewMocks()
		engine := newEngine(t, m)

		result := engine.Redeem(context.Background(), req)

		assert.Equal(t, redeem.KindFail, result.Kind)
		assert.Equal(t, redeem.GuardRequireFields, result.Guard)
		m.Tokens.AssertNotCalled(t, "Verify", mock.Anything)
		m.Members.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	}
}

func TestEngine_Redeem_InvalidToken(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", "forged").Return("", auth.ErrInvalidToken)
	engine := newEngine(t, m)

	result := engine.Redeem(context.Background(), redeem.Request{Token: "forged", Code: "SPRING23"})

	assert.Equal(t, redeem.KindUnauthorized, result.Kind)
	assert.Equal(t, redeem.GuardVerifyToken, result.Guard)
	m.Members.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	m.AssertExpectations(t)
}

func TestEngine_Redeem_UnknownMember(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", testToken).Return(testEmail, nil)
	m.Members.On("Lookup", mock.Anything, testEmail).
		Return(nil, oops.Code("MEMBER_NOT_FOUND").Wrap(member.ErrNotFound))
	engine := newEngine(t, m)

	result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

	assert.Equal(t, redeem.KindUnauthorized, result.Kind)
	assert.Equal(t, redeem.GuardLoadMember, result.Guard)
	m.Codes.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestEngine_Redeem_BannedBeforeCodeLookup(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", testToken).Return(testEmail, nil)
	m.Members.On("Lookup", mock.Anything, testEmail).
		Return(&member.Member{Email: testEmail, Tier: "gold", Blacklisted: true}, nil)
	engine := newEngine(t, m)

	result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "UNKNOWN"})

	assert.Equal(t, redeem.KindBanned, result.Kind)
	assert.Equal(t, redeem.GuardCheckBan, result.Guard)
	m.Codes.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	m.Usage.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_Redeem_CodeGates(t *testing.T) {
	tests := []struct {
		name      string
		member    *member.Member
		code      *cheat.Code
		lookupErr error
		want      redeem.Kind
		wantGuard string
	}{
		{
			name:      "unknown code",
			member:    goldMember,
			lookupErr: oops.Code("CHEAT_NOT_FOUND").Wrap(cheat.ErrNotFound),
			want:      redeem.KindInvalidCode,
			wantGuard: redeem.GuardLoadCode,
		},
		{
			name:      "inactive code",
			member:    goldMember,
			code:      &cheat.Code{Code: "SPRING23", Active: false, AmountLimit: 5},
			want:      redeem.KindCodeDisabled,
			wantGuard: redeem.GuardCheckActive,
		},
		{
			name:      "tier excluded",
			member:    &member.Member{Email: testEmail, Tier: "bronze"},
			code:      &cheat.Code{Code: "SPRING23", Active: true, AllowedTiers: []string{"gold", "platinum"}, AmountLimit: 5},
			want:      redeem.KindTierNotAllowed,
			wantGuard: redeem.GuardCheckTier,
		},
		{
			name:      "inactive wins over tier",
			member:    &member.Member{Email: testEmail, Tier: "bronze"},
			code:      &cheat.Code{Code: "SPRING23", Active: false, AllowedTiers: []string{"gold"}, AmountLimit: 5},
			want:      redeem.KindCodeDisabled,
			wantGuard: redeem.GuardCheckActive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := redeemtest.NewMocks()
			m.Tokens.On("Verify", testToken).Return(testEmail, nil)
			m.Members.On("Lookup", mock.Anything, testEmail).Return(tt.member, nil)
			if tt.lookupErr != nil {
				m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(nil, tt.lookupErr)
			} else {
				m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(tt.code, nil)
			}
			engine := newEngine(t, m)

			result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

			assert.Equal(t, tt.want, result.Kind)
			assert.Equal(t, tt.wantGuard, result.Guard)
			assert.Empty(t, result.Effect)
			assert.Nil(t, result.Payload)
			m.Usage.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEngine_Redeem_Success(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", testToken).Return(testEmail, nil)
	m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
	m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(spring23, nil)
	m.Usage.On("Consume", mock.Anything, testEmail, "SPRING23", 2).
		Return(usage.Consumption{Granted: true, UsedCount: 1, Created: true}, nil)
	engine := newEngine(t, m)

	result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

	assert.Equal(t, redeem.KindOK, result.Kind)
	assert.Equal(t, redeem.GuardConsume, result.Guard)
	assert.Equal(t, "double_xp", result.Effect)
	assert.JSONEq(t, `{"multiplier":2,"minutes":30}`, string(result.Payload))
	assert.Equal(t, 1, result.UsedCount)
	m.AssertExpectations(t)
}

func TestEngine_Redeem_ConsumeRunsUnderDeadline(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", testToken).Return(testEmail, nil)
	m.Members.On("Lookup", mock.MatchedBy(hasDeadline), testEmail).Return(goldMember, nil)
	m.Codes.On("Lookup", mock.MatchedBy(hasDeadline), "SPRING23").Return(spring23, nil)
	m.Usage.On("Consume", mock.MatchedBy(hasDeadline), testEmail, "SPRING23", 2).
		Return(usage.Consumption{Granted: true, UsedCount: 1}, nil)
	engine := newEngine(t, m)

	result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

	assert.Equal(t, redeem.KindOK, result.Kind)
	m.AssertExpectations(t)
}

func hasDeadline(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok
}

func TestEngine_Redeem_LimitReached(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", testToken).Return(testEmail, nil)
	m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
	m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(spring23, nil)
	m.Usage.On("Consume", mock.Anything, testEmail, "SPRING23", 2).
		Return(usage.Consumption{Granted: false, UsedCount: 2}, nil)
	engine := newEngine(t, m)

	result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

	assert.Equal(t, redeem.KindLimitReached, result.Kind)
	assert.Empty(t, result.Effect)
	assert.Equal(t, 2, result.UsedCount)
}

func TestEngine_Redeem_ZeroLimitPassedThrough(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", testToken).Return(testEmail, nil)
	m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
	m.Codes.On("Lookup", mock.Anything, "LOCKED").
		Return(&cheat.Code{Code: "LOCKED", Active: true, Effect: "none"}, nil)
	m.Usage.On("Consume", mock.Anything, testEmail, "LOCKED", 0).
		Return(usage.Consumption{}, nil)
	engine := newEngine(t, m)

	result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "LOCKED"})

	assert.Equal(t, redeem.KindLimitReached, result.Kind)
	m.AssertExpectations(t)
}

func TestEngine_Redeem_StoreFailures(t *testing.T) {
	storeErr := errors.New("connection refused")

	t.Run("member store", func(t *testing.T) {
		m := redeemtest.NewMocks()
		m.Tokens.On("Verify", testToken).Return(testEmail, nil)
		m.Members.On("Lookup", mock.Anything, testEmail).Return(nil, storeErr)
		engine := newEngine(t, m)

		result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

		assert.Equal(t, redeem.KindUnavailable, result.Kind)
		assert.Equal(t, "fail", result.Kind.Wire())
		assert.Equal(t, redeem.GuardLoadMember, result.Guard)
	})

	t.Run("code store", func(t *testing.T) {
		m := redeemtest.NewMocks()
		m.Tokens.On("Verify", testToken).Return(testEmail, nil)
		m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
		m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(nil, storeErr)
		engine := newEngine(t, m)

		result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

		assert.Equal(t, redeem.KindUnavailable, result.Kind)
		assert.Equal(t, redeem.GuardLoadCode, result.Guard)
	})

	t.Run("usage store is not retried on permanent errors", func(t *testing.T) {
		m := redeemtest.NewMocks()
		m.Tokens.On("Verify", testToken).Return(testEmail, nil)
		m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
		m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(spring23, nil)
		m.Usage.On("Consume", mock.Anything, testEmail, "SPRING23", 2).
			Return(usage.Consumption{}, storeErr)
		engine := newEngine(t, m, func(c *redeem.EngineConfig) { c.MaxRetries = 3 })

		result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

		assert.Equal(t, redeem.KindUnavailable, result.Kind)
		m.Usage.AssertNumberOfCalls(t, "Consume", 1)
	})
}

func TestEngine_Redeem_RetriesTransientConsume(t *testing.T) {
	transient := oops.Code("USAGE_CONSUME_CONFLICT").Wrap(usage.ErrTransient)

	t.Run("succeeds after a retry", func(t *testing.T) {
		m := redeemtest.NewMocks()
		m.Tokens.On("Verify", testToken).Return(testEmail, nil)
		m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
		m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(spring23, nil)
		m.Usage.On("Consume", mock.Anything, testEmail, "SPRING23", 2).
			Return(usage.Consumption{}, transient).Once()
		m.Usage.On("Consume", mock.Anything, testEmail, "SPRING23", 2).
			Return(usage.Consumption{Granted: true, UsedCount: 1}, nil).Once()
		engine := newEngine(t, m, func(c *redeem.EngineConfig) { c.MaxRetries = 3 })

		result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

		assert.Equal(t, redeem.KindOK, result.Kind)
		m.Usage.AssertNumberOfCalls(t, "Consume", 2)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		m := redeemtest.NewMocks()
		m.Tokens.On("Verify", testToken).Return(testEmail, nil)
		m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
		m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(spring23, nil)
		m.Usage.On("Consume", mock.Anything, testEmail, "SPRING23", 2).
			Return(usage.Consumption{}, transient)
		engine := newEngine(t, m, func(c *redeem.EngineConfig) { c.MaxRetries = 2 })

		result := engine.Redeem(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

		assert.Equal(t, redeem.KindUnavailable, result.Kind)
		m.Usage.AssertNumberOfCalls(t, "Consume", 3)
	})
}

func TestEngine_Usage(t *testing.T) {
	tests := []struct {
		name          string
		code          *cheat.Code
		record        *usage.Record
		getErr        error
		want          redeem.Kind
		wantUsed      int
		wantLimit     int
		wantRemaining int
	}{
		{
			name:          "no record",
			code:          spring23,
			getErr:        usage.ErrNotFound,
			want:          redeem.KindOK,
			wantLimit:     2,
			wantRemaining: 2,
		},
		{
			name:          "partially used",
			code:          spring23,
			record:        &usage.Record{Email: testEmail, Code: "SPRING23", UsedCount: 1},
			want:          redeem.KindOK,
			wantUsed:      1,
			wantLimit:     2,
			wantRemaining: 1,
		},
		{
			name:          "over a lowered limit",
			code:          spring23,
			record:        &usage.Record{Email: testEmail, Code: "SPRING23", UsedCount: 5},
			want:          redeem.KindOK,
			wantUsed:      5,
			wantLimit:     2,
			wantRemaining: 0,
		},
		{
			name:          "zero limit with existing record",
			code:          &cheat.Code{Code: "SPRING23", Active: true},
			record:        &usage.Record{Email: testEmail, Code: "SPRING23", UsedCount: 3},
			want:          redeem.KindOK,
			wantUsed:      3,
			wantRemaining: redeem.Unbounded,
		},
		{
			name:   "store failure",
			code:   spring23,
			getErr: errors.New("timeout"),
			want:   redeem.KindUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := redeemtest.NewMocks()
			m.Tokens.On("Verify", testToken).Return(testEmail, nil)
			m.Members.On("Lookup", mock.Anything, testEmail).Return(goldMember, nil)
			m.Codes.On("Lookup", mock.Anything, "SPRING23").Return(tt.code, nil)
			if tt.record != nil {
				m.Usage.On("Get", mock.Anything, testEmail, "SPRING23").Return(tt.record, nil)
			} else {
				m.Usage.On("Get", mock.Anything, testEmail, "SPRING23").Return(nil, tt.getErr)
			}
			engine := newEngine(t, m)

			result := engine.Usage(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})

			assert.Equal(t, tt.want, result.Kind)
			assert.Equal(t, tt.wantUsed, result.UsedCount)
			assert.Equal(t, tt.wantLimit, result.AmountLimit)
			assert.Equal(t, tt.wantRemaining, result.Remaining)
			m.Usage.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEngine_Usage_Rejections(t *testing.T) {
	m := redeemtest.NewMocks()
	m.Tokens.On("Verify", testToken).Return(testEmail, nil)
	m.Members.On("Lookup", mock.Anything, testEmail).
		Return(&member.Member{Email: testEmail, Blacklisted: true}, nil)
	engine := newEngine(t, m)

	result := engine.Usage(context.Background(), redeem.Request{Token: testToken, Code: "SPRING23"})
	assert.Equal(t, redeem.KindBanned, result.Kind)

	result = engine.Usage(context.Background(), redeem.Request{Code: "SPRING23"})
	assert.Equal(t, redeem.KindFail, result.Kind)

	m.Usage.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestKind_Wire(t *testing.T) {
	assert.Equal(t, "limit_reached", redeem.KindLimitReached.Wire())
	assert.Equal(t, "fail", redeem.KindUnavailable.Wire())
	assert.Equal(t, "ok", redeem.KindOK.Wire())
}

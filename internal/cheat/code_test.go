// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package cheat_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/pkg/errutil"
)

type stubRepo struct {
	codes map[string]*cheat.Code
	err   error
}

func (s *stubRepo) GetByCode(_ context.Context, code string) (*cheat.Code, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.codes[code]
	if !ok {
		return nil, cheat.ErrNotFound
	}
	return c, nil
}

func TestCode_AllowsTier(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		tier    string
		want    bool
	}{
		{"empty list is unrestricted", nil, "bronze", true},
		{"empty list allows empty tier", []string{}, "", true},
		{"listed tier", []string{"gold", "platinum"}, "gold", true},
		{"unlisted tier", []string{"gold", "platinum"}, "bronze", false},
		{"match is exact", []string{"gold"}, "Gold", false},
		{"empty tier against restricted list", []string{"gold"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &cheat.Code{Code: "X", AllowedTiers: tt.allowed}
			assert.Equal(t, tt.want, c.AllowsTier(tt.tier))
		})
	}
}

func TestCode_UsableAndLimit(t *testing.T) {
	assert.True(t, (&cheat.Code{Active: true}).Usable())
	assert.False(t, (&cheat.Code{Active: false}).Usable())

	var nilCode *cheat.Code
	assert.False(t, nilCode.Usable())
	assert.Equal(t, 0, nilCode.Limit())
	assert.Equal(t, 3, (&cheat.Code{AmountLimit: 3}).Limit())
}

func TestCode_Validate(t *testing.T) {
	tests := []struct {
		name string
		code cheat.Code
		want string
	}{
		{"valid", cheat.Code{Code: "SPRING23", AmountLimit: 2, Payload: json.RawMessage(`{"coins":5}`)}, ""},
		{"zero limit is allowed", cheat.Code{Code: "OFF"}, ""},
		{"empty code", cheat.Code{}, "CHEAT_INVALID_CODE"},
		{"negative limit", cheat.Code{Code: "X", AmountLimit: -1}, "CHEAT_INVALID_LIMIT"},
		{"bad payload", cheat.Code{Code: "X", Payload: json.RawMessage(`{nope`)}, "CHEAT_INVALID_PAYLOAD"},
		{"blank tier", cheat.Code{Code: "X", AllowedTiers: []string{"gold", " "}}, "CHEAT_INVALID_TIER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.code.Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.want)
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	ctx := context.Background()
	spring := &cheat.Code{Code: "SPRING23", Active: true, AmountLimit: 2, Effect: "double_xp"}

	t.Run("nil repository is rejected", func(t *testing.T) {
		r, err := cheat.NewRegistry(nil, nil)
		require.Error(t, err)
		assert.Nil(t, r)
	})

	t.Run("found", func(t *testing.T) {
		r, err := cheat.NewRegistry(&stubRepo{codes: map[string]*cheat.Code{"SPRING23": spring}}, nil)
		require.NoError(t, err)

		got, err := r.Lookup(ctx, "SPRING23")
		require.NoError(t, err)
		assert.Same(t, spring, got)
	})

	t.Run("not found", func(t *testing.T) {
		r, err := cheat.NewRegistry(&stubRepo{}, nil)
		require.NoError(t, err)

		_, err = r.Lookup(ctx, "NOPE")
		assert.ErrorIs(t, err, cheat.ErrNotFound)

		_, err = r.Lookup(ctx, "")
		assert.ErrorIs(t, err, cheat.ErrNotFound)
	})

	t.Run("store error", func(t *testing.T) {
		r, err := cheat.NewRegistry(&stubRepo{err: errors.New("timeout")}, nil)
		require.NoError(t, err)

		_, err = r.Lookup(ctx, "SPRING23")
		require.Error(t, err)
		assert.NotErrorIs(t, err, cheat.ErrNotFound)
		errutil.AssertErrorContext(t, err, "code", "SPRING23")
	})
}

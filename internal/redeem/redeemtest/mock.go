// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package redeemtest provides testify mocks for the redemption engine's
// collaborators.
package redeemtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/redeem"
	"github.com/cheatgate/cheatgate/internal/usage"
)

// MockTokenVerifier is a mock for redeem.TokenVerifier.
type MockTokenVerifier struct {
	mock.Mock
}

// Verify implements redeem.TokenVerifier.
func (m *MockTokenVerifier) Verify(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

// MockMemberLookup is a mock for redeem.MemberLookup.
type MockMemberLookup struct {
	mock.Mock
}

// Lookup implements redeem.MemberLookup.
func (m *MockMemberLookup) Lookup(ctx context.Context, email string) (*member.Member, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

// MockCodeLookup is a mock for redeem.CodeLookup.
type MockCodeLookup struct {
	mock.Mock
}

// Lookup implements redeem.CodeLookup.
func (m *MockCodeLookup) Lookup(ctx context.Context, code string) (*cheat.Code, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cheat.Code), args.Error(1)
}

// MockUsageStore is a mock for usage.Store.
type MockUsageStore struct {
	mock.Mock
}

// Consume implements usage.Store.
func (m *MockUsageStore) Consume(ctx context.Context, email, code string, limit int) (usage.Consumption, error) {
	args := m.Called(ctx, email, code, limit)
	return args.Get(0).(usage.Consumption), args.Error(1)
}

// Get implements usage.Store.
func (m *MockUsageStore) Get(ctx context.Context, email, code string) (*usage.Record, error) {
	args := m.Called(ctx, email, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usage.Record), args.Error(1)
}

// Mocks bundles one of each mock.
type Mocks struct {
	Tokens  *MockTokenVerifier
	Members *MockMemberLookup
	Codes   *MockCodeLookup
	Usage   *MockUsageStore
}

// NewMocks returns fresh mocks.
func NewMocks() *Mocks {
	return &Mocks{
		Tokens:  new(MockTokenVerifier),
		Members: new(MockMemberLookup),
		Codes:   new(MockCodeLookup),
		Usage:   new(MockUsageStore),
	}
}

// Config returns an EngineConfig wired to the mocks.
func (m *Mocks) Config() redeem.EngineConfig {
	return redeem.EngineConfig{
		Tokens:  m.Tokens,
		Members: m.Members,
		Codes:   m.Codes,
		Usage:   m.Usage,
	}
}

// AssertExpectations asserts every mock's expectations.
func (m *Mocks) AssertExpectations(t mock.TestingT) {
	m.Tokens.AssertExpectations(t)
	m.Members.AssertExpectations(t)
	m.Codes.AssertExpectations(t)
	m.Usage.AssertExpectations(t)
}

// Verify interfaces are satisfied.
var (
	_ redeem.TokenVerifier = (*MockTokenVerifier)(nil)
	_ redeem.MemberLookup  = (*MockMemberLookup)(nil)
	_ redeem.CodeLookup    = (*MockCodeLookup)(nil)
	_ usage.Store          = (*MockUsageStore)(nil)
)

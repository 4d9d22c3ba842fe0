// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/pkg/errutil"
)

// DefaultLookupTimeout bounds a single directory lookup during login.
const DefaultLookupTimeout = 5 * time.Second

// MemberLookup resolves members by email. *member.Directory implements it.
type MemberLookup interface {
	Lookup(ctx context.Context, email string) (*member.Member, error)
}

// LoginResult is the outcome of Service.Login.
type LoginResult struct {
	Outcome   Outcome
	Token     string
	ExpiresAt time.Time
}

// VerifyResult is the outcome of Service.VerifyToken.
type VerifyResult struct {
	Outcome Outcome
	Email   string
}

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Members MemberLookup
	Tokens  *TokenService
	// Timeout bounds each directory call. Zero means DefaultLookupTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Service implements login and token verification.
type Service struct {
	members MemberLookup
	tokens  *TokenService
	timeout time.Duration
	logger  *slog.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Members == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("member lookup is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token service is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		members: cfg.Members,
		tokens:  cfg.Tokens,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Login issues a token for email when the member exists and is not blacklisted.
// Unknown and empty emails both yield OutcomeFail.
func (s *Service) Login(ctx context.Context, email string) LoginResult {
	result := s.login(ctx, email)
	LoginsTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result
}

func (s *Service) login(ctx context.Context, email string) LoginResult {
	if email == "" {
		return LoginResult{Outcome: OutcomeFail}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m, err := s.members.Lookup(lookupCtx, email)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return LoginResult{Outcome: OutcomeFail}
		}
		errutil.LogErrorContext(ctx, s.logger, "login lookup failed", err)
		return LoginResult{Outcome: OutcomeUnavailable}
	}
	if m.Blacklisted {
		return LoginResult{Outcome: OutcomeBanned}
	}

	token, expiresAt, err := s.tokens.Issue(m.Email)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "token issue failed", err)
		return LoginResult{Outcome: OutcomeFail}
	}
	return LoginResult{Outcome: OutcomeOK, Token: token, ExpiresAt: expiresAt}
}

// VerifyToken checks signature and expiry only. It does not consult the
// directory, so a token stays valid after its member is blacklisted.
func (s *Service) VerifyToken(token string) VerifyResult {
	email, err := s.tokens.Verify(token)
	if err != nil {
		TokenVerificationsTotal.WithLabelValues(string(OutcomeInvalid)).Inc()
		return VerifyResult{Outcome: OutcomeInvalid}
	}
	TokenVerificationsTotal.WithLabelValues(string(OutcomeOK)).Inc()
	return VerifyResult{Outcome: OutcomeOK, Email: email}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package auth

import (
	"crypto/sha256"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
	"golang.org/x/crypto/hkdf"
)

// Token configuration.
const (
	DefaultTokenTTL = 7 * 24 * time.Hour
	MinSecretLength = 32

	signingKeyBytes = 32
)

// HKDF parameters. Changing either invalidates every issued token.
var (
	keySalt = []byte("cheatgate.token.v1")
	keyInfo = []byte("hs256 signing key")
)

// placeholderSecrets are values that ship in sample configs and must never sign tokens.
var placeholderSecrets = []string{"change_me_now", "changeme", "secret", "password"}

// ErrInvalidToken is the only error Verify returns. Callers must not
// distinguish between malformed, forged and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// ValidateSecret rejects missing, placeholder and short signing secrets.
func ValidateSecret(secret []byte) error {
	trimmed := strings.TrimSpace(string(secret))
	if trimmed == "" {
		return oops.Code("TOKEN_SECRET_MISSING").Errorf("token secret is required")
	}
	for _, p := range placeholderSecrets {
		if strings.EqualFold(trimmed, p) {
			return oops.Code("TOKEN_SECRET_PLACEHOLDER").Errorf("token secret is a placeholder value")
		}
	}
	if len(secret) < MinSecretLength {
		return oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min_length", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	return nil
}

// TokenService issues and verifies HS256 bearer tokens. It holds no
// per-token state; a token is valid iff its signature and expiry check out.
type TokenService struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTTL overrides DefaultTokenTTL.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService derives the signing key from secret and returns a ready service.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}

	key := make([]byte, signingKeyBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, keySalt, keyInfo), key); err != nil {
		return nil, oops.Code("TOKEN_KEY_DERIVE_FAILED").Wrap(err)
	}

	s := &TokenService{key: key, ttl: DefaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for email, valid from now until now+TTL.
func (s *TokenService) Issue(email string) (token string, expiresAt time.Time, err error) {
	if email == "" {
		return "", time.Time{}, oops.Code("TOKEN_INVALID_SUBJECT").Errorf("token subject cannot be empty")
	}

	now := s.now()
	expiresAt = now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("subject", email).Wrap(err)
	}
	return token, expiresAt, nil
}

// Verify returns the subject of a valid token. Any failure yields ErrInvalidToken.
func (s *TokenService) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package auth provides login and bearer-token primitives for Cheatgate.
//
// # Tokens
//
// TokenService issues HS256 tokens carrying exactly three claims: sub (the
// member email), iat and exp. The signing key is derived from the configured
// secret with HKDF-SHA256. Tokens are stateless; there is no revocation list.
//
// # Services
//
// Service coordinates the directory and the token service:
//   - Login - issues a token for a known, non-blacklisted member
//   - VerifyToken - reports whether a token is currently valid
//
// Neither method returns an error. Every failure is folded into an Outcome,
// and store faults surface as OutcomeUnavailable.
package auth

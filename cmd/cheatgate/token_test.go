// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheatgate/cheatgate/pkg/errutil"
)

func TestTokenCmd_IssueThenVerify(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	out, errOut, err := execute(ctx, nil, "token", "issue", "a@x.com", "--ttl", "1h")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.Equal(t, 2, strings.Count(token, "."), "expected a JWT, got %q", token)
	assert.Contains(t, errOut, "expires ")

	out, _, err = execute(ctx, nil, "token", "verify", token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", strings.TrimSpace(out))
}

func TestTokenCmd_VerifyRejectsGarbage(t *testing.T) {
	testEnv(t)

	_, _, err := execute(context.Background(), nil, "token", "verify", "not-a-token")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "TOKEN_INVALID")
}

func TestTokenCmd_RejectsPlaceholderSecret(t *testing.T) {
	testEnv(t)
	t.Setenv("CHEATGATE_TOKEN__SECRET", "CHANGE_ME_NOW")

	_, _, err := execute(context.Background(), nil, "token", "issue", "a@x.com")
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "key", "token.secret")
}

func TestTokenCmd_IgnoresStoreSettings(t *testing.T) {
	testEnv(t)
	t.Setenv("CHEATGATE_STORE__DRIVER", "postgres")

	_, _, err := execute(context.Background(), nil, "token", "issue", "a@x.com")
	require.NoError(t, err, "token tooling needs no database")
}

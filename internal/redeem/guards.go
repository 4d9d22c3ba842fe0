// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package redeem

import (
	"context"
	"errors"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/usage"
)

// Guard names, in execution order.
const (
	GuardRequireFields = "require_fields"
	GuardVerifyToken   = "verify_token"
	GuardLoadMember    = "load_member"
	GuardCheckBan      = "check_ban"
	GuardLoadCode      = "load_code"
	GuardCheckActive   = "check_active"
	GuardCheckTier     = "check_tier"
	GuardResolveLimit  = "resolve_limit"
	GuardConsume       = "consume"
)

// authGuards is the length of the pipeline prefix that authenticates the
// member and resolves the code, ending with GuardLoadCode.
const authGuards = 5

// attempt carries state between guards.
type attempt struct {
	req    Request
	email  string
	member *member.Member
	code   *cheat.Code
	limit  int
	usage  usage.Consumption
	// err is the store fault behind a KindUnavailable result.
	err error
}

// guardFunc returns nil to continue or a terminal result.
type guardFunc func(ctx context.Context, a *attempt) *Result

type guard struct {
	name string
	fn   guardFunc
}

func (e *Engine) pipeline() []guard {
	return []guard{
		{GuardRequireFields, e.requireFields},
		{GuardVerifyToken, e.verifyToken},
		{GuardLoadMember, e.loadMember},
		{GuardCheckBan, e.checkBan},
		{GuardLoadCode, e.loadCode},
		{GuardCheckActive, e.checkActive},
		{GuardCheckTier, e.checkTier},
		{GuardResolveLimit, e.resolveLimit},
		{GuardConsume, e.consume},
	}
}

func (e *Engine) requireFields(_ context.Context, a *attempt) *Result {
	if a.req.Token == "" || a.req.Code == "" {
		return terminal(KindFail)
	}
	return nil
}

func (e *Engine) verifyToken(_ context.Context, a *attempt) *Result {
	email, err := e.tokens.Verify(a.req.Token)
	if err != nil || email == "" {
		return terminal(KindUnauthorized)
	}
	a.email = email
	return nil
}

func (e *Engine) loadMember(ctx context.Context, a *attempt) *Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	m, err := e.members.Lookup(ctx, a.email)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return terminal(KindUnauthorized)
		}
		a.err = err
		return terminal(KindUnavailable)
	}
	a.member = m
	return nil
}

func (e *Engine) checkBan(_ context.Context, a *attempt) *Result {
	if !a.member.Eligible() {
		return terminal(KindBanned)
	}
	return nil
}

func (e *Engine) loadCode(ctx context.Context, a *attempt) *Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	c, err := e.codes.Lookup(ctx, a.req.Code)
	if err != nil {
		if errors.Is(err, cheat.ErrNotFound) {
			return terminal(KindInvalidCode)
		}
		a.err = err
		return terminal(KindUnavailable)
	}
	a.code = c
	return nil
}

func (e *Engine) checkActive(_ context.Context, a *attempt) *Result {
	if !a.code.Usable() {
		return terminal(KindCodeDisabled)
	}
	return nil
}

func (e *Engine) checkTier(_ context.Context, a *attempt) *Result {
	if !a.code.AllowsTier(a.member.Tier) {
		return terminal(KindTierNotAllowed)
	}
	return nil
}

func (e *Engine) resolveLimit(_ context.Context, a *attempt) *Result {
	a.limit = a.code.Limit()
	return nil
}

func (e *Engine) consume(ctx context.Context, a *attempt) *Result {
	c, err := e.consumeWithRetry(ctx, a.member.Email, a.code.Code, a.limit)
	if err != nil {
		a.err = err
		return terminal(KindUnavailable)
	}
	a.usage = c
	if !c.Granted {
		return &Result{Kind: KindLimitReached, UsedCount: c.UsedCount}
	}
	return &Result{
		Kind:      KindOK,
		Effect:    a.code.Effect,
		Payload:   a.code.Payload,
		UsedCount: c.UsedCount,
	}
}

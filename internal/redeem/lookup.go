// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package redeem

import (
	"context"
	"errors"

	"github.com/cheatgate/cheatgate/internal/usage"
	"github.com/cheatgate/cheatgate/pkg/errutil"
)

// Unbounded is reported as Remaining when an existing record can always be
// incremented because the code has no positive limit.
const Unbounded = -1

// UsageResult is the outcome of Engine.Usage.
type UsageResult struct {
	Kind        Kind
	UsedCount   int
	AmountLimit int
	Remaining   int
}

// Usage reports how often the token's member has redeemed code. It
// authenticates exactly like Redeem up to the code lookup and never writes.
// Activity and tier are not checked; a disabled code still reports its count.
func (e *Engine) Usage(ctx context.Context, req Request) UsageResult {
	a := &attempt{req: req}
	if r := e.run(ctx, a, e.guards[:authGuards]); r.Kind != "" {
		if a.err != nil {
			errutil.LogErrorContext(ctx, e.logger, "usage lookup store failure", a.err)
		}
		return UsageResult{Kind: r.Kind}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	used := 0
	exists := true
	rec, err := e.usage.Get(lookupCtx, a.member.Email, a.code.Code)
	switch {
	case errors.Is(err, usage.ErrNotFound):
		exists = false
	case err != nil:
		errutil.LogErrorContext(ctx, e.logger, "usage lookup store failure", err)
		return UsageResult{Kind: KindUnavailable}
	default:
		used = rec.UsedCount
	}

	limit := a.code.Limit()
	return UsageResult{
		Kind:        KindOK,
		UsedCount:   used,
		AmountLimit: limit,
		Remaining:   remaining(exists, used, limit),
	}
}

func remaining(exists bool, used, limit int) int {
	if limit > 0 {
		return max(limit-used, 0)
	}
	if exists {
		return Unbounded
	}
	return 0
}

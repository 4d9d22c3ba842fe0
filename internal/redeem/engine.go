// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package redeem implements cheat code redemption.
//
// An Engine runs each attempt through a fixed pipeline of guards. Every guard
// either lets the attempt continue or ends it with a Result; the order is
// part of the observable behaviour (a banned member never reaches the code
// lookup, a disabled code never reaches the usage store). The final guard
// performs the only write, a single atomic usage.Store.Consume call.
package redeem

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/usage"
	"github.com/cheatgate/cheatgate/pkg/errutil"
)

var tracer = otel.Tracer("cheatgate/redeem")

// Engine defaults.
const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultRetryBase    = 10 * time.Millisecond
)

// TokenVerifier resolves a bearer token to its subject email.
// *auth.TokenService implements it.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// MemberLookup resolves members. *member.Directory implements it.
type MemberLookup interface {
	Lookup(ctx context.Context, email string) (*member.Member, error)
}

// CodeLookup resolves cheat codes. *cheat.Registry implements it.
type CodeLookup interface {
	Lookup(ctx context.Context, code string) (*cheat.Code, error)
}

// EngineConfig holds dependencies for Engine.
type EngineConfig struct {
	Tokens  TokenVerifier
	Members MemberLookup
	Codes   CodeLookup
	Usage   usage.Store

	// Timeout bounds each store call. Zero means DefaultStoreTimeout.
	Timeout time.Duration
	// MaxRetries is how many times a transient consume failure is retried.
	// Negative values are treated as zero.
	MaxRetries int
	// RetryBase is the first backoff interval. Zero means DefaultRetryBase.
	RetryBase time.Duration

	Logger *slog.Logger
}

// Engine redeems cheat codes.
type Engine struct {
	tokens     TokenVerifier
	members    MemberLookup
	codes      CodeLookup
	usage      usage.Store
	timeout    time.Duration
	maxRetries uint64
	retryBase  time.Duration
	logger     *slog.Logger
	guards     []guard
}

// NewEngine validates cfg and builds the guard pipeline.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Tokens == nil:
		return nil, oops.Code("REDEEM_INVALID_CONFIG").Errorf("token verifier is required")
	case cfg.Members == nil:
		return nil, oops.Code("REDEEM_INVALID_CONFIG").Errorf("member lookup is required")
	case cfg.Codes == nil:
		return nil, oops.Code("REDEEM_INVALID_CONFIG").Errorf("code lookup is required")
	case cfg.Usage == nil:
		return nil, oops.Code("REDEEM_INVALID_CONFIG").Errorf("usage store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStoreTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Engine{
		tokens:     cfg.Tokens,
		members:    cfg.Members,
		codes:      cfg.Codes,
		usage:      cfg.Usage,
		timeout:    cfg.Timeout,
		maxRetries: uint64(cfg.MaxRetries),
		retryBase:  cfg.RetryBase,
		logger:     cfg.Logger,
	}
	e.guards = e.pipeline()
	return e, nil
}

// Guards returns the guard names in execution order.
func (e *Engine) Guards() []string {
	names := make([]string, len(e.guards))
	for i, g := range e.guards {
		names[i] = g.name
	}
	return names
}

// Redeem runs one redemption attempt. It never returns an error: every
// failure is reported through Result.Kind.
func (e *Engine) Redeem(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "redeem.attempt",
		trace.WithAttributes(attribute.String("cheat.code", req.Code)),
	)
	defer span.End()

	a := &attempt{req: req}
	result := e.run(ctx, a, e.guards)

	span.SetAttributes(
		attribute.String("redeem.result", string(result.Kind)),
		attribute.String("redeem.guard", result.Guard),
	)
	if a.err != nil {
		span.RecordError(a.err)
		span.SetStatus(codes.Error, "store unavailable")
		errutil.LogErrorContext(ctx, e.logger, "redemption store failure", a.err)
	}

	RecordRedemption(result.Kind, time.Since(start))
	e.logger.DebugContext(ctx, "redemption attempt",
		"result", result.Kind,
		"guard", result.Guard,
		"cheat_code", req.Code,
		"used_count", result.UsedCount,
	)
	return result
}

func (e *Engine) run(ctx context.Context, a *attempt, guards []guard) Result {
	for _, g := range guards {
		if r := g.fn(ctx, a); r != nil {
			r.Guard = g.name
			return *r
		}
	}
	return Result{}
}

func (e *Engine) consumeWithRetry(ctx context.Context, email, code string, limit int) (usage.Consumption, error) {
	var (
		out      usage.Consumption
		attempts int
	)
	backoff := retry.WithMaxRetries(e.maxRetries, retry.WithJitterPercent(20, retry.NewExponential(e.retryBase)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		c, err := e.usage.Consume(callCtx, email, code, limit)
		if err != nil {
			if errors.Is(err, usage.ErrTransient) {
				RecordConsumeRetry()
				return retry.RetryableError(err)
			}
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return usage.Consumption{}, oops.Code("REDEEM_CONSUME_FAILED").
			With("operation", "consume usage").
			With("email", email).
			With("cheat_code", code).
			With("attempts", attempts).
			Wrap(err)
	}
	return out, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package redeem

import "encoding/json"

// Kind is the outcome of a redemption attempt.
type Kind string

// Redemption outcomes, in the order their guards run.
const (
	KindOK             Kind = "ok"
	KindFail           Kind = "fail"
	KindUnauthorized   Kind = "unauthorized"
	KindBanned         Kind = "banned"
	KindInvalidCode    Kind = "invalid_code"
	KindCodeDisabled   Kind = "code_disabled"
	KindTierNotAllowed Kind = "tier_not_allowed"
	KindLimitReached   Kind = "limit_reached"
	KindUnavailable    Kind = "unavailable"
)

// Wire returns the result string sent to clients. Store faults are reported
// as a plain failure without detail.
func (k Kind) Wire() string {
	if k == KindUnavailable {
		return string(KindFail)
	}
	return string(k)
}

// Request is a single redemption attempt.
type Request struct {
	Token string
	Code  string
}

// Result is the terminal outcome of Redeem. Effect and Payload are set only
// for KindOK and are the code's values, unmodified.
type Result struct {
	Kind      Kind
	Effect    string
	Payload   json.RawMessage
	UsedCount int
	// Guard names the step that produced the result.
	Guard string
}

func terminal(kind Kind) *Result {
	return &Result{Kind: kind}
}

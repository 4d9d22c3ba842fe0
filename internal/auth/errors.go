// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package auth

// Outcome is the result kind of a login or token check.
type Outcome string

// Outcomes reported by Service.
const (
	OutcomeOK      Outcome = "ok"
	OutcomeFail    Outcome = "fail"
	OutcomeBanned  Outcome = "banned"
	OutcomeInvalid Outcome = "invalid"
	// OutcomeUnavailable means a store call failed or timed out.
	OutcomeUnavailable Outcome = "unavailable"
)

// Wire returns the result string sent to clients. Store faults are not
// exposed as a separate kind.
func (o Outcome) Wire() string {
	if o == OutcomeUnavailable {
		return string(OutcomeFail)
	}
	return string(o)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// LoginsTotal counts login attempts by outcome.
var LoginsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cheatgate_logins_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// TokenVerificationsTotal counts token checks by outcome.
var TokenVerificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cheatgate_token_verifications_total",
		Help: "Total number of token verifications by result",
	},
	[]string{"result"},
)

// RegisterMetrics registers auth metrics with reg. Panics on duplicate registration.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginsTotal)
	reg.MustRegister(TokenVerificationsTotal)
}

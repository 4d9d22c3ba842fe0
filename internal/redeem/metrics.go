// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package redeem

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RedemptionsTotal counts redemption attempts by result kind.
var RedemptionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cheatgate_redemptions_total",
		Help: "Total number of redemption attempts by result",
	},
	[]string{"result"},
)

// RedemptionDuration tracks end-to-end redemption latency.
var RedemptionDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "cheatgate_redemption_duration_seconds",
		Help:    "Redemption latency in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// ConsumeRetriesTotal counts consume calls retried after a transient store failure.
var ConsumeRetriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "cheatgate_consume_retries_total",
		Help: "Total number of usage consume retries after transient store failures",
	},
)

// RegisterMetrics registers redemption metrics with reg. Panics on duplicate registration.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(RedemptionsTotal)
	reg.MustRegister(RedemptionDuration)
	reg.MustRegister(ConsumeRetriesTotal)
}

// RecordRedemption records one finished attempt.
func RecordRedemption(kind Kind, d time.Duration) {
	RedemptionsTotal.WithLabelValues(string(kind)).Inc()
	RedemptionDuration.Observe(d.Seconds())
}

// RecordConsumeRetry records one transient consume failure.
func RecordConsumeRetry() {
	ConsumeRetriesTotal.Inc()
}

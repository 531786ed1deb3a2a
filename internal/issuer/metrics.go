/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package issuer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the issuance pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	// Issuance outcomes: "issued" or an error kind
	Outcomes *prometheus.CounterVec

	// Per-stage latency
	StageLatency *prometheus.HistogramVec

	// Best-effort provider deletions that failed
	DeleteFailures prometheus.Counter
}

// NewMetrics registers the issuer metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuer_issuances_total",
			Help: "Total issuance requests by outcome",
		}, []string{"outcome"}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issuer_stage_duration_seconds",
			Help:    "Duration of issuance pipeline stages",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"stage"}),

		DeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "issuer_provider_delete_failures_total",
			Help: "Provider deletions that failed after a successful issuance",
		}),
	}
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) incOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) incDeleteFailure() {
	if m != nil {
		m.DeleteFailures.Inc()
	}
}

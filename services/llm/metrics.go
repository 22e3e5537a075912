// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Provider Calls
// =============================================================================

var (
	// providerCalls counts completion calls.
	// Labels: provider, status (success, rate_limited, error)
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesentinel",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Total provider completion calls by outcome",
	}, []string{"provider", "status"})

	// providerLatency measures a single completion round trip.
	// Labels: provider
	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codesentinel",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Provider completion latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"provider"})

	// providerRetries counts rate-limit retries.
	// Labels: provider
	providerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesentinel",
		Subsystem: "llm",
		Name:      "retries_total",
		Help:      "Total retries after a rate-limit response",
	}, []string{"provider"})

	// providerFallbacks counts fallback classifications.
	// Labels: provider, reason (rate_limited, call_error, parse_error)
	providerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesentinel",
		Subsystem: "llm",
		Name:      "fallbacks_total",
		Help:      "Total fallback classifications by reason",
	}, []string{"provider", "reason"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// recordCall records one completion attempt.
func recordCall(provider, status string, durationSec float64) {
	providerCalls.WithLabelValues(provider, status).Inc()
	providerLatency.WithLabelValues(provider).Observe(durationSec)
}

// recordRetry records a rate-limit retry.
func recordRetry(provider string) {
	providerRetries.WithLabelValues(provider).Inc()
}

// recordFallback records a fallback classification.
//
// Inputs:
//
//	provider - The provider name.
//	reason - "rate_limited", "call_error", or "parse_error".
func recordFallback(provider, reason string) {
	providerFallbacks.WithLabelValues(provider, reason).Inc()
}

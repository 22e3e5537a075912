// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filesTotal counts files by terminal state.
	// Labels: state (classified, skipped, failed)
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesentinel",
		Subsystem: "classifier",
		Name:      "files_total",
		Help:      "Files processed by the classifier, by terminal state",
	}, []string{"state"})

	// cacheHits counts classifications served from the cache.
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codesentinel",
		Subsystem: "classifier",
		Name:      "cache_hits_total",
		Help:      "Classifications served from the cache",
	})

	// batchDuration measures a whole batch including pacing.
	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codesentinel",
		Subsystem: "classifier",
		Name:      "batch_duration_seconds",
		Help:      "Wall-clock duration of a classification batch",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
)

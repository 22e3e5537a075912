// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesentinel",
		Subsystem: "risk",
		Name:      "assessments_total",
		Help:      "Files assessed, by priority tier",
	}, []string{"priority"})

	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesentinel",
		Subsystem: "risk",
		Name:      "config_reloads_total",
		Help:      "Scoring configuration reloads, by result (ok, fallback)",
	}, []string{"result"})
)

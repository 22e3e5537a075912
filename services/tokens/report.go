// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokens

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// Report is the persisted token analysis.
type Report struct {
	RepositoryStats RepositoryStats `json:"repository_stats"`
	FileStats       []TokenStats    `json:"file_stats"`
	PricingInfo     Pricing         `json:"pricing_info"`
	Metadata        ReportMetadata  `json:"analysis_metadata"`
}

// ReportMetadata records how the estimate was produced.
type ReportMetadata struct {
	Encoder     string    `json:"encoder"`
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Note        string    `json:"note"`
}

// NewReport assembles a Report from an estimator run.
func (e *Estimator) NewReport(stats []TokenStats, repo RepositoryStats, runID string) Report {
	if stats == nil {
		stats = []TokenStats{}
	}
	return Report{
		RepositoryStats: repo,
		FileStats:       stats,
		PricingInfo:     e.pricing,
		Metadata: ReportMetadata{
			Encoder:     e.counter.Name(),
			RunID:       runID,
			GeneratedAt: time.Now().UTC(),
			Note:        "Costs are estimates based on list prices",
		},
	}
}

// Marshal encodes r as indented JSON.
func (r Report) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode token report: %w", err)
	}
	return append(data, '\n'), nil
}

// SaveReport writes r to path atomically.
func SaveReport(r Report, path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	return manifest.WriteFileAtomic(path, data)
}

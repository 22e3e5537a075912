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
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// Report is the persisted result of a scoring pass with every component
// breakdown, which the manifest itself does not carry.
type Report struct {
	Repository   manifest.RepositoryDescriptor `json:"repository"`
	RunID        string                        `json:"run_id,omitempty"`
	GeneratedAt  time.Time                     `json:"generated_at"`
	ConfigSource string                        `json:"config_source"`
	Distribution Distribution                  `json:"priority_distribution"`
	Assessments  []manifest.RiskAssessment     `json:"assessments"`
}

// NewReport collects the assessments held on m's records, ordered by
// descending score and then path.
func NewReport(m *manifest.Manifest, e *Engine, runID string) Report {
	r := Report{
		Repository:   m.Repository,
		RunID:        runID,
		GeneratedAt:  time.Now().UTC(),
		ConfigSource: displayPath(e.Path()),
		Distribution: newDistribution(),
		Assessments:  []manifest.RiskAssessment{},
	}
	for i := range m.Files {
		if a := m.Files[i].Assessment; a != nil {
			r.Assessments = append(r.Assessments, *a)
			r.Distribution[a.Priority]++
		}
	}
	sort.SliceStable(r.Assessments, func(i, j int) bool {
		if r.Assessments[i].RiskScore != r.Assessments[j].RiskScore {
			return r.Assessments[i].RiskScore > r.Assessments[j].RiskScore
		}
		return r.Assessments[i].Path < r.Assessments[j].Path
	})
	return r
}

// Marshal encodes r as indented JSON.
func (r Report) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode risk report: %w", err)
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

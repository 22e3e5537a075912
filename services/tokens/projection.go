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
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// Projection constants.
const (
	PromptOverheadTokens  = 250
	DefaultTokensPerFile  = 1000
	DefaultRequestSpacing = 20 * time.Second

	// inputShare of projected tokens are priced as input, the rest as
	// output.
	inputShare = 0.9
)

// extensionTokens is the typical content size per file type.
var extensionTokens = map[string]int{
	".js": 1200, ".jsx": 1400, ".ts": 1300, ".tsx": 1500,
	".py": 1800, ".java": 2200, ".cpp": 2000, ".c": 1600, ".h": 800,
	".css": 600, ".html": 500, ".json": 400, ".yaml": 300, ".yml": 300,
	".xml": 500, ".go": 1400, ".rb": 1600, ".php": 1500, ".cs": 1900,
	".sql": 800,
}

// sizeMultiplier scales the per-extension estimate by byte size.
func sizeMultiplier(size int64) float64 {
	switch {
	case size > 50000:
		return 2.0
	case size > 20000:
		return 1.5
	case size > 5000:
		return 1.2
	case size < 1000:
		return 0.5
	default:
		return 1.0
	}
}

// ProjectFileTokens estimates total request tokens for a file from its
// extension and size alone.
func ProjectFileTokens(extension string, size int64) int {
	base, ok := extensionTokens[strings.ToLower(extension)]
	if !ok {
		base = DefaultTokensPerFile
	}
	content := int(float64(base) * sizeMultiplier(size))
	return content + PromptOverheadTokens + DefaultResponseTokens
}

// ExtensionProjection is the per-extension breakdown.
type ExtensionProjection struct {
	Extension   string  `json:"extension"`
	Count       int     `json:"count"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	AvgTokens   float64 `json:"avg_tokens"`
	AvgCost     float64 `json:"avg_cost"`
}

// Projection is a content-free cost forecast for a manifest.
type Projection struct {
	TotalFiles                 int                   `json:"total_files"`
	EstimatedTotalTokens       int                   `json:"estimated_total_tokens"`
	EstimatedTotalCostUSD      float64               `json:"estimated_total_cost_usd"`
	EstimatedAnalysisTimeHours float64               `json:"estimated_analysis_time_hours"`
	FileTypes                  []ExtensionProjection `json:"file_type_breakdown"`
}

// Project forecasts the cost of classifying m without reading content.
//
// Description:
//
//	Each file is sized from an extension table and a byte-size multiplier
//	plus fixed prompt and response overheads. Cost treats 90% of tokens as
//	input. Wall-clock time assumes one request per spacing interval.
//	FileTypes is sorted by cost, highest first.
//
// Inputs:
//
//	m - The manifest; only extension and size are read.
//	pricing - The price table.
//	spacing - Seconds between requests; zero uses DefaultRequestSpacing.
func Project(m *manifest.Manifest, pricing Pricing, spacing time.Duration) Projection {
	if spacing <= 0 {
		spacing = DefaultRequestSpacing
	}

	byExt := make(map[string]*ExtensionProjection)
	p := Projection{TotalFiles: m.Len()}
	for i := range m.Files {
		f := &m.Files[i]
		tokens := ProjectFileTokens(f.Extension, f.Size)
		cost := float64(tokens)*inputShare/1000*pricing.InputPricePer1K +
			float64(tokens)*(1-inputShare)/1000*pricing.OutputPricePer1K

		p.EstimatedTotalTokens += tokens
		p.EstimatedTotalCostUSD += cost

		ext := strings.ToLower(f.Extension)
		row, ok := byExt[ext]
		if !ok {
			row = &ExtensionProjection{Extension: ext}
			byExt[ext] = row
		}
		row.Count++
		row.TotalTokens += tokens
		row.TotalCost += cost
	}

	for _, row := range byExt {
		row.AvgTokens = float64(row.TotalTokens) / float64(row.Count)
		row.AvgCost = row.TotalCost / float64(row.Count)
		p.FileTypes = append(p.FileTypes, *row)
	}
	sort.Slice(p.FileTypes, func(i, j int) bool {
		if p.FileTypes[i].TotalCost != p.FileTypes[j].TotalCost {
			return p.FileTypes[i].TotalCost > p.FileTypes[j].TotalCost
		}
		return p.FileTypes[i].Extension < p.FileTypes[j].Extension
	})

	p.EstimatedAnalysisTimeHours = float64(m.Len()) * spacing.Seconds() / 3600
	return p
}

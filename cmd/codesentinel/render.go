// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/classifier"
	"github.com/AleutianAI/CodeSentinel/services/risk"
	"github.com/AleutianAI/CodeSentinel/services/tokens"
	"github.com/AleutianAI/CodeSentinel/services/vulns"
)

func usd(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

func printPreview(a *app, p *tokens.PreviewResult) {
	a.out.Title("Cost preview")
	a.out.Field("Sampled files", fmt.Sprintf("%d of %d", p.SampleSize, p.TotalFiles))
	a.out.Field("Sample tokens", p.Sample.TotalTokens)
	a.out.Field("Projected tokens", p.ProjectedTotalTokens)
	a.out.Field("Projected cost", usd(p.ProjectedTotalCostUSD))
}

func printRepositoryStats(a *app, r tokens.RepositoryStats, pricing tokens.Pricing) {
	a.out.Title("Token estimate")
	a.out.Field("Model", pricing.Model)
	a.out.Field("Files analyzed", fmt.Sprintf("%d of %d", r.AnalyzedFiles, r.TotalFiles))
	a.out.Field("Total tokens", r.TotalTokens)
	a.out.Field("Average per file", fmt.Sprintf("%.0f", r.AverageTokensPerFile))
	a.out.Field("Median per file", fmt.Sprintf("%.0f", r.MedianTokensPerFile))
	if r.LargestFilePath != "" {
		a.out.Field("Largest file", fmt.Sprintf("%s (%d tokens)", r.LargestFilePath, r.LargestFileTokens))
	}
	a.out.Field("Estimated cost", usd(r.EstimatedTotalCostUSD))
}

func printProjection(a *app, p tokens.Projection) {
	a.out.Title("Cost projection")
	a.out.Field("Files", p.TotalFiles)
	a.out.Field("Estimated tokens", p.EstimatedTotalTokens)
	a.out.Field("Estimated cost", usd(p.EstimatedTotalCostUSD))
	a.out.Field("Estimated time", fmt.Sprintf("%.1fh", p.EstimatedAnalysisTimeHours))

	rows := make([][]string, 0, len(p.FileTypes))
	for _, ft := range p.FileTypes {
		rows = append(rows, []string{
			ft.Extension,
			strconv.Itoa(ft.Count),
			strconv.Itoa(ft.TotalTokens),
			usd(ft.TotalCost),
		})
	}
	a.out.Table([]string{"EXTENSION", "FILES", "TOKENS", "COST"}, rows)
}

func printClassification(a *app, s classifier.Summary) {
	a.out.Title("Classification")
	a.out.Field("Classified", s.Classified)
	a.out.Field("From cache", s.Cached)
	a.out.Field("Skipped", s.Skipped)
	a.out.Field("Failed", s.Failed)
	if s.Redacted > 0 {
		a.out.Field("Credentials masked", s.Redacted)
	}
	a.out.Field("Duration", s.Duration.Round(time.Millisecond))
	if s.Fallbacks > 0 {
		a.out.Warning(fmt.Sprintf("%d files fell back to the default classification; re-run classify --resume to retry them", s.Fallbacks))
	}
}

func printMerge(a *app, r vulns.Report) {
	a.out.Title("Findings")
	rows := make([][]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		rows = append(rows, []string{
			t.Tool,
			strconv.Itoa(t.Findings),
			strconv.Itoa(t.FilesWithFindings),
			strconv.Itoa(len(t.UnmatchedPaths)),
		})
	}
	a.out.Table([]string{"TOOL", "FINDINGS", "FILES", "UNMATCHED"}, rows)
	a.out.Field("Files with findings", r.FilesWithFindings)
	a.out.Field("Total findings", r.TotalFindings)
}

func printDistribution(a *app, d risk.Distribution) {
	a.out.Title("Priority distribution")
	rows := make([][]string, 0, len(manifest.Tiers))
	for _, tier := range manifest.Tiers {
		rows = append(rows, []string{a.out.Tier(tier), strconv.Itoa(d[tier])})
	}
	a.out.Table([]string{"PRIORITY", "FILES"}, rows)
}

func printTopRisks(a *app, assessments []manifest.RiskAssessment, n int) {
	if n <= 0 || len(assessments) == 0 {
		return
	}
	if n > len(assessments) {
		n = len(assessments)
	}
	a.out.Title(fmt.Sprintf("Top %d files by risk", n))
	rows := make([][]string, 0, n)
	for _, r := range assessments[:n] {
		sla := "-"
		if r.SLAHours != nil {
			sla = fmt.Sprintf("%dh", *r.SLAHours)
		}
		rows = append(rows, []string{
			r.Path,
			fmt.Sprintf("%.2f", r.RiskScore),
			a.out.Tier(r.Priority),
			sla,
			strconv.Itoa(r.VulnerabilityCount),
		})
	}
	a.out.Table([]string{"PATH", "SCORE", "PRIORITY", "SLA", "FINDINGS"}, rows)
}

func printManifestSummary(a *app, m *manifest.Manifest, limit int) {
	stats := m.Stats()

	a.out.Title("Repository")
	a.out.Field("URL", m.Repository.URL)
	a.out.Field("Branch", m.Repository.DefaultBranch)
	a.out.Field("Commit", m.Repository.CommitSHA)
	a.out.Field("Analyzed", m.Repository.AnalysisTimestamp.Format(time.RFC3339))

	a.out.Title("Progress")
	a.out.Field("Files", stats.Files)
	a.out.Field("Classified", fmt.Sprintf("%d (%d fallback)", stats.Classified, stats.Fallbacks))
	a.out.Field("With findings", fmt.Sprintf("%d (%d findings)", stats.WithFindings, stats.Findings))
	a.out.Field("Scored", stats.Assessed)

	if limit > len(m.Files) {
		limit = len(m.Files)
	}
	if limit > 0 {
		a.out.Title(fmt.Sprintf("First %d files", limit))
		rows := make([][]string, 0, limit)
		for i := range m.Files[:limit] {
			f := &m.Files[i]
			category, tier := "-", "-"
			if f.IsClassified() {
				category = string(f.Category())
			}
			if f.Priority != nil {
				tier = a.out.Tier(*f.Priority)
			}
			rows = append(rows, []string{f.Path, strconv.FormatInt(f.Size, 10), category, strconv.Itoa(len(f.Vulnerabilities)), tier})
		}
		a.out.Table([]string{"PATH", "BYTES", "CATEGORY", "FINDINGS", "PRIORITY"}, rows)
	}

	exts := stats.TopExtensions()
	rows := make([][]string, 0, len(exts))
	for _, e := range exts {
		rows = append(rows, []string{e.Extension, strconv.Itoa(e.Count)})
	}
	a.out.Title("Extensions")
	a.out.Table([]string{"EXTENSION", "FILES"}, rows)

	if stats.Assessed > 0 {
		tiers := make([]string, 0, len(manifest.Tiers))
		for _, t := range manifest.Tiers {
			if n := stats.Tiers[t]; n > 0 {
				tiers = append(tiers, fmt.Sprintf("%s=%d", t, n))
			}
		}
		a.out.Field("Priorities", strings.Join(tiers, " "))
	}
}

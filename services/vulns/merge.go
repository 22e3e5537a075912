// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vulns folds scanner output into manifest file records.
package vulns

import (
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// RawFinding is one scanner result before it is attached to a file.
type RawFinding struct {
	RuleID     string `json:"rule_id"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	Confidence string `json:"confidence,omitempty"`
	CWE        string `json:"cwe,omitempty"`
}

// ScanResults maps tool name to file path to that tool's findings. A tool
// that ran and found nothing should still be present with an empty map so
// that coverage reporting can tell it apart from a tool that never ran.
type ScanResults map[string]map[string][]RawFinding

// Add records findings for path under tool, creating the tool entry.
func (s ScanResults) Add(tool, filePath string, findings ...RawFinding) {
	byPath, ok := s[tool]
	if !ok {
		byPath = make(map[string][]RawFinding)
		s[tool] = byPath
	}
	byPath[filePath] = append(byPath[filePath], findings...)
}

// Tools returns the tool names in sorted order.
func (s ScanResults) Tools() []string {
	tools := make([]string, 0, len(s))
	for tool := range s {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}

// ToolCoverage summarizes one tool's contribution to a merge.
type ToolCoverage struct {
	Tool              string   `json:"tool"`
	FilesWithFindings int      `json:"files_with_findings"`
	Findings          int      `json:"findings"`
	UnmatchedPaths    []string `json:"unmatched_paths,omitempty"`
}

// Report describes a merge.
//
// Description:
//
//	Tools lists every tool present in the input, including tools that
//	reported nothing. A file with an empty finding list and a tool listed
//	here was scanned clean by that tool; the manifest alone cannot express
//	this.
type Report struct {
	Tools             []ToolCoverage `json:"tools"`
	FilesWithFindings int            `json:"files_with_findings"`
	TotalFindings     int            `json:"total_findings"`
}

// ToolNames returns the tools that ran.
func (r Report) ToolNames() []string {
	names := make([]string, len(r.Tools))
	for i, t := range r.Tools {
		names[i] = t.Tool
	}
	return names
}

// NormalizePath maps a scanner-reported path onto manifest form: forward
// slashes, cleaned, no leading "./" or "/".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}

// Merge replaces every file's finding list with the findings in results.
//
// Description:
//
//	Each file's list is rebuilt from scratch: tools are visited in sorted
//	name order and each tool's findings for the path are appended in report
//	order, tagged with the tool and with severity normalized. There is no
//	deduplication across tools. Files no tool mentions end with an empty
//	list. Paths that match no manifest file are recorded in the report and
//	otherwise ignored. Any previous risk assessment is cleared because its
//	input changed.
//
// Inputs:
//
//	m - The manifest to update in place.
//	results - Scanner output.
//	logger - Receives the merge summary. May be nil.
//
// Outputs:
//
//	Report - Per-tool coverage and totals.
func Merge(m *manifest.Manifest, results ScanResults, logger *logging.Logger) Report {
	logger = logging.OrNop(logger).With("component", "vulns")

	for i := range m.Files {
		m.Files[i].Vulnerabilities = []manifest.Finding{}
		m.Files[i].ClearAssessment()
	}

	report := Report{Tools: []ToolCoverage{}}
	for _, tool := range results.Tools() {
		byPath := results[tool]
		coverage := ToolCoverage{Tool: tool}

		paths := make([]string, 0, len(byPath))
		for p := range byPath {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, p := range paths {
			raw := byPath[p]
			if len(raw) == 0 {
				continue
			}
			rec, ok := m.Lookup(NormalizePath(p))
			if !ok {
				coverage.UnmatchedPaths = append(coverage.UnmatchedPaths, p)
				continue
			}
			for _, r := range raw {
				rec.Vulnerabilities = append(rec.Vulnerabilities, toFinding(tool, r))
			}
			coverage.FilesWithFindings++
			coverage.Findings += len(raw)
		}

		if len(coverage.UnmatchedPaths) > 0 {
			logger.Warn("scanner reported paths not in manifest", "tool", tool, "count", len(coverage.UnmatchedPaths))
		}
		report.Tools = append(report.Tools, coverage)
		report.TotalFindings += coverage.Findings
	}

	for i := range m.Files {
		if len(m.Files[i].Vulnerabilities) > 0 {
			report.FilesWithFindings++
		}
	}

	logger.Info("vulnerability merge complete",
		"tools", strings.Join(report.ToolNames(), ","),
		"files_with_findings", report.FilesWithFindings,
		"findings", report.TotalFindings,
	)
	return report
}

func toFinding(tool string, r RawFinding) manifest.Finding {
	end := r.LineEnd
	if end < r.LineStart {
		end = r.LineStart
	}
	return manifest.Finding{
		Tool:       tool,
		RuleID:     r.RuleID,
		Severity:   manifest.NormalizeSeverity(r.Severity),
		Message:    r.Message,
		LineStart:  r.LineStart,
		LineEnd:    end,
		Confidence: r.Confidence,
		CWE:        r.CWE,
	}
}

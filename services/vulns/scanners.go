// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vulns

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tool names understood by ReadReport.
const (
	ToolSemgrep = "semgrep"
	ToolBandit  = "bandit"
	ToolTrivy   = "trivy"
)

// ErrUnknownTool is returned for a scanner without a parser.
var ErrUnknownTool = errors.New("unknown scanner")

// Parser turns one scanner's JSON report into findings keyed by path.
type Parser func(data []byte) (map[string][]RawFinding, error)

var parsers = map[string]Parser{
	ToolSemgrep: ParseSemgrep,
	ToolBandit:  ParseBandit,
	ToolTrivy:   ParseTrivy,
}

// SupportedTools lists the scanners with a parser.
func SupportedTools() []string {
	tools := make([]string, 0, len(parsers))
	for t := range parsers {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	return tools
}

// ReadReport parses the report file at path produced by tool.
//
// Description:
//
//	When root is set, absolute paths in the report are made relative to
//	it so that they line up with manifest paths.
func ReadReport(tool, path, root string) (map[string][]RawFinding, error) {
	parse, ok := parsers[strings.ToLower(tool)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s report: %w", tool, err)
	}
	byPath, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s report %s: %w", tool, path, err)
	}
	if root == "" {
		return byPath, nil
	}
	return relativize(byPath, root), nil
}

func relativize(byPath map[string][]RawFinding, root string) map[string][]RawFinding {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return byPath
	}
	out := make(map[string][]RawFinding, len(byPath))
	for p, findings := range byPath {
		key := p
		if filepath.IsAbs(p) {
			if rel, err := filepath.Rel(absRoot, p); err == nil && !strings.HasPrefix(rel, "..") {
				key = filepath.ToSlash(rel)
			}
		}
		out[key] = append(out[key], findings...)
	}
	return out
}

// =============================================================================
// Semgrep
// =============================================================================

type semgrepReport struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		End struct {
			Line int `json:"line"`
		} `json:"end"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
			Metadata struct {
				CWE        any    `json:"cwe"`
				Confidence string `json:"confidence"`
			} `json:"metadata"`
		} `json:"extra"`
	} `json:"results"`
}

// ParseSemgrep parses `semgrep --json` output. ERROR maps to high, WARNING
// to medium and everything else to low.
func ParseSemgrep(data []byte) (map[string][]RawFinding, error) {
	var doc semgrepReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string][]RawFinding)
	for _, r := range doc.Results {
		p := filepath.ToSlash(r.Path)
		out[p] = append(out[p], RawFinding{
			RuleID:     r.CheckID,
			Severity:   semgrepSeverity(r.Extra.Severity),
			Message:    r.Extra.Message,
			LineStart:  safeLine(r.Start.Line),
			LineEnd:    safeLine(r.End.Line),
			Confidence: strings.ToLower(r.Extra.Metadata.Confidence),
			CWE:        firstCWE(r.Extra.Metadata.CWE),
		})
	}
	return out, nil
}

func semgrepSeverity(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return "high"
	case "WARNING":
		return "medium"
	default:
		return "low"
	}
}

// firstCWE accepts the string, list or null forms semgrep emits.
func firstCWE(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// =============================================================================
// Bandit
// =============================================================================

type banditReport struct {
	Results []struct {
		Filename        string `json:"filename"`
		TestID          string `json:"test_id"`
		TestName        string `json:"test_name"`
		IssueSeverity   string `json:"issue_severity"`
		IssueConfidence string `json:"issue_confidence"`
		IssueText       string `json:"issue_text"`
		LineNumber      int    `json:"line_number"`
		LineRange       []int  `json:"line_range"`
		IssueCWE        struct {
			ID int `json:"id"`
		} `json:"issue_cwe"`
	} `json:"results"`
}

// ParseBandit parses `bandit -f json` output. Bandit severities are
// HIGH, MEDIUM and LOW and map directly.
func ParseBandit(data []byte) (map[string][]RawFinding, error) {
	var doc banditReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string][]RawFinding)
	for _, r := range doc.Results {
		end := r.LineNumber
		if n := len(r.LineRange); n > 0 {
			end = r.LineRange[n-1]
		}
		cwe := ""
		if r.IssueCWE.ID > 0 {
			cwe = fmt.Sprintf("CWE-%d", r.IssueCWE.ID)
		}
		p := filepath.ToSlash(r.Filename)
		out[p] = append(out[p], RawFinding{
			RuleID:     r.TestID,
			Severity:   strings.ToLower(r.IssueSeverity),
			Message:    r.IssueText,
			LineStart:  safeLine(r.LineNumber),
			LineEnd:    safeLine(end),
			Confidence: strings.ToLower(r.IssueConfidence),
			CWE:        cwe,
		})
	}
	return out, nil
}

// =============================================================================
// Trivy
// =============================================================================

type trivyReport struct {
	Results []struct {
		Target          string `json:"Target"`
		Vulnerabilities []struct {
			VulnerabilityID  string   `json:"VulnerabilityID"`
			PkgName          string   `json:"PkgName"`
			InstalledVersion string   `json:"InstalledVersion"`
			Title            string   `json:"Title"`
			Severity         string   `json:"Severity"`
			CweIDs           []string `json:"CweIDs"`
		} `json:"Vulnerabilities"`
		Misconfigurations []struct {
			ID            string `json:"ID"`
			Title         string `json:"Title"`
			Description   string `json:"Description"`
			Severity      string `json:"Severity"`
			CauseMetadata struct {
				StartLine int `json:"StartLine"`
				EndLine   int `json:"EndLine"`
			} `json:"CauseMetadata"`
		} `json:"Misconfigurations"`
		Secrets []struct {
			RuleID    string `json:"RuleID"`
			Title     string `json:"Title"`
			Severity  string `json:"Severity"`
			StartLine int    `json:"StartLine"`
			EndLine   int    `json:"EndLine"`
		} `json:"Secrets"`
	} `json:"Results"`
}

// ParseTrivy parses `trivy fs --format json` output, covering dependency
// vulnerabilities (attached to the lock file target), misconfigurations and
// secrets. UNKNOWN severity becomes low.
func ParseTrivy(data []byte) (map[string][]RawFinding, error) {
	var doc trivyReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string][]RawFinding)
	for _, r := range doc.Results {
		target := filepath.ToSlash(r.Target)
		for _, v := range r.Vulnerabilities {
			cwe := ""
			if len(v.CweIDs) > 0 {
				cwe = v.CweIDs[0]
			}
			out[target] = append(out[target], RawFinding{
				RuleID:   v.VulnerabilityID,
				Severity: strings.ToLower(v.Severity),
				Message:  firstNonEmpty(v.Title, fmt.Sprintf("%s %s", v.PkgName, v.InstalledVersion)),
				CWE:      cwe,
			})
		}
		for _, m := range r.Misconfigurations {
			out[target] = append(out[target], RawFinding{
				RuleID:    m.ID,
				Severity:  strings.ToLower(m.Severity),
				Message:   firstNonEmpty(m.Description, m.Title),
				LineStart: safeLine(m.CauseMetadata.StartLine),
				LineEnd:   safeLine(m.CauseMetadata.EndLine),
			})
		}
		for _, s := range r.Secrets {
			out[target] = append(out[target], RawFinding{
				RuleID:    s.RuleID,
				Severity:  strings.ToLower(s.Severity),
				Message:   s.Title,
				LineStart: safeLine(s.StartLine),
				LineEnd:   safeLine(s.EndLine),
			})
		}
	}
	return out, nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func safeLine(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

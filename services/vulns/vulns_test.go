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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

func testManifest(t *testing.T, paths ...string) *manifest.Manifest {
	t.Helper()
	m := manifest.New(manifest.RepositoryDescriptor{URL: "https://example.com/r"})
	for _, p := range paths {
		require.NoError(t, m.Add(manifest.NewFileRecord(p, "sha-"+p, 10, filepath.Ext(p))))
	}
	return m
}

// =============================================================================
// Merge Tests
// =============================================================================

func TestMerge_PresentInOneToolOnly(t *testing.T) {
	m := testManifest(t, "app/views.py", "app/models.py")
	results := ScanResults{}
	results.Add("semgrep", "app/views.py",
		RawFinding{RuleID: "sqli", Severity: "high", LineStart: 3, LineEnd: 4},
		RawFinding{RuleID: "xss", Severity: "medium", LineStart: 9, LineEnd: 9},
	)
	results.Add("bandit", "app/models.py", RawFinding{RuleID: "B105", Severity: "low", LineStart: 1})

	report := Merge(m, results, logging.Nop())

	views, err := m.Get("app/views.py")
	require.NoError(t, err)
	require.Len(t, views.Vulnerabilities, 2)
	for _, f := range views.Vulnerabilities {
		assert.Equal(t, "semgrep", f.Tool)
	}
	assert.Equal(t, "sqli", views.Vulnerabilities[0].RuleID)
	assert.Equal(t, manifest.SeverityHigh, views.Vulnerabilities[0].Severity)

	models, err := m.Get("app/models.py")
	require.NoError(t, err)
	require.Len(t, models.Vulnerabilities, 1)
	assert.Equal(t, "bandit", models.Vulnerabilities[0].Tool)
	assert.Equal(t, 1, models.Vulnerabilities[0].LineEnd)

	assert.Equal(t, []string{"bandit", "semgrep"}, report.ToolNames())
	assert.Equal(t, 2, report.FilesWithFindings)
	assert.Equal(t, 3, report.TotalFindings)
}

func TestMerge_NoDeduplicationAndToolOrder(t *testing.T) {
	m := testManifest(t, "a.py")
	results := ScanResults{}
	same := RawFinding{RuleID: "eval", Severity: "ERROR", LineStart: 5, LineEnd: 5}
	results.Add("semgrep", "a.py", same)
	results.Add("bandit", "a.py", same)

	Merge(m, results, nil)

	rec, _ := m.Lookup("a.py")
	require.Len(t, rec.Vulnerabilities, 2)
	assert.Equal(t, "bandit", rec.Vulnerabilities[0].Tool)
	assert.Equal(t, "semgrep", rec.Vulnerabilities[1].Tool)
}

func TestMerge_AbsentFilesKeepEmptyList(t *testing.T) {
	m := testManifest(t, "a.py", "b.py")
	results := ScanResults{"trivy": {}}

	report := Merge(m, results, nil)

	for i := range m.Files {
		assert.NotNil(t, m.Files[i].Vulnerabilities)
		assert.Empty(t, m.Files[i].Vulnerabilities)
	}
	require.Len(t, report.Tools, 1)
	assert.Equal(t, "trivy", report.Tools[0].Tool)
	assert.Zero(t, report.Tools[0].Findings)
}

func TestMerge_ReplacesPreviousFindingsAndAssessment(t *testing.T) {
	m := testManifest(t, "a.py")
	rec, _ := m.Lookup("a.py")
	rec.Vulnerabilities = []manifest.Finding{{Tool: "old"}}
	score := 5.0
	rec.RiskScore = &score

	Merge(m, ScanResults{}, nil)

	assert.Empty(t, rec.Vulnerabilities)
	assert.Nil(t, rec.RiskScore)
}

func TestMerge_UnmatchedAndNormalizedPaths(t *testing.T) {
	m := testManifest(t, "src/a.py")
	results := ScanResults{}
	results.Add("semgrep", "./src/a.py", RawFinding{RuleID: "r1", Severity: "WARNING"})
	results.Add("semgrep", "vendor/x.py", RawFinding{RuleID: "r2"})

	report := Merge(m, results, nil)

	rec, _ := m.Lookup("src/a.py")
	require.Len(t, rec.Vulnerabilities, 1)
	assert.Equal(t, manifest.SeverityMedium, rec.Vulnerabilities[0].Severity)
	assert.Equal(t, []string{"vendor/x.py"}, report.Tools[0].UnmatchedPaths)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b.py", NormalizePath("./a/b.py"))
	assert.Equal(t, "a/b.py", NormalizePath(`a\b.py`))
	assert.Equal(t, "a/b.py", NormalizePath("/a//b.py"))
}

// =============================================================================
// Parser Tests
// =============================================================================

const semgrepJSON = `{"results":[
 {"check_id":"python.sqli","path":"app/views.py","start":{"line":10},"end":{"line":12},
  "extra":{"message":"SQL injection","severity":"ERROR","metadata":{"cwe":["CWE-89: SQL Injection"],"confidence":"HIGH"}}},
 {"check_id":"python.debug","path":"app/views.py","start":{"line":3},"end":{"line":3},
  "extra":{"message":"debug on","severity":"INFO","metadata":{"cwe":null}}}
]}`

func TestParseSemgrep(t *testing.T) {
	got, err := ParseSemgrep([]byte(semgrepJSON))
	require.NoError(t, err)
	require.Len(t, got["app/views.py"], 2)

	first := got["app/views.py"][0]
	assert.Equal(t, "python.sqli", first.RuleID)
	assert.Equal(t, "high", first.Severity)
	assert.Equal(t, 10, first.LineStart)
	assert.Equal(t, 12, first.LineEnd)
	assert.Equal(t, "CWE-89: SQL Injection", first.CWE)
	assert.Equal(t, "high", first.Confidence)
	assert.Equal(t, "low", got["app/views.py"][1].Severity)
}

func TestParseBandit(t *testing.T) {
	data := `{"results":[{"filename":"app/models.py","test_id":"B105","test_name":"hardcoded_password_string",
		"issue_severity":"LOW","issue_confidence":"MEDIUM","issue_text":"Possible hardcoded password",
		"line_number":7,"line_range":[7,8],"issue_cwe":{"id":259}}]}`

	got, err := ParseBandit([]byte(data))
	require.NoError(t, err)
	require.Len(t, got["app/models.py"], 1)
	f := got["app/models.py"][0]
	assert.Equal(t, "B105", f.RuleID)
	assert.Equal(t, "low", f.Severity)
	assert.Equal(t, 8, f.LineEnd)
	assert.Equal(t, "CWE-259", f.CWE)
	assert.Equal(t, "medium", f.Confidence)
}

func TestParseTrivy(t *testing.T) {
	data := `{"Results":[{"Target":"requirements.txt",
		"Vulnerabilities":[{"VulnerabilityID":"CVE-2023-1","PkgName":"django","InstalledVersion":"3.2","Severity":"CRITICAL","CweIDs":["CWE-79"]}],
		"Misconfigurations":[{"ID":"DS002","Title":"root user","Description":"","Severity":"HIGH","CauseMetadata":{"StartLine":1,"EndLine":2}}],
		"Secrets":[{"RuleID":"aws-key","Title":"AWS key","Severity":"UNKNOWN","StartLine":4,"EndLine":4}]}]}`

	got, err := ParseTrivy([]byte(data))
	require.NoError(t, err)
	findings := got["requirements.txt"]
	require.Len(t, findings, 3)
	assert.Equal(t, "CVE-2023-1", findings[0].RuleID)
	assert.Equal(t, "django 3.2", findings[0].Message)
	assert.Equal(t, "CWE-79", findings[0].CWE)
	assert.Equal(t, "root user", findings[1].Message)
	assert.Equal(t, manifest.SeverityLow, manifest.NormalizeSeverity(findings[2].Severity))
}

func TestReadReport(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "app", "views.py")
	body := `{"results":[{"check_id":"r","path":"` + filepath.ToSlash(abs) + `","start":{"line":1},"end":{"line":1},"extra":{"severity":"ERROR"}}]}`
	report := filepath.Join(dir, "semgrep.json")
	require.NoError(t, os.WriteFile(report, []byte(body), 0o644))

	got, err := ReadReport("semgrep", report, dir)
	require.NoError(t, err)
	assert.Contains(t, got, "app/views.py")

	_, err = ReadReport("nessus", report, "")
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = ReadReport("bandit", filepath.Join(dir, "missing.json"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(report, []byte("{"), 0o644))
	_, err = ReadReport("semgrep", report, "")
	assert.Error(t, err)

	assert.Equal(t, []string{"bandit", "semgrep", "trivy"}, SupportedTools())
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(t *testing.T) *Manifest {
	t.Helper()
	m := New(RepositoryDescriptor{
		URL:               "https://github.com/example/app",
		DefaultBranch:     "main",
		CommitSHA:         "0123456789abcdef0123456789abcdef01234567",
		AnalysisTimestamp: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	})
	require.NoError(t, m.Add(NewFileRecord("src/auth/login.py", "aaa", 2048, ".py")))
	require.NoError(t, m.Add(NewFileRecord("README.md", "bbb", 512, ".md")))
	require.NoError(t, m.Add(NewFileRecord("Makefile", "ccc", 100, "")))
	return m
}

// =============================================================================
// Manifest Tests
// =============================================================================

func TestManifest_AddRejectsDuplicate(t *testing.T) {
	m := testManifest(t)

	err := m.Add(NewFileRecord("README.md", "zzz", 1, ".md"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePath))
	assert.Equal(t, 3, m.Len())
}

func TestManifest_LookupAndOrder(t *testing.T) {
	m := testManifest(t)

	rec, ok := m.Lookup("README.md")
	require.True(t, ok)
	assert.Equal(t, "bbb", rec.BlobSHA)

	_, ok = m.Lookup("missing.go")
	assert.False(t, ok)

	_, err := m.Get("missing.go")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"src/auth/login.py", "README.md", "Makefile"}, m.Paths())
}

func TestManifest_AddNormalizesNilFindings(t *testing.T) {
	m := New(RepositoryDescriptor{})
	require.NoError(t, m.Add(FileRecord{Path: "a.go"}))

	rec, _ := m.Lookup("a.go")
	assert.NotNil(t, rec.Vulnerabilities)
	assert.Empty(t, rec.Vulnerabilities)
}

func TestManifest_Stats(t *testing.T) {
	m := testManifest(t)
	rec, _ := m.Lookup("src/auth/login.py")
	rec.ApplyClassification(Classification{Purpose: "login", Category: CategoryAuthentication, Confidence: 0.9, SecurityRelevance: RelevanceHigh})
	rec.Vulnerabilities = append(rec.Vulnerabilities, Finding{Tool: "semgrep", Severity: SeverityHigh})
	sla := 24
	rec.ApplyAssessment(RiskAssessment{RiskScore: 7.5, Priority: TierHigh, SLAHours: &sla})

	readme, _ := m.Lookup("README.md")
	readme.ApplyClassification(Classification{Category: CategoryOther, Fallback: true})

	s := m.Stats()
	assert.Equal(t, 3, s.Files)
	assert.Equal(t, 2, s.Classified)
	assert.Equal(t, 1, s.Fallbacks)
	assert.Equal(t, 1, s.WithFindings)
	assert.Equal(t, 1, s.Assessed)
	assert.Equal(t, 1, s.Tiers[TierHigh])
	assert.Equal(t, 1, s.Extensions["(none)"])

	top := s.TopExtensions()
	require.Len(t, top, 3)
	assert.Equal(t, "(none)", top[0].Extension)
}

// =============================================================================
// FileRecord Tests
// =============================================================================

func TestFileRecord_NotClassifiedVersusFallback(t *testing.T) {
	rec := NewFileRecord("a.go", "sha", 10, ".go")
	assert.False(t, rec.IsClassified())
	assert.False(t, rec.IsFallback())
	assert.Equal(t, CategoryOther, rec.Category())
	assert.Equal(t, RelevanceLow, rec.SecurityRelevance())

	rec.ApplyClassification(Classification{
		Purpose:           "Could not analyze file purpose",
		Category:          CategoryOther,
		SecurityRelevance: RelevanceLow,
		Reasoning:         "Analysis failed",
		Fallback:          true,
	})
	assert.True(t, rec.IsClassified())
	assert.True(t, rec.IsFallback())
}

func TestFileRecord_ApplyClassificationNormalizes(t *testing.T) {
	rec := NewFileRecord("a.go", "sha", 10, ".go")
	rec.ApplyClassification(Classification{
		Purpose:           "handler",
		Category:          "Web-Scraper",
		Confidence:        1.7,
		SecurityRelevance: "HIGH",
		Provider:          "openai",
		Model:             "gpt-4",
	})

	require.NotNil(t, rec.ConfidenceScore)
	assert.Equal(t, 1.0, *rec.ConfidenceScore)
	assert.Equal(t, CategoryOther, rec.LLMMetadata.Category)
	assert.Equal(t, RelevanceHigh, rec.LLMMetadata.SecurityRelevance)
	assert.Equal(t, "openai", rec.LLMMetadata.Provider)
}

func TestFileRecord_ApplyAndClearAssessment(t *testing.T) {
	rec := NewFileRecord("a.go", "sha", 10, ".go")
	rec.ApplyAssessment(RiskAssessment{RiskScore: 1.25, Priority: TierInfo})

	require.NotNil(t, rec.RiskScore)
	assert.Equal(t, 1.25, *rec.RiskScore)
	assert.Equal(t, TierInfo, *rec.Priority)
	assert.Nil(t, rec.SLAHours)
	require.NotNil(t, rec.Assessment)

	rec.ClearAssessment()
	assert.Nil(t, rec.RiskScore)
	assert.Nil(t, rec.Priority)
	assert.Nil(t, rec.Assessment)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
	assert.Equal(t, 1.0, ClampConfidence(3))
	assert.Equal(t, 0.0, ClampConfidence(math.NaN()))
}

// =============================================================================
// Enumeration Tests
// =============================================================================

func TestNormalizeSeverity(t *testing.T) {
	tests := map[string]Severity{
		"CRITICAL": SeverityCritical,
		"high":     SeverityHigh,
		"ERROR":    SeverityHigh,
		"moderate": SeverityMedium,
		"WARNING":  SeverityMedium,
		"low":      SeverityLow,
		"info":     SeverityLow,
		"bogus":    SeverityLow,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSeverity(in), in)
	}
}

func TestNormalizeCategory(t *testing.T) {
	for _, c := range Categories {
		assert.Equal(t, c, NormalizeCategory(strings.ToUpper(string(c))))
	}
	assert.Equal(t, CategoryOther, NormalizeCategory("database"))
}

func TestTier_RankIsMonotonic(t *testing.T) {
	for i := 1; i < len(Tiers); i++ {
		assert.Greater(t, Tiers[i-1].Rank(), Tiers[i].Rank())
	}
	assert.Equal(t, 0, Tier("NOPE").Rank())
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestSaveLoad_RoundTrip(t *testing.T) {
	m := testManifest(t)
	rec, _ := m.Lookup("src/auth/login.py")
	rec.ApplyClassification(Classification{
		Purpose:           "Handles user login",
		Category:          CategoryAuthentication,
		Confidence:        0.93,
		SecurityRelevance: RelevanceHigh,
		Reasoning:         "Processes credentials",
		Provider:          "bedrock",
		Model:             "anthropic.claude-3-sonnet",
	})
	rec.Vulnerabilities = append(rec.Vulnerabilities,
		Finding{Tool: "bandit", RuleID: "B105", Severity: SeverityHigh, Message: "hardcoded password", LineStart: 12, LineEnd: 12, Confidence: "HIGH", CWE: "CWE-259"},
	)
	sla := 4
	rec.ApplyAssessment(RiskAssessment{RiskScore: 10, Priority: TierCritical, SLAHours: &sla})

	readme, _ := m.Lookup("README.md")
	readme.ApplyClassification(Classification{Purpose: "Could not analyze file purpose", Category: CategoryOther, Fallback: true})

	path := filepath.Join(t.TempDir(), "out", "manifest.json")
	require.NoError(t, Save(m, path))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Repository, loaded.Repository)
	require.Equal(t, m.Len(), loaded.Len())

	got, ok := loaded.Lookup("src/auth/login.py")
	require.True(t, ok)
	assert.Equal(t, rec.Vulnerabilities, got.Vulnerabilities)
	assert.Equal(t, *rec.LLMMetadata, *got.LLMMetadata)
	assert.Equal(t, *rec.RiskScore, *got.RiskScore)
	assert.Equal(t, *rec.SLAHours, *got.SLAHours)
	assert.Nil(t, got.Assessment)

	second := filepath.Join(t.TempDir(), "again.json")
	require.NoError(t, Save(loaded, second))
	again, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, again), "save -> load -> save must be identical")
}

func TestSave_PersistsSchemaKeys(t *testing.T) {
	m := testManifest(t)
	data, err := Marshal(m)
	require.NoError(t, err)

	var doc struct {
		Repository map[string]any   `json:"repository"`
		Files      []map[string]any `json:"files"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	for _, key := range []string{"url", "default_branch", "commit_sha", "analysis_timestamp"} {
		assert.Contains(t, doc.Repository, key)
	}
	for _, key := range []string{"path", "blob_sha", "size", "extension", "purpose", "confidence_score",
		"vulnerabilities", "risk_score", "llm_metadata", "priority", "sla_hours"} {
		assert.Contains(t, doc.Files[0], key)
	}
	assert.Equal(t, []any{}, doc.Files[0]["vulnerabilities"])
	assert.Nil(t, doc.Files[0]["purpose"])
}

func TestLoad_RejectsDuplicatePaths(t *testing.T) {
	doc := `{"repository":{},"files":[{"path":"a"},{"path":"a"}]}`
	_, err := Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, ErrDuplicatePath)
}

func TestLoad_FillsNilFindings(t *testing.T) {
	doc := `{"repository":{},"files":[{"path":"a","vulnerabilities":null}]}`
	m, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	assert.NotNil(t, m.Files[0].Vulnerabilities)
}

func TestLoad_NormalizesOutOfRangeValues(t *testing.T) {
	doc := `{"repository":{},"files":[{"path":"a.py","confidence_score":1.5,"risk_score":12,` +
		`"llm_metadata":{"category":"Blockchain","security_relevance":"EXTREME"},` +
		`"vulnerabilities":[{"tool":"semgrep","severity":"ERROR"}]},` +
		`{"path":"b.py","confidence_score":-0.2,"llm_metadata":{"category":"API","security_relevance":"High"}}]}`
	m, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)

	a := m.Files[0]
	assert.Equal(t, 1.0, *a.ConfidenceScore)
	assert.Equal(t, 10.0, *a.RiskScore)
	assert.Equal(t, CategoryOther, a.Category())
	assert.Equal(t, RelevanceLow, a.SecurityRelevance())
	assert.Equal(t, SeverityHigh, a.Vulnerabilities[0].Severity)

	b := m.Files[1]
	assert.Equal(t, 0.0, *b.ConfidenceScore)
	assert.Equal(t, CategoryAPI, b.Category())
	assert.Equal(t, RelevanceHigh, b.SecurityRelevance())
	assert.Nil(t, b.RiskScore)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("{not json"))
	assert.Error(t, err)
}

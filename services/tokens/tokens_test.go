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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/inventory"
	"github.com/AleutianAI/CodeSentinel/services/llm"
)

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	return NewEstimator(Config{Counter: ApproxCounter{}, Seed: 42}, logging.Nop())
}

func testRepo(t *testing.T) (*manifest.Manifest, inventory.MapFetcher) {
	t.Helper()
	m := manifest.New(manifest.RepositoryDescriptor{URL: "https://example.com/repo"})
	fetcher := inventory.MapFetcher{}
	contents := map[string]string{
		"a.py": strings.Repeat("a", 400),
		"b.go": strings.Repeat("b", 800),
		"c.js": strings.Repeat("c", 4000),
		"d.rb": strings.Repeat("d", 40),
	}
	for _, path := range []string{"a.py", "b.go", "c.js", "d.rb"} {
		sha := inventory.BlobSHA([]byte(contents[path]))
		fetcher[sha] = contents[path]
		require.NoError(t, m.Add(manifest.NewFileRecord(path, sha, int64(len(contents[path])), filepath.Ext(path))))
	}
	require.NoError(t, m.Add(manifest.NewFileRecord("missing.py", "nope", 10, ".py")))
	return m, fetcher
}

func TestApproxCounter_FourThousandChars(t *testing.T) {
	assert.Equal(t, 1000, ApproxCounter{}.Count(strings.Repeat("x", 4000)))
	assert.Equal(t, 0, ApproxCounter{}.Count("abc"))
	assert.Equal(t, 1, ApproxCounter{}.Count("abcdefg"))
}

func TestEstimateFile(t *testing.T) {
	e := newTestEstimator(t)
	content := strings.Repeat("x", 4000)
	file := manifest.NewFileRecord("src/x.py", "sha", 4000, ".py")

	got := e.EstimateFile(file, content)

	prompt := llm.BuildPrompt(file.Path, content, file.Extension)
	assert.Equal(t, 1000, got.ContentTokens)
	assert.Equal(t, len(prompt)/4, got.PromptTokens)
	assert.Equal(t, 150, got.EstimatedResponseTokens)
	assert.Equal(t, got.PromptTokens+150, got.TotalTokens)
	want := float64(got.PromptTokens)/1000*0.003 + 150.0/1000*0.015
	assert.InDelta(t, want, got.EstimatedCostUSD, 1e-12)
}

func TestEstimateRepository(t *testing.T) {
	e := NewEstimator(Config{Counter: ApproxCounter{}, MaxFileSize: 1000}, logging.Nop())
	m, fetcher := testRepo(t)

	stats, repo, err := e.EstimateRepository(context.Background(), m, fetcher)
	require.NoError(t, err)

	// c.js is over the size limit, missing.py has no content.
	require.Len(t, stats, 3)
	assert.Equal(t, []string{"a.py", "b.go", "d.rb"}, []string{stats[0].FilePath, stats[1].FilePath, stats[2].FilePath})
	assert.Equal(t, 5, repo.TotalFiles)
	assert.Equal(t, 3, repo.AnalyzedFiles)
	assert.Equal(t, "b.go", repo.LargestFilePath)
	assert.Equal(t, stats[1].TotalTokens, repo.LargestFileTokens)
	assert.Equal(t, float64(stats[0].TotalTokens), repo.MedianTokensPerFile)
	assert.InDelta(t, float64(repo.TotalTokens)/3, repo.AverageTokensPerFile, 1e-9)
}

func TestAggregate_EmptyAndEvenMedian(t *testing.T) {
	empty := Aggregate(nil, 7)
	assert.Equal(t, 7, empty.TotalFiles)
	assert.Zero(t, empty.AnalyzedFiles)
	assert.Empty(t, empty.LargestFilePath)

	even := Aggregate([]TokenStats{{FilePath: "a", TotalTokens: 10}, {FilePath: "b", TotalTokens: 30}}, 2)
	assert.Equal(t, 20.0, even.MedianTokensPerFile)
	assert.Equal(t, "b", even.LargestFilePath)
}

func TestPreview(t *testing.T) {
	e := newTestEstimator(t)
	m, fetcher := testRepo(t)

	result, err := e.Preview(context.Background(), m, fetcher, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SampleSize)
	assert.Len(t, result.SampledPaths, 2)
	assert.Equal(t, 5, result.TotalFiles)
	if result.Sample.AnalyzedFiles > 0 {
		scale := 5.0 / float64(result.Sample.AnalyzedFiles)
		assert.InDelta(t, result.Sample.EstimatedTotalCostUSD*scale, result.ProjectedTotalCostUSD, 1e-12)
	}

	all, err := e.Preview(context.Background(), m, fetcher, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, all.SampleSize)
	assert.Equal(t, m.Paths(), all.SampledPaths)
	assert.Equal(t, 4, all.Sample.AnalyzedFiles)
}

func TestPreview_Reproducible(t *testing.T) {
	m, fetcher := testRepo(t)
	a, err := NewEstimator(Config{Counter: ApproxCounter{}, Seed: 7}, nil).Preview(context.Background(), m, fetcher, 3)
	require.NoError(t, err)
	b, err := NewEstimator(Config{Counter: ApproxCounter{}, Seed: 7}, nil).Preview(context.Background(), m, fetcher, 3)
	require.NoError(t, err)
	assert.Equal(t, a.SampledPaths, b.SampledPaths)
}

func TestEstimateRepository_Cancelled(t *testing.T) {
	e := newTestEstimator(t)
	m, fetcher := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.EstimateRepository(ctx, m, fetcher)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPricingFor(t *testing.T) {
	assert.Equal(t, 0.003, PricingFor("bedrock").InputPricePer1K)
	assert.Equal(t, 0.015, PricingFor("BEDROCK").OutputPricePer1K)
	assert.Equal(t, PricingFor("bedrock"), PricingFor("unknown"))
	assert.Zero(t, PricingFor("ollama").Cost(1000, 1000))
	assert.Equal(t, "USD", PricingFor("openai").Currency)
}

// =============================================================================
// Projection Tests
// =============================================================================

func TestProjectFileTokens(t *testing.T) {
	tests := []struct {
		ext  string
		size int64
		want int
	}{
		{".py", 500, 900 + 400},     // 1800 * 0.5
		{".py", 3000, 1800 + 400},   // 1.0
		{".java", 6000, 2640 + 400}, // 2200 * 1.2
		{".JS", 30000, 1800 + 400},  // 1200 * 1.5
		{".tsx", 60000, 3000 + 400}, // 1500 * 2.0
		{".unknown", 2000, 1000 + 400},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProjectFileTokens(tt.ext, tt.size), "%s/%d", tt.ext, tt.size)
	}
}

func TestProject(t *testing.T) {
	m := manifest.New(manifest.RepositoryDescriptor{})
	require.NoError(t, m.Add(manifest.NewFileRecord("a.py", "1", 3000, ".py")))
	require.NoError(t, m.Add(manifest.NewFileRecord("b.py", "2", 3000, ".py")))
	require.NoError(t, m.Add(manifest.NewFileRecord("c.css", "3", 3000, ".css")))

	p := Project(m, PricingFor("bedrock"), 0)

	assert.Equal(t, 3, p.TotalFiles)
	assert.Equal(t, 2200*2+1000, p.EstimatedTotalTokens)
	wantCost := float64(p.EstimatedTotalTokens) * (0.9/1000*0.003 + 0.1/1000*0.015)
	assert.InDelta(t, wantCost, p.EstimatedTotalCostUSD, 1e-12)
	assert.InDelta(t, 3*20.0/3600, p.EstimatedAnalysisTimeHours, 1e-12)

	require.Len(t, p.FileTypes, 2)
	assert.Equal(t, ".py", p.FileTypes[0].Extension)
	assert.Equal(t, 2, p.FileTypes[0].Count)
	assert.Equal(t, 2200.0, p.FileTypes[0].AvgTokens)

	fast := Project(m, PricingFor("bedrock"), 2*time.Second)
	assert.InDelta(t, 6.0/3600, fast.EstimatedAnalysisTimeHours, 1e-12)
}

// =============================================================================
// Report Tests
// =============================================================================

func TestSaveReport(t *testing.T) {
	e := newTestEstimator(t)
	m, fetcher := testRepo(t)
	stats, repo, err := e.EstimateRepository(context.Background(), m, fetcher)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reports", "token_analysis.json")
	require.NoError(t, SaveReport(e.NewReport(stats, repo, "run-1"), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"repository_stats", "file_stats", "pricing_info", "analysis_metadata"} {
		assert.Contains(t, doc, key)
	}

	var meta ReportMetadata
	require.NoError(t, json.Unmarshal(doc["analysis_metadata"], &meta))
	assert.Equal(t, "len/4 approximation", meta.Encoder)
	assert.Equal(t, "run-1", meta.RunID)

	var pricing map[string]any
	require.NoError(t, json.Unmarshal(doc["pricing_info"], &pricing))
	assert.Equal(t, 0.003, pricing["input_price_per_1k_tokens"])
	assert.Equal(t, "USD", pricing["currency"])

	empty := e.NewReport(nil, RepositoryStats{}, "")
	out, err := empty.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"file_stats": []`)
}

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
	"math/rand/v2"
	"sort"
	"time"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/inventory"
	"github.com/AleutianAI/CodeSentinel/services/llm"
)

// DefaultResponseTokens is the expected size of a classification response.
const DefaultResponseTokens = 150

// DefaultMaxFileSize matches the classifier's size ceiling.
const DefaultMaxFileSize = 1 << 20

// TokenStats is the estimate for one file.
type TokenStats struct {
	FilePath                string  `json:"file_path"`
	FileSizeBytes           int64   `json:"file_size_bytes"`
	ContentTokens           int     `json:"content_tokens"`
	PromptTokens            int     `json:"prompt_tokens"`
	EstimatedResponseTokens int     `json:"estimated_response_tokens"`
	TotalTokens             int     `json:"total_tokens"`
	EstimatedCostUSD        float64 `json:"estimated_cost_usd"`
}

// RepositoryStats aggregates TokenStats across a repository.
type RepositoryStats struct {
	TotalFiles            int     `json:"total_files"`
	AnalyzedFiles         int     `json:"analyzed_files"`
	TotalContentTokens    int     `json:"total_content_tokens"`
	TotalPromptTokens     int     `json:"total_prompt_tokens"`
	TotalResponseTokens   int     `json:"total_response_tokens"`
	TotalTokens           int     `json:"total_tokens"`
	EstimatedTotalCostUSD float64 `json:"estimated_total_cost_usd"`
	AverageTokensPerFile  float64 `json:"average_tokens_per_file"`
	MedianTokensPerFile   float64 `json:"median_tokens_per_file"`
	LargestFileTokens     int     `json:"largest_file_tokens"`
	LargestFilePath       string  `json:"largest_file_path"`
}

// Config configures an Estimator.
type Config struct {
	// Pricing is the price table. Zero value uses PricingFor("bedrock").
	Pricing Pricing

	// ResponseTokens defaults to DefaultResponseTokens.
	ResponseTokens int

	// MaxFileSize excludes larger contents. Defaults to DefaultMaxFileSize.
	MaxFileSize int

	// Counter overrides the tokenizer. Nil loads cl100k_base.
	Counter Counter

	// Seed makes Preview sampling reproducible. Zero uses the clock.
	Seed uint64
}

// Estimator computes per-file and repository token estimates.
//
// Thread Safety: not safe for concurrent Preview calls.
type Estimator struct {
	counter        Counter
	pricing        Pricing
	responseTokens int
	maxFileSize    int
	rng            *rand.Rand
	logger         *logging.Logger
}

// NewEstimator creates an Estimator, loading the tokenizer if none is given.
func NewEstimator(config Config, logger *logging.Logger) *Estimator {
	logger = logging.OrNop(logger).With("component", "tokens")
	if config.Counter == nil {
		config.Counter = NewCounter(logger)
	}
	if config.Pricing == (Pricing{}) {
		config.Pricing = PricingFor("bedrock")
	}
	if config.Pricing.Currency == "" {
		config.Pricing.Currency = "USD"
	}
	if config.ResponseTokens <= 0 {
		config.ResponseTokens = DefaultResponseTokens
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Estimator{
		counter:        config.Counter,
		pricing:        config.Pricing,
		responseTokens: config.ResponseTokens,
		maxFileSize:    config.MaxFileSize,
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:         logger,
	}
}

// CountTokens counts tokens with the configured tokenizer.
func (e *Estimator) CountTokens(text string) int {
	return e.counter.Count(text)
}

// Tokenizer returns the tokenizer name for reports.
func (e *Estimator) Tokenizer() string {
	return e.counter.Name()
}

// Pricing returns the active price table.
func (e *Estimator) Pricing() Pricing {
	return e.pricing
}

// EstimateFile estimates the cost of classifying one file.
//
// Description:
//
//	Counts the content alone and the full prompt with the content
//	embedded, adds the fixed response estimate and prices both sides.
func (e *Estimator) EstimateFile(file manifest.FileRecord, content string) TokenStats {
	contentTokens := e.counter.Count(content)
	promptTokens := e.counter.Count(llm.BuildPrompt(file.Path, content, file.Extension))
	return TokenStats{
		FilePath:                file.Path,
		FileSizeBytes:           file.Size,
		ContentTokens:           contentTokens,
		PromptTokens:            promptTokens,
		EstimatedResponseTokens: e.responseTokens,
		TotalTokens:             promptTokens + e.responseTokens,
		EstimatedCostUSD:        e.pricing.Cost(promptTokens, e.responseTokens),
	}
}

// EstimateRepository estimates every file in m.
//
// Description:
//
//	Files whose content cannot be fetched, or is larger than MaxFileSize,
//	are logged and excluded. Stats are returned in manifest order.
//
// Outputs:
//
//	[]TokenStats - One entry per analyzed file.
//	RepositoryStats - Aggregates; TotalFiles counts every manifest file.
//	error - Only ctx cancellation.
func (e *Estimator) EstimateRepository(ctx context.Context, m *manifest.Manifest, fetcher inventory.ContentFetcher) ([]TokenStats, RepositoryStats, error) {
	stats, err := e.estimateFiles(ctx, m.Files, fetcher)
	if err != nil {
		return nil, RepositoryStats{}, err
	}
	repo := Aggregate(stats, m.Len())
	e.logger.Info("repository token analysis complete",
		"analyzed", repo.AnalyzedFiles,
		"total_files", repo.TotalFiles,
		"total_tokens", repo.TotalTokens,
		"cost_usd", repo.EstimatedTotalCostUSD,
	)
	return stats, repo, nil
}

func (e *Estimator) estimateFiles(ctx context.Context, files []manifest.FileRecord, fetcher inventory.ContentFetcher) ([]TokenStats, error) {
	stats := make([]TokenStats, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := fetcher.Content(ctx, f.BlobSHA)
		if err != nil {
			e.logger.Warn("could not fetch content for token analysis", "path", f.Path, "error", err)
			continue
		}
		if len(content) > e.maxFileSize {
			e.logger.Warn("skipping large file", "path", f.Path, "bytes", len(content))
			continue
		}
		stats = append(stats, e.EstimateFile(f, content))
	}
	return stats, nil
}

// Aggregate summarizes per-file stats. totalFiles is the manifest size,
// which may exceed len(stats).
func Aggregate(stats []TokenStats, totalFiles int) RepositoryStats {
	repo := RepositoryStats{TotalFiles: totalFiles, AnalyzedFiles: len(stats)}
	if len(stats) == 0 {
		return repo
	}

	totals := make([]int, len(stats))
	for i, s := range stats {
		repo.TotalContentTokens += s.ContentTokens
		repo.TotalPromptTokens += s.PromptTokens
		repo.TotalResponseTokens += s.EstimatedResponseTokens
		repo.TotalTokens += s.TotalTokens
		repo.EstimatedTotalCostUSD += s.EstimatedCostUSD
		totals[i] = s.TotalTokens
		if s.TotalTokens > repo.LargestFileTokens {
			repo.LargestFileTokens = s.TotalTokens
			repo.LargestFilePath = s.FilePath
		}
	}
	repo.AverageTokensPerFile = float64(repo.TotalTokens) / float64(len(stats))
	repo.MedianTokensPerFile = median(totals)
	return repo
}

func median(values []int) float64 {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

// PreviewResult is a sampled pre-flight estimate.
type PreviewResult struct {
	SampleSize            int             `json:"sample_size"`
	Sample                RepositoryStats `json:"sample"`
	TotalFiles            int             `json:"total_files"`
	ProjectedTotalTokens  int             `json:"projected_total_tokens"`
	ProjectedTotalCostUSD float64         `json:"projected_total_cost_usd"`
	SampledPaths          []string        `json:"sampled_paths"`
}

// Preview estimates a random sample of at most sampleSize files and
// extrapolates the mean to the whole manifest.
//
// Description:
//
//	Sampling is without replacement; sampleSize >= file count estimates
//	everything. The result lets a caller accept or reject a full run.
func (e *Estimator) Preview(ctx context.Context, m *manifest.Manifest, fetcher inventory.ContentFetcher, sampleSize int) (PreviewResult, error) {
	n := m.Len()
	if sampleSize <= 0 || sampleSize > n {
		sampleSize = n
	}

	picked := e.rng.Perm(n)[:sampleSize]
	sort.Ints(picked)
	sample := make([]manifest.FileRecord, len(picked))
	paths := make([]string, len(picked))
	for i, idx := range picked {
		sample[i] = m.Files[idx]
		paths[i] = m.Files[idx].Path
	}

	stats, err := e.estimateFiles(ctx, sample, fetcher)
	if err != nil {
		return PreviewResult{}, err
	}
	agg := Aggregate(stats, sampleSize)

	result := PreviewResult{
		SampleSize:   sampleSize,
		Sample:       agg,
		TotalFiles:   n,
		SampledPaths: paths,
	}
	if agg.AnalyzedFiles > 0 {
		scale := float64(n) / float64(agg.AnalyzedFiles)
		result.ProjectedTotalTokens = int(float64(agg.TotalTokens) * scale)
		result.ProjectedTotalCostUSD = agg.EstimatedTotalCostUSD * scale
	}
	e.logger.Info("cost preview",
		"sampled", sampleSize,
		"total_files", n,
		"projected_cost_usd", result.ProjectedTotalCostUSD,
	)
	return result, nil
}

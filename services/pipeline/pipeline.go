// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline sequences the analysis stages:
//
//	inventory -> estimate -> classify -> merge -> score -> publish
//
// Stages never overlap. The manifest is owned by whichever stage is running
// and is saved after every stage that changes it, so a failed run can be
// resumed from the last saved manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/classifier"
	"github.com/AleutianAI/CodeSentinel/services/inventory"
	"github.com/AleutianAI/CodeSentinel/services/llm"
	"github.com/AleutianAI/CodeSentinel/services/risk"
	"github.com/AleutianAI/CodeSentinel/services/storage"
	"github.com/AleutianAI/CodeSentinel/services/tokens"
	"github.com/AleutianAI/CodeSentinel/services/vulns"
)

// Stage names a pipeline step.
type Stage string

const (
	StageInventory Stage = "inventory"
	StageEstimate  Stage = "estimate"
	StageClassify  Stage = "classify"
	StageMerge     Stage = "merge"
	StageScore     Stage = "score"
	StagePublish   Stage = "publish"
)

var (
	// ErrPersistence wraps failures to write or upload artifacts.
	ErrPersistence = errors.New("persistence failure")

	// ErrCostRejected is returned when the preview exceeds MaxCostUSD.
	ErrCostRejected = errors.New("projected cost exceeds limit")
)

// Config selects what a run does and where it writes.
type Config struct {
	// Location is passed to the Source's Describe.
	Location string

	// ManifestPath is required.
	ManifestPath string

	// TokenReportPath and RiskReportPath are optional.
	TokenReportPath string
	RiskReportPath  string

	// ScanReports maps a scanner name to its JSON report file. ScanRoot
	// relativizes absolute paths in those reports.
	ScanReports map[string]string
	ScanRoot    string

	// PreviewSample > 0 runs a cost preview before classification.
	PreviewSample int

	// MaxCostUSD > 0 aborts the run when the preview projects more.
	MaxCostUSD float64

	// SkipClassify stops after inventory and estimation.
	SkipClassify bool

	// UploadPrefix, a gs:// URI, receives every written artifact when an
	// uploader is configured.
	UploadPrefix string
}

// Deps are the collaborators of a run. Estimator, Uploader and the
// classifier options are optional.
type Deps struct {
	Source          inventory.Source
	Provider        llm.Provider
	Classifier      classifier.Config
	ClassifierOpts  []classifier.Option
	Estimator       *tokens.Estimator
	Risk            *risk.Engine
	Uploader        *storage.Uploader
	OnStageComplete func(stage Stage, elapsed time.Duration)
}

// Result collects what every stage produced.
type Result struct {
	RunID          string
	Manifest       *manifest.Manifest
	Preview        *tokens.PreviewResult
	Classification classifier.Summary
	Merge          vulns.Report
	Distribution   risk.Distribution
	Artifacts      []string
	Uploaded       []string
}

// Runner executes the pipeline.
type Runner struct {
	config Config
	deps   Deps
	logger *logging.Logger
}

// New creates a Runner.
func New(config Config, deps Deps, logger *logging.Logger) (*Runner, error) {
	var errs []error
	if config.ManifestPath == "" {
		errs = append(errs, errors.New("manifest path is required"))
	}
	if deps.Source == nil {
		errs = append(errs, errors.New("source is required"))
	}
	if deps.Provider == nil && !config.SkipClassify {
		errs = append(errs, errors.New("provider is required"))
	}
	if deps.Risk == nil {
		errs = append(errs, errors.New("risk engine is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Runner{config: config, deps: deps, logger: logging.OrNop(logger).With("component", "pipeline")}, nil
}

// Run executes every stage in order.
//
// Description:
//
//	Stops at the first stage error and returns the partial Result. Errors
//	writing artifacts wrap ErrPersistence. Per-file problems inside a
//	stage are logged by that stage and do not stop the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", res.RunID)
	logger.Info("analysis started", "location", r.config.Location)

	stages := []struct {
		name Stage
		run  func(context.Context, *Result) error
		skip bool
	}{
		{StageInventory, r.inventory, false},
		{StageEstimate, r.estimate, r.deps.Estimator == nil},
		{StageClassify, r.classify, r.config.SkipClassify},
		{StageMerge, r.merge, r.config.SkipClassify},
		{StageScore, r.score, r.config.SkipClassify},
		{StagePublish, r.publish, r.deps.Uploader == nil || r.config.UploadPrefix == ""},
	}

	for _, s := range stages {
		if s.skip {
			logger.Debug("stage skipped", "stage", s.name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		if err := s.run(ctx, &res); err != nil {
			logger.Error("stage failed", "stage", s.name, "error", err)
			return res, fmt.Errorf("%s: %w", s.name, err)
		}
		elapsed := time.Since(start)
		logger.Info("stage complete", "stage", s.name, "elapsed", elapsed.Round(time.Millisecond))
		if r.deps.OnStageComplete != nil {
			r.deps.OnStageComplete(s.name, elapsed)
		}
	}

	logger.Info("analysis complete", "files", res.Manifest.Len(), "artifacts", len(res.Artifacts))
	return res, nil
}

func (r *Runner) inventory(ctx context.Context, res *Result) error {
	m, err := inventory.Build(ctx, r.deps.Source, r.config.Location)
	if err != nil {
		return err
	}
	res.Manifest = m
	return r.saveManifest(res)
}

func (r *Runner) estimate(ctx context.Context, res *Result) error {
	est := r.deps.Estimator
	if r.config.TokenReportPath != "" {
		stats, repo, err := est.EstimateRepository(ctx, res.Manifest, r.deps.Source)
		if err != nil {
			return err
		}
		if err := tokens.SaveReport(est.NewReport(stats, repo, res.RunID), r.config.TokenReportPath); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		res.Artifacts = append(res.Artifacts, r.config.TokenReportPath)
	}

	if r.config.PreviewSample <= 0 {
		return nil
	}
	preview, err := est.Preview(ctx, res.Manifest, r.deps.Source, r.config.PreviewSample)
	if err != nil {
		return err
	}
	res.Preview = &preview
	if r.config.MaxCostUSD > 0 && preview.ProjectedTotalCostUSD > r.config.MaxCostUSD {
		return fmt.Errorf("%w: $%.4f > $%.4f", ErrCostRejected, preview.ProjectedTotalCostUSD, r.config.MaxCostUSD)
	}
	return nil
}

func (r *Runner) classify(ctx context.Context, res *Result) error {
	o := classifier.New(r.deps.Provider, r.deps.Source, r.deps.Classifier, r.logger, r.deps.ClassifierOpts...)
	summary, err := o.Run(ctx, res.Manifest)
	res.Classification = summary
	// Save what was classified even when interrupted.
	if saveErr := r.saveManifest(res); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	return err
}

func (r *Runner) merge(_ context.Context, res *Result) error {
	results := vulns.ScanResults{}
	for _, tool := range sortedKeys(r.config.ScanReports) {
		byPath, err := vulns.ReadReport(tool, r.config.ScanReports[tool], r.config.ScanRoot)
		if err != nil {
			return err
		}
		results[tool] = byPath
	}
	res.Merge = vulns.Merge(res.Manifest, results, r.logger)
	return r.saveManifest(res)
}

func (r *Runner) score(_ context.Context, res *Result) error {
	res.Distribution = r.deps.Risk.ScoreManifest(res.Manifest)
	if err := r.saveManifest(res); err != nil {
		return err
	}
	if r.config.RiskReportPath == "" {
		return nil
	}
	if err := risk.SaveReport(risk.NewReport(res.Manifest, r.deps.Risk, res.RunID), r.config.RiskReportPath); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	res.Artifacts = append(res.Artifacts, r.config.RiskReportPath)
	return nil
}

func (r *Runner) publish(ctx context.Context, res *Result) error {
	prefix := r.config.UploadPrefix
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	prefix += res.RunID + "/"
	for _, path := range res.Artifacts {
		uri, err := r.deps.Uploader.Upload(ctx, path, prefix)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		res.Uploaded = append(res.Uploaded, uri)
	}
	return nil
}

func (r *Runner) saveManifest(res *Result) error {
	if err := manifest.Save(res.Manifest, r.config.ManifestPath); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	for _, a := range res.Artifacts {
		if a == r.config.ManifestPath {
			return nil
		}
	}
	res.Artifacts = append(res.Artifacts, r.config.ManifestPath)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

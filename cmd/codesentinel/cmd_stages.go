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
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/classifier"
	"github.com/AleutianAI/CodeSentinel/services/inventory"
	"github.com/AleutianAI/CodeSentinel/services/pipeline"
	"github.com/AleutianAI/CodeSentinel/services/risk"
	"github.com/AleutianAI/CodeSentinel/services/tokens"
	"github.com/AleutianAI/CodeSentinel/services/vulns"
)

// =============================================================================
// inventory
// =============================================================================

func runInventory(cmd *cobra.Command, args []string) error {
	a := current
	source, err := a.newSource(args[0])
	if err != nil {
		return err
	}
	m, err := inventory.Build(cmd.Context(), source, args[0])
	if err != nil {
		return err
	}

	output := a.cfg.Output
	if outDir != "" {
		output.Dir = outDir
	}
	path := output.ManifestPath()
	if err := saveManifest(m, path); err != nil {
		return err
	}

	a.out.Success(fmt.Sprintf("inventoried %d files", m.Len()))
	a.out.Field("Commit", m.Repository.CommitSHA)
	a.out.Field("Branch", m.Repository.DefaultBranch)
	a.out.Field("Manifest", path)
	return nil
}

// =============================================================================
// classify
// =============================================================================

func runClassify(cmd *cobra.Command, args []string) error {
	a := current
	ctx := cmd.Context()
	path := args[0]

	m, err := loadManifest(path)
	if err != nil {
		return err
	}
	source, err := a.newSource(repoDir)
	if err != nil {
		return err
	}
	source.Index(m)

	provider, pc, err := a.newProvider(ctx)
	if err != nil {
		return err
	}
	opts, err := a.classifierOptions(cmd)
	if err != nil {
		return err
	}

	summary, runErr := classifier.New(provider, source, a.classifierConfig(pc), a.logger, opts...).Run(ctx, m)
	// Partial results are saved even when interrupted.
	if err := saveManifest(m, path); err != nil {
		return errors.Join(runErr, err)
	}
	printClassification(a, summary)
	return runErr
}

// =============================================================================
// merge
// =============================================================================

func runMerge(cmd *cobra.Command, args []string) error {
	a := current
	path := args[0]
	reports := scanReports()
	if len(reports) == 0 {
		return errors.New("no scanner reports given; use --semgrep, --bandit or --trivy")
	}

	m, err := loadManifest(path)
	if err != nil {
		return err
	}
	results := vulns.ScanResults{}
	for tool, file := range reports {
		byPath, err := vulns.ReadReport(tool, file, scanRoot)
		if err != nil {
			return err
		}
		results[tool] = byPath
	}

	report := vulns.Merge(m, results, a.logger)
	if err := saveManifest(m, path); err != nil {
		return err
	}
	printMerge(a, report)
	return nil
}

// =============================================================================
// score
// =============================================================================

func runScore(cmd *cobra.Command, args []string) error {
	a := current
	path := args[0]

	m, err := loadManifest(path)
	if err != nil {
		return err
	}
	engine := a.newRiskEngine()
	runID := uuid.NewString()

	if err := scoreOnce(a, engine, m, path, runID); err != nil {
		return err
	}
	if !watchScoring {
		return nil
	}

	ctx := cmd.Context()
	a.out.Muted(fmt.Sprintf("watching %s for changes, Ctrl-C to stop", engine.Path()))
	err = engine.Watch(ctx, risk.DefaultReloadDebounce, func(reloadErr error) {
		if reloadErr != nil {
			a.out.Warning(fmt.Sprintf("scoring config rejected, using defaults: %v", reloadErr))
		}
		if err := scoreOnce(a, engine, m, path, runID); err != nil {
			a.logger.Error("re-score failed", "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func scoreOnce(a *app, engine *risk.Engine, m *manifest.Manifest, path, runID string) error {
	dist := engine.ScoreManifest(m)
	if err := saveManifest(m, path); err != nil {
		return err
	}
	report := risk.NewReport(m, engine, runID)
	if riskReportPath != "" {
		if err := risk.SaveReport(report, riskReportPath); err != nil {
			return fmt.Errorf("%w: %w", pipeline.ErrPersistence, err)
		}
	}

	printDistribution(a, dist)
	printTopRisks(a, report.Assessments, topN)
	return nil
}

// =============================================================================
// estimate
// =============================================================================

func runEstimate(cmd *cobra.Command, args []string) error {
	a := current
	ctx := cmd.Context()

	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	if projectOnly {
		pc := a.cfg.ProviderConfig(a.providerName())
		printProjection(a, tokens.Project(m, a.cfg.PricingFor(a.providerName()), pc.Pacing))
		return nil
	}

	source, err := a.newSource(repoDir)
	if err != nil {
		return err
	}
	source.Index(m)
	est := a.newEstimator()

	if sampleSize > 0 {
		preview, err := est.Preview(ctx, m, source, sampleSize)
		if err != nil {
			return err
		}
		printPreview(a, &preview)
		return nil
	}

	stats, repo, err := est.EstimateRepository(ctx, m, source)
	if err != nil {
		return err
	}
	if tokenReportPath != "" {
		if err := tokens.SaveReport(est.NewReport(stats, repo, uuid.NewString()), tokenReportPath); err != nil {
			return fmt.Errorf("%w: %w", pipeline.ErrPersistence, err)
		}
	}
	printRepositoryStats(a, repo, est.Pricing())
	return nil
}

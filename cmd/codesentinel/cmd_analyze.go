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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeSentinel/services/llm"
	"github.com/AleutianAI/CodeSentinel/services/pipeline"
)

// runAnalyze runs every stage against a local checkout.
func runAnalyze(cmd *cobra.Command, args []string) error {
	a := current
	ctx := cmd.Context()
	repo := args[0]

	source, err := a.newSource(repo)
	if err != nil {
		return err
	}

	output := a.cfg.Output
	if outDir != "" {
		output.Dir = outDir
	}
	pcfg := pipeline.Config{
		Location:        repo,
		ManifestPath:    output.ManifestPath(),
		TokenReportPath: output.TokenReportPath(),
		RiskReportPath:  output.RiskReportPath(),
		ScanReports:     scanReports(),
		ScanRoot:        scanRoot,
		PreviewSample:   a.cfg.Analysis.SampleSize,
		MaxCostUSD:      a.cfg.Analysis.MaxCostUSD,
		SkipClassify:    skipClassify,
		UploadPrefix:    a.cfg.Storage.Bucket,
	}
	if pcfg.ScanRoot == "" {
		pcfg.ScanRoot = repo
	}
	if cmd.Flags().Changed("sample") {
		pcfg.PreviewSample = sampleSize
	}
	if cmd.Flags().Changed("max-cost") {
		pcfg.MaxCostUSD = maxCost
	}

	deps := pipeline.Deps{
		Source:    source,
		Estimator: a.newEstimator(),
		Risk:      a.newRiskEngine(),
		OnStageComplete: func(stage pipeline.Stage, elapsed time.Duration) {
			a.out.Success(fmt.Sprintf("%s done in %s", stage, elapsed.Round(time.Millisecond)))
		},
	}
	if !skipClassify {
		var pc llm.Config
		deps.Provider, pc, err = a.newProvider(ctx)
		if err != nil {
			return err
		}
		deps.Classifier = a.classifierConfig(pc)
		if deps.ClassifierOpts, err = a.classifierOptions(cmd); err != nil {
			return err
		}
	}
	if deps.Uploader, err = a.newUploader(ctx); err != nil {
		return err
	}

	runner, err := pipeline.New(pcfg, deps, a.logger)
	if err != nil {
		return err
	}

	a.out.Title("CodeSentinel analysis")
	res, err := runner.Run(ctx)
	if res.Preview != nil {
		printPreview(a, res.Preview)
	}
	if err != nil {
		return err
	}

	a.out.Title("Results")
	a.out.Field("Run ID", res.RunID)
	a.out.Field("Files", res.Manifest.Len())
	if !skipClassify {
		printClassification(a, res.Classification)
		printMerge(a, res.Merge)
		printDistribution(a, res.Distribution)
	}
	for _, path := range res.Artifacts {
		a.out.Field("Wrote", path)
	}
	for _, uri := range res.Uploaded {
		a.out.Field("Uploaded", uri)
	}
	return nil
}

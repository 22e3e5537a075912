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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	// persistent
	configPath  string
	logLevel    string
	logDir      string
	jsonLogs    bool
	enableTrace bool
	outputMode  string

	// shared by several commands
	providerName  string
	repoDir       string
	outDir        string
	semgrepReport string
	banditReport  string
	trivyReport   string
	scanRoot      string
	scoringConfig string

	// analyze
	sampleSize   int
	maxCost      float64
	skipClassify bool
	noCache      bool
	clearCache   bool
	noUpload     bool

	// classify
	resume bool

	// score
	riskReportPath string
	watchScoring   bool
	topN           int

	// estimate
	projectOnly     bool
	tokenReportPath string

	// show
	showLimit int

	rootCmd = &cobra.Command{
		Use:   "codesentinel",
		Short: "Rank the files of a repository by security risk",
		Long: `CodeSentinel inventories a repository, asks an LLM what each file does,
merges static-analysis findings and scores every file into a priority tier
with a remediation SLA.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  setupApp,
		PersistentPostRunE: teardownApp,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze <repo-dir>",
		Short: "Run the full pipeline: inventory, estimate, classify, merge, score",
		Long:  "Run the full pipeline: inventory, estimate, classify, merge, score.\n\n" + redactionNote,
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}

	inventoryCmd = &cobra.Command{
		Use:   "inventory <repo-dir>",
		Short: "Build a manifest of the analyzable files in a checkout",
		Args:  cobra.ExactArgs(1),
		RunE:  runInventory, // Defined in cmd_stages.go
	}

	classifyCmd = &cobra.Command{
		Use:   "classify <manifest>",
		Short: "Classify the files of a manifest with the configured provider",
		Long:  "Classify the files of a manifest with the configured provider.\n\n" + redactionNote,
		Args:  cobra.ExactArgs(1),
		RunE:  runClassify,
	}

	mergeCmd = &cobra.Command{
		Use:   "merge <manifest>",
		Short: "Attach scanner findings to a manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runMerge,
	}

	scoreCmd = &cobra.Command{
		Use:   "score <manifest>",
		Short: "Score every file with findings and assign priority tiers",
		Args:  cobra.ExactArgs(1),
		RunE:  runScore,
	}

	estimateCmd = &cobra.Command{
		Use:   "estimate <manifest>",
		Short: "Estimate the token usage and cost of classifying a manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runEstimate,
	}

	showCmd = &cobra.Command{
		Use:   "show <manifest>",
		Short: "Summarize a manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow, // Defined in cmd_show.go
	}

	testConnectionCmd = &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the configured provider answers",
		Args:  cobra.NoArgs,
		RunE:  runTestConnection,
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInitConfig,
	}
)

// redactionNote is shown on the commands that send file content to a model.
const redactionNote = `With analysis.redact_secrets enabled (the default), credentials such as
private keys, cloud keys and API tokens are replaced with [REDACTED] before
a file is sent to the provider, so the model classifies the masked text
rather than the file verbatim. Set redact_secrets: false to send content
unchanged.`

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default $CODESENTINEL_CONFIG or ~/.codesentinel/codesentinel.yaml)")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&logDir, "log-dir", "", "also write JSON logs to this directory")
	pf.BoolVar(&jsonLogs, "json-logs", false, "write JSON logs to stderr")
	pf.BoolVar(&enableTrace, "trace", false, "print OpenTelemetry spans to stderr")
	pf.StringVar(&outputMode, "output", "", "output style: rich, plain, machine (default: detected)")

	analyzeCmd.Flags().StringVar(&providerName, "provider", "", "LLM provider (default from config)")
	analyzeCmd.Flags().StringVar(&outDir, "output-dir", "", "directory for artifacts (default from config)")
	analyzeCmd.Flags().StringVar(&semgrepReport, "semgrep", "", "semgrep JSON report")
	analyzeCmd.Flags().StringVar(&banditReport, "bandit", "", "bandit JSON report")
	analyzeCmd.Flags().StringVar(&trivyReport, "trivy", "", "trivy JSON report")
	analyzeCmd.Flags().StringVar(&scanRoot, "scan-root", "", "root for absolute paths in scanner reports (default <repo-dir>)")
	analyzeCmd.Flags().StringVar(&scoringConfig, "scoring-config", "", "risk scoring YAML (default from config)")
	analyzeCmd.Flags().IntVar(&sampleSize, "sample", 0, "files sampled for the cost preview, 0 disables (default from config)")
	analyzeCmd.Flags().Float64Var(&maxCost, "max-cost", 0, "abort when the preview projects more USD, 0 disables (default from config)")
	analyzeCmd.Flags().BoolVar(&skipClassify, "skip-classify", false, "stop after inventory and estimation")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "do not use the classification cache")
	analyzeCmd.Flags().BoolVar(&clearCache, "clear-cache", false, "drop every cached classification before running")
	analyzeCmd.Flags().BoolVar(&noUpload, "no-upload", false, "do not upload artifacts even when a bucket is configured")

	inventoryCmd.Flags().StringVar(&outDir, "output-dir", "", "directory for the manifest (default from config)")

	classifyCmd.Flags().StringVar(&providerName, "provider", "", "LLM provider (default from config)")
	classifyCmd.Flags().StringVar(&repoDir, "repo", ".", "checkout the manifest was built from")
	classifyCmd.Flags().BoolVar(&resume, "resume", false, "skip files that already hold a classification")
	classifyCmd.Flags().BoolVar(&noCache, "no-cache", false, "do not use the classification cache")
	classifyCmd.Flags().BoolVar(&clearCache, "clear-cache", false, "drop every cached classification before running")

	mergeCmd.Flags().StringVar(&semgrepReport, "semgrep", "", "semgrep JSON report")
	mergeCmd.Flags().StringVar(&banditReport, "bandit", "", "bandit JSON report")
	mergeCmd.Flags().StringVar(&trivyReport, "trivy", "", "trivy JSON report")
	mergeCmd.Flags().StringVar(&scanRoot, "scan-root", "", "root for absolute paths in scanner reports")

	scoreCmd.Flags().StringVar(&scoringConfig, "scoring-config", "", "risk scoring YAML (default from config)")
	scoreCmd.Flags().StringVar(&riskReportPath, "report", "", "write the full risk report to this file")
	scoreCmd.Flags().BoolVar(&watchScoring, "watch", false, "re-score whenever the scoring config changes")
	scoreCmd.Flags().IntVar(&topN, "top", 10, "number of highest-risk files to list")

	estimateCmd.Flags().StringVar(&providerName, "provider", "", "price table to use (default from config)")
	estimateCmd.Flags().StringVar(&repoDir, "repo", ".", "checkout the manifest was built from")
	estimateCmd.Flags().IntVar(&sampleSize, "sample", 0, "estimate a random sample of N files and extrapolate")
	estimateCmd.Flags().BoolVar(&projectOnly, "project", false, "project from extensions and sizes without reading files")
	estimateCmd.Flags().StringVar(&tokenReportPath, "report", "", "write the token report to this file")

	showCmd.Flags().IntVar(&showLimit, "limit", 20, "number of files to list")

	testConnectionCmd.Flags().StringVar(&providerName, "provider", "", "LLM provider (default from config)")

	rootCmd.AddCommand(
		analyzeCmd,
		inventoryCmd,
		classifyCmd,
		mergeCmd,
		scoreCmd,
		estimateCmd,
		showCmd,
		testConnectionCmd,
		initConfigCmd,
	)
}

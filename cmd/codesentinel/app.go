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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeSentinel/cmd/codesentinel/config"
	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/pkg/ux"
	"github.com/AleutianAI/CodeSentinel/services/classifier"
	"github.com/AleutianAI/CodeSentinel/services/inventory"
	"github.com/AleutianAI/CodeSentinel/services/llm"
	"github.com/AleutianAI/CodeSentinel/services/pipeline"
	"github.com/AleutianAI/CodeSentinel/services/risk"
	"github.com/AleutianAI/CodeSentinel/services/secrets"
	"github.com/AleutianAI/CodeSentinel/services/storage"
	"github.com/AleutianAI/CodeSentinel/services/tokens"
	"github.com/AleutianAI/CodeSentinel/services/vulns"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfg       config.Config
	cfgSource string
	logger    *logging.Logger
	out       *ux.Printer

	shutdownTracing func(context.Context) error
	closers         []func() error
}

// current is set by setupApp and cleared by teardownApp.
var current *app

// newProviderFunc builds providers. Tests replace it.
var newProviderFunc = llm.New

func setupApp(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	a := &app{
		logger: logging.New(logging.Config{
			Level:   level,
			LogDir:  logDir,
			Service: "codesentinel",
			JSON:    jsonLogs,
			Output:  cmd.ErrOrStderr(),
		}),
		out: ux.NewPrinter(cmd.OutOrStdout(), ux.DetectMode(cmd.OutOrStdout(), outputMode)),
	}
	current = a

	if cmd == initConfigCmd {
		return nil
	}
	a.cfg, a.cfgSource, err = config.Load(configPath)
	if err != nil {
		current = nil
		_ = a.logger.Close()
		return err
	}
	if a.cfgSource == "" {
		a.logger.Debug("no config file found, using built-in defaults")
	} else {
		a.logger.Debug("loaded config", "path", a.cfgSource)
	}

	if enableTrace {
		shutdown, err := initTracing(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		a.shutdownTracing = shutdown
	}
	return nil
}

func teardownApp(cmd *cobra.Command, _ []string) error {
	a := current
	if a == nil {
		return nil
	}
	current = nil

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(context.WithoutCancel(cmd.Context())))
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}

// onClose registers fn to run at teardown, in reverse order.
func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// =============================================================================
// Component construction
// =============================================================================

func (a *app) providerName() string {
	if providerName != "" {
		return providerName
	}
	return a.cfg.LLM.Provider
}

func (a *app) newProvider(ctx context.Context) (llm.Provider, llm.Config, error) {
	name := a.providerName()
	pc := a.cfg.ProviderConfig(name)
	p, err := newProviderFunc(ctx, name, pc, a.logger)
	if err != nil {
		return nil, pc, err
	}
	return p, pc, nil
}

func (a *app) newSource(dir string) (*inventory.Local, error) {
	return inventory.NewLocal(dir, inventory.LocalConfig{
		Extensions:  a.cfg.Analysis.Extensions,
		MaxFileSize: a.cfg.Analysis.MaxFileSize,
	}, a.logger)
}

func (a *app) newEstimator() *tokens.Estimator {
	return tokens.NewEstimator(tokens.Config{
		Pricing:     a.cfg.PricingFor(a.providerName()),
		MaxFileSize: int(a.cfg.Analysis.MaxFileSize),
	}, a.logger)
}

func (a *app) newRiskEngine() *risk.Engine {
	path := scoringConfig
	if path == "" {
		path = a.cfg.Risk.ScoringConfig
	}
	return risk.NewEngine(path, a.logger)
}

func (a *app) classifierConfig(pc llm.Config) classifier.Config {
	return classifier.Config{
		MaxFileSize:       int(a.cfg.Analysis.MaxFileSize),
		Pacing:            pc.Pacing,
		RequestsPerMinute: a.cfg.Analysis.RequestsPerMinute,
		Resume:            resume,
	}
}

// openCache opens the classification cache, or returns nil when disabled.
// A cache that cannot be opened is logged and skipped. --clear-cache empties
// it first.
func (a *app) openCache(ctx context.Context) *classifier.Cache {
	if noCache || !a.cfg.Cache.Enabled {
		return nil
	}
	cfg := storage.DefaultConfig(a.cfg.CacheDir())
	cfg.Logger = a.logger
	db, err := storage.Open(cfg)
	if err != nil {
		a.logger.Warn("classification cache unavailable, continuing without it", "dir", cfg.Path, "error", err)
		return nil
	}
	a.onClose(db.Close)
	cache := classifier.NewCache(db, a.cfg.Cache.TTL)
	if clearCache {
		n, err := cache.Len(ctx)
		if err == nil {
			err = cache.Clear()
		}
		if err != nil {
			a.logger.Warn("could not clear classification cache", "dir", cfg.Path, "error", err)
		} else {
			a.out.Info(fmt.Sprintf("cleared %d cached classifications", n))
		}
	}
	return cache
}

func (a *app) newUploader(ctx context.Context) (*storage.Uploader, error) {
	if noUpload || a.cfg.Storage.Bucket == "" {
		return nil, nil
	}
	u, err := storage.NewUploader(ctx, a.cfg.Storage.CredentialsFile, a.logger)
	if err != nil {
		return nil, err
	}
	a.onClose(u.Close)
	return u, nil
}

// classifierOptions builds the progress display, credential redaction and
// cache options shared by analyze and classify.
func (a *app) classifierOptions(cmd *cobra.Command) ([]classifier.Option, error) {
	var opts []classifier.Option
	if a.out.Mode() == ux.ModeRich {
		errOut := ux.NewPrinter(cmd.ErrOrStderr(), ux.ModeRich)
		opts = append(opts, classifier.WithProgress(func(done, total int, o classifier.Outcome) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r%s %s", errOut.ProgressBar(done, total, 30), filepath.Base(o.Path))
			if done == total {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
		}))
	}
	if a.cfg.Analysis.RedactSecrets {
		r, err := secrets.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, classifier.WithRedactor(r))
	}
	if cache := a.openCache(cmd.Context()); cache != nil {
		opts = append(opts, classifier.WithCache(cache))
	}
	return opts, nil
}

// =============================================================================
// Manifest I/O
// =============================================================================

func loadManifest(path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return m, nil
}

func saveManifest(m *manifest.Manifest, path string) error {
	if err := manifest.Save(m, path); err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrPersistence, err)
	}
	return nil
}

// scanReports collects the scanner flags that were set.
func scanReports() map[string]string {
	reports := map[string]string{}
	for tool, path := range map[string]string{
		vulns.ToolSemgrep: semgrepReport,
		vulns.ToolBandit:  banditReport,
		vulns.ToolTrivy:   trivyReport,
	} {
		if path != "" {
			reports[tool] = path
		}
	}
	return reports
}

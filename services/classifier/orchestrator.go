// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier runs a provider over the files of a manifest, one call
// at a time, and writes the classifications back.
package classifier

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/inventory"
	"github.com/AleutianAI/CodeSentinel/services/llm"
	"github.com/AleutianAI/CodeSentinel/services/secrets"
)

// DefaultMaxFileSize is the content length above which a file is skipped.
const DefaultMaxFileSize = 1 << 20

// =============================================================================
// States and Outcomes
// =============================================================================

// State is a file's position in the classification lifecycle:
//
//	pending -> content-fetched -> classified | skipped | failed
type State string

const (
	StatePending        State = "pending"
	StateContentFetched State = "content-fetched"
	StateClassified     State = "classified"
	StateSkipped        State = "skipped"
	StateFailed         State = "failed"
)

// Outcome is the terminal result for one file.
type Outcome struct {
	Path   string `json:"path"`
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`

	// Cached is set when the classification came from the cache.
	Cached bool `json:"cached,omitempty"`

	// Redacted counts credential matches masked before the provider call.
	Redacted int `json:"redacted,omitempty"`

	// Classification is set only for StateClassified.
	Classification *manifest.Classification `json:"classification,omitempty"`
}

// Summary counts a batch's outcomes.
type Summary struct {
	Total      int           `json:"total"`
	Classified int           `json:"classified"`
	Fallbacks  int           `json:"fallbacks"`
	Cached     int           `json:"cached"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Redacted   int           `json:"redacted"`
	Applied    int           `json:"applied"`
	Duration   time.Duration `json:"duration"`
	Outcomes   []Outcome     `json:"outcomes"`
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Redacted += o.Redacted
	switch o.State {
	case StateClassified:
		s.Classified++
		if o.Cached {
			s.Cached++
		}
		if o.Classification != nil && o.Classification.Fallback {
			s.Fallbacks++
		}
	case StateSkipped:
		s.Skipped++
	case StateFailed:
		s.Failed++
	}
	filesTotal.WithLabelValues(string(o.State)).Inc()
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config tunes the orchestrator.
type Config struct {
	// MaxFileSize skips files whose content is longer, in bytes.
	MaxFileSize int

	// Pacing is the pause between consecutive provider calls.
	Pacing time.Duration

	// RequestsPerMinute adds a token-bucket ceiling on provider calls.
	// Zero disables it.
	RequestsPerMinute int

	// Resume leaves files that already hold a non-fallback classification
	// untouched.
	Resume bool
}

// ProgressFunc observes each terminal outcome. done counts from 1.
type ProgressFunc func(done, total int, o Outcome)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables the classification cache.
func WithCache(c *Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithRedactor masks credentials in file contents before each provider
// call. Cache keys still use the unredacted blob hash.
func WithRedactor(r *secrets.Redactor) Option {
	return func(o *Orchestrator) { o.redactor = r }
}

// WithSleep replaces the pacing sleep. Used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// Orchestrator classifies files sequentially.
//
// Thread Safety: not safe for concurrent use. One batch at a time.
type Orchestrator struct {
	provider llm.Provider
	fetcher  inventory.ContentFetcher
	config   Config
	cache    *Cache
	redactor *secrets.Redactor
	limiter  *rate.Limiter
	progress ProgressFunc
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *logging.Logger
}

// New creates an Orchestrator.
func New(provider llm.Provider, fetcher inventory.ContentFetcher, config Config, logger *logging.Logger, opts ...Option) *Orchestrator {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	o := &Orchestrator{
		provider: provider,
		fetcher:  fetcher,
		config:   config,
		sleep:    sleepContext,
		logger:   logging.OrNop(logger).With("component", "classifier", "provider", provider.Name()),
	}
	if config.RequestsPerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run classifies every file of m and writes the results back.
//
// Description:
//
//	Equivalent to ClassifyFiles over m.Files followed by Apply. With
//	Resume set, files that already hold a real classification are left
//	out of the batch.
//
// Outputs:
//
//	Summary - Counts and per-file outcomes, also on cancellation.
//	error - ctx cancellation only.
func (o *Orchestrator) Run(ctx context.Context, m *manifest.Manifest) (Summary, error) {
	batch := make([]manifest.FileRecord, 0, m.Len())
	for _, f := range m.Files {
		if o.config.Resume && f.IsClassified() && !f.IsFallback() {
			continue
		}
		batch = append(batch, f)
	}
	if skipped := m.Len() - len(batch); skipped > 0 {
		o.logger.Info("resuming, leaving classified files untouched", "already_classified", skipped)
	}

	summary, err := o.ClassifyFiles(ctx, batch)
	summary.Applied = Apply(m, summary.Outcomes)
	return summary, err
}

// ClassifyFiles runs the provider over files in order.
//
// Description:
//
//	For each file: fetch content (failure -> failed), skip content longer
//	than MaxFileSize (-> skipped), then serve from the cache or call the
//	provider (-> classified; the provider never fails, it falls back).
//	Consecutive provider calls are separated by Pacing and, when set, the
//	rate limiter. No pause follows the final call. The batch stops early
//	only when ctx is cancelled.
//
// Inputs:
//
//	ctx - Cancels the batch between files and during pauses.
//	files - The batch. Not modified.
//
// Outputs:
//
//	Summary - Outcomes in batch order.
//	error - ctx.Err() if the batch was cut short.
func (o *Orchestrator) ClassifyFiles(ctx context.Context, files []manifest.FileRecord) (summary Summary, err error) {
	ctx, span := otel.Tracer("classifier").Start(ctx, "classifier.ClassifyFiles",
		trace.WithAttributes(
			attribute.String("provider", o.provider.Name()),
			attribute.String("model", o.provider.Model()),
			attribute.Int("files", len(files)),
		),
	)
	defer span.End()

	start := time.Now()
	summary = Summary{Total: len(files), Outcomes: make([]Outcome, 0, len(files))}
	defer func() {
		summary.Duration = time.Since(start)
		batchDuration.Observe(summary.Duration.Seconds())
	}()

	o.logger.Info("starting classification batch",
		"files", len(files),
		"model", o.provider.Model(),
		"pacing", o.config.Pacing,
	)

	called := false
	for i := range files {
		if err := ctx.Err(); err != nil {
			return o.abort(span, summary, err)
		}

		outcome, usedProvider, err := o.classifyOne(ctx, &files[i], called)
		if err != nil {
			return o.abort(span, summary, err)
		}
		called = called || usedProvider

		summary.add(outcome)
		if o.progress != nil {
			o.progress(len(summary.Outcomes), len(files), outcome)
		}
	}

	span.SetAttributes(
		attribute.Int("classified", summary.Classified),
		attribute.Int("fallbacks", summary.Fallbacks),
		attribute.Int("skipped", summary.Skipped),
		attribute.Int("failed", summary.Failed),
	)
	o.logger.Info("classification batch complete",
		"classified", summary.Classified,
		"fallbacks", summary.Fallbacks,
		"cached", summary.Cached,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (o *Orchestrator) abort(span trace.Span, summary Summary, err error) (Summary, error) {
	o.logger.Warn("classification batch interrupted", "completed", len(summary.Outcomes), "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "interrupted")
	return summary, err
}

// classifyOne moves one file to a terminal state. paceFirst reports whether
// an earlier provider call in this batch must be followed by a pause before
// the next one. The bool result reports whether the provider was called.
func (o *Orchestrator) classifyOne(ctx context.Context, f *manifest.FileRecord, paceFirst bool) (Outcome, bool, error) {
	state := StatePending
	content, err := o.fetcher.Content(ctx, f.BlobSHA)
	if err != nil {
		o.logger.Warn("could not fetch file content", "path", f.Path, "state", state, "error", err)
		return Outcome{Path: f.Path, State: StateFailed, Reason: err.Error()}, false, nil
	}
	state = StateContentFetched

	if len(content) > o.config.MaxFileSize {
		o.logger.Info("skipping large file", "path", f.Path, "state", state, "bytes", len(content), "max", o.config.MaxFileSize)
		return Outcome{
			Path:   f.Path,
			State:  StateSkipped,
			Reason: fmt.Sprintf("content is %d bytes, limit %d", len(content), o.config.MaxFileSize),
		}, false, nil
	}

	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, f.BlobSHA, o.provider.Name(), o.provider.Model()); ok {
			cacheHits.Inc()
			o.logger.Debug("classification cache hit", "path", f.Path)
			return Outcome{Path: f.Path, State: StateClassified, Cached: true, Classification: &cached}, false, nil
		}
	}

	if paceFirst {
		if err := o.sleep(ctx, o.config.Pacing); err != nil {
			return Outcome{}, false, err
		}
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return Outcome{}, false, err
		}
	}

	redacted := 0
	if o.redactor != nil {
		var findings []secrets.Finding
		content, findings = o.redactor.Redact(content)
		redacted = len(findings)
		if redacted > 0 {
			o.logger.Info("masked credentials before classification", "path", f.Path, "matches", redacted)
		}
	}

	result := o.provider.AnalyzeFile(ctx, f.Path, content, f.Extension)
	if o.cache != nil {
		if err := o.cache.Put(ctx, f.BlobSHA, result); err != nil {
			o.logger.Warn("could not cache classification", "path", f.Path, "error", err)
		}
	}
	o.logger.Debug("classified file",
		"path", f.Path,
		"category", result.Category,
		"confidence", result.Confidence,
		"fallback", result.Fallback,
	)
	return Outcome{Path: f.Path, State: StateClassified, Redacted: redacted, Classification: &result}, true, nil
}

// Apply writes classified outcomes into m by path and returns how many
// were applied. Outcomes whose path is not in m are ignored.
func Apply(m *manifest.Manifest, outcomes []Outcome) int {
	applied := 0
	for _, o := range outcomes {
		if o.State != StateClassified || o.Classification == nil {
			continue
		}
		rec, ok := m.Lookup(o.Path)
		if !ok {
			continue
		}
		rec.ApplyClassification(*o.Classification)
		applied++
	}
	return applied
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the file classification providers.
//
// Every back end implements Provider and shares one prompt (BuildPrompt) and
// one response parser (ParseClassification). The retry and fallback policy
// lives in a single place, analyzer, so a back end only has to turn a
// prompt into response text and flag rate-limit errors with ErrRateLimited.
//
// AnalyzeFile never returns an error. Any failure produces Fallback(name,
// model), which callers can recognize through Classification.Fallback.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

var (
	// ErrRateLimited marks a provider error that is worth retrying.
	ErrRateLimited = errors.New("rate limited")

	// ErrMissingFields is returned when a response lacks a required field.
	ErrMissingFields = errors.New("response missing required fields")

	// ErrNoJSON is returned when a response contains no JSON object.
	ErrNoJSON = errors.New("no JSON object in response")

	// ErrUnknownProvider is returned by the registry for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingCredentials is returned when a provider needs an API key
	// and none is configured.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response")
)

// Fallback literals.
const (
	FallbackPurpose   = "Could not analyze file purpose"
	FallbackReasoning = "Analysis failed"
)

// Provider classifies a single file with one LLM back end.
type Provider interface {
	// AnalyzeFile classifies one file. It never fails; errors yield
	// Fallback(Name(), Model()).
	AnalyzeFile(ctx context.Context, path, content, extension string) manifest.Classification

	// TestConnection performs a minimal round trip. False means the back
	// end is unreachable or rejected the credentials.
	TestConnection(ctx context.Context) bool

	// Name is the registry name, e.g. "openai".
	Name() string

	// Model is the model identifier sent to the back end.
	Model() string
}

// Fallback returns the sentinel classification for a failed analysis.
func Fallback(provider, model string) manifest.Classification {
	return manifest.Classification{
		Purpose:           FallbackPurpose,
		Category:          manifest.CategoryOther,
		Confidence:        0.0,
		SecurityRelevance: manifest.RelevanceLow,
		Reasoning:         FallbackReasoning,
		Provider:          provider,
		Model:             model,
		Fallback:          true,
	}
}

// =============================================================================
// Shared analyzer
// =============================================================================

// completion is one request to a back end.
type completion struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32

	// JSON asks the back end for a JSON-only response where supported.
	JSON bool
}

// backend turns a completion into response text. Implementations wrap
// rate-limit errors with ErrRateLimited.
type backend interface {
	complete(ctx context.Context, req completion) (string, error)
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// analyzer implements Provider on top of a backend.
//
// Thread Safety: safe for concurrent use if the backend is.
type analyzer struct {
	name    string
	config  Config
	backend backend
	logger  *logging.Logger
	sleep   sleepFunc
}

func newAnalyzer(name string, config Config, b backend, logger *logging.Logger) *analyzer {
	return &analyzer{
		name:    name,
		config:  config,
		backend: b,
		logger:  logging.OrNop(logger).With("provider", name, "model", config.Model),
		sleep:   contextSleep,
	}
}

// Name implements Provider.
func (a *analyzer) Name() string { return a.name }

// Model implements Provider.
func (a *analyzer) Model() string { return a.config.Model }

// AnalyzeFile implements Provider.
//
// Description:
//
//	Sends the shared prompt. A rate-limited call is retried up to
//	MaxAttempts total with exponential backoff (RetryBackoff, doubled per
//	retry). Any other call error, and any parse error, returns the fallback
//	immediately.
func (a *analyzer) AnalyzeFile(ctx context.Context, path, content, extension string) manifest.Classification {
	ctx, span := otel.Tracer("llm").Start(ctx, "llm.AnalyzeFile",
		trace.WithAttributes(
			attribute.String("provider", a.name),
			attribute.String("model", a.config.Model),
			attribute.String("path", path),
			attribute.Int("content_length", len(content)),
		),
	)
	defer span.End()

	req := completion{
		System:      SystemPrompt,
		Prompt:      BuildPrompt(path, content, extension),
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
		JSON:        true,
	}

	text, err := a.completeWithRetry(ctx, req)
	if err != nil {
		reason := "call_error"
		if errors.Is(err, ErrRateLimited) {
			reason = "rate_limited"
		}
		a.logger.Warn("classification call failed, using fallback", "path", path, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		recordFallback(a.name, reason)
		return Fallback(a.name, a.config.Model)
	}

	result, err := ParseClassification(text)
	if err != nil {
		a.logger.Warn("unparseable classification response, using fallback", "path", path, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse_error")
		recordFallback(a.name, "parse_error")
		return Fallback(a.name, a.config.Model)
	}

	result.Provider = a.name
	result.Model = a.config.Model
	span.SetAttributes(
		attribute.String("category", string(result.Category)),
		attribute.Float64("confidence", result.Confidence),
	)
	return result
}

// TestConnection implements Provider.
func (a *analyzer) TestConnection(ctx context.Context) bool {
	ctx, span := otel.Tracer("llm").Start(ctx, "llm.TestConnection",
		trace.WithAttributes(attribute.String("provider", a.name)),
	)
	defer span.End()

	_, err := a.call(ctx, completion{Prompt: "Test connection", MaxTokens: 10, Temperature: a.config.Temperature})
	if err != nil {
		a.logger.Error("connection test failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "connection failed")
		return false
	}
	a.logger.Info("connection test successful")
	return true
}

// completeWithRetry retries only on ErrRateLimited.
func (a *analyzer) completeWithRetry(ctx context.Context, req completion) (string, error) {
	attempts := a.config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := a.config.RetryBackoff * time.Duration(1<<(attempt-1))
			a.logger.Warn("rate limited, backing off",
				"attempt", attempt+1,
				"max_attempts", attempts,
				"backoff", backoff,
			)
			recordRetry(a.name)
			if err := a.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}

		text, err := a.call(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}
	}
	return "", fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// call performs one backend round trip bounded by config.Timeout.
func (a *analyzer) call(ctx context.Context, req completion) (string, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := a.backend.complete(ctx, req)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		recordCall(a.name, "success", elapsed)
	case errors.Is(err, ErrRateLimited):
		recordCall(a.name, "rate_limited", elapsed)
	default:
		recordCall(a.name, "error", elapsed)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

var _ Provider = (*analyzer)(nil)

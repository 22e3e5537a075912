// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

// GeminiProvider classifies files with the Gemini API.
type GeminiProvider struct {
	*analyzer
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider.
//
// Outputs:
//
//	*GeminiProvider - Ready to use.
//	error - ErrMissingCredentials, or the client could not be created.
func NewGeminiProvider(ctx context.Context, config Config, logger *logging.Logger) (*GeminiProvider, error) {
	config = config.WithDefaults(ProviderGemini)
	secret, err := ResolveAPIKey(config)
	if err != nil {
		return nil, err
	}
	key, err := secret.Reveal()
	if err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	p := &GeminiProvider{client: client}
	p.analyzer = newAnalyzer(ProviderGemini, config, p, logger)
	p.logger.Info("provider initialized", "api_key_present", true)
	return p, nil
}

func (p *GeminiProvider) complete(ctx context.Context, req completion) (string, error) {
	temperature := req.Temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.JSON {
		genConfig.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	result, err := p.client.Models.GenerateContent(ctx, p.config.Model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		if isGeminiRateLimit(err) {
			return "", fmt.Errorf("%w: gemini: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}

func isGeminiRateLimit(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	return false
}

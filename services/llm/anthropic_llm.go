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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

const anthropicAPIVersion = "2023-06-01"

// maxResponseBytes bounds how much of a provider response body is read.
const maxResponseBytes = 4 << 20

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicProvider classifies files with the Anthropic Messages API.
type AnthropicProvider struct {
	*analyzer
	httpClient *http.Client
	apiKey     *Secret
	endpoint   string
}

// NewAnthropicProvider creates an Anthropic provider. The API key stays
// sealed until each request is built.
//
// Outputs:
//
//	*AnthropicProvider - Ready to use.
//	error - ErrMissingCredentials when no API key can be resolved.
func NewAnthropicProvider(config Config, logger *logging.Logger) (*AnthropicProvider, error) {
	config = config.WithDefaults(ProviderAnthropic)
	secret, err := ResolveAPIKey(config)
	if err != nil {
		return nil, err
	}

	p := &AnthropicProvider{
		httpClient: &http.Client{},
		apiKey:     secret,
		endpoint:   config.BaseURL,
	}
	p.analyzer = newAnalyzer(ProviderAnthropic, config, p, logger)
	p.logger.Info("provider initialized", "endpoint", p.endpoint)
	return p, nil
}

func (p *AnthropicProvider) complete(ctx context.Context, req completion) (string, error) {
	temperature := req.Temperature
	body, err := json.Marshal(anthropicRequest{
		Model:       p.config.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: build request: %w", err)
	}
	key, err := p.apiKey.Reveal()
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: anthropic status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	return text.String(), nil
}

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
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

// OllamaProvider classifies files with a local Ollama server. No API key
// is needed and the default pacing is zero.
type OllamaProvider struct {
	*analyzer
	model llms.Model
}

// NewOllamaProvider creates an Ollama provider talking to config.BaseURL.
func NewOllamaProvider(config Config, logger *logging.Logger) (*OllamaProvider, error) {
	config = config.WithDefaults(ProviderOllama)

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	p := &OllamaProvider{model: model}
	p.analyzer = newAnalyzer(ProviderOllama, config, p, logger)
	p.logger.Info("provider initialized", "server", config.BaseURL)
	return p, nil
}

func (p *OllamaProvider) complete(ctx context.Context, req completion) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := p.model.GenerateContent(ctx, messages,
		llms.WithTemperature(float64(req.Temperature)),
		llms.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		if isOllamaRateLimit(err) {
			return "", fmt.Errorf("%w: ollama: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("ollama: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("ollama: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

// isOllamaRateLimit matches on the error text. The client reports HTTP
// failures as an internal status error type, or as the server's error
// message when the body carries one, so the status code is only visible in
// the text.
func isOllamaRateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}

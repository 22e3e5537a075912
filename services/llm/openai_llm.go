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

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

// OpenAIProvider classifies files with the OpenAI chat completions API.
type OpenAIProvider struct {
	*analyzer
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider.
//
// Inputs:
//
//	config - Provider configuration. BaseURL, when set, points the client at
//	an OpenAI-compatible endpoint.
//	logger - Logger; nil discards.
//
// Outputs:
//
//	*OpenAIProvider - Ready to use.
//	error - ErrMissingCredentials when no API key can be resolved.
func NewOpenAIProvider(config Config, logger *logging.Logger) (*OpenAIProvider, error) {
	config = config.WithDefaults(ProviderOpenAI)
	secret, err := ResolveAPIKey(config)
	if err != nil {
		return nil, err
	}
	key, err := secret.Reveal()
	if err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(key)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	p := &OpenAIProvider{client: openai.NewClientWithConfig(clientConfig)}
	p.analyzer = newAnalyzer(ProviderOpenAI, config, p, logger)
	p.logger.Info("provider initialized", "api_key_present", true)
	return p, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, req completion) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	request := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		if isOpenAIRateLimit(err) {
			return "", fmt.Errorf("%w: openai: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func isOpenAIRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// bedrockInvoker is the subset of the Bedrock runtime client in use.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockPayload struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      *float32         `json:"temperature,omitempty"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockResponse struct {
	Content []bedrockContent `json:"content"`
}

// BedrockProvider classifies files with Claude models on AWS Bedrock.
// Credentials come from the standard AWS chain, optionally narrowed to a
// shared-config profile.
type BedrockProvider struct {
	*analyzer
	client bedrockInvoker
}

// NewBedrockProvider loads AWS configuration and creates the provider.
//
// Inputs:
//
//	ctx - Bounds credential discovery.
//	config - Region, Profile and Model are used.
//	logger - Logger; nil discards.
//
// Outputs:
//
//	*BedrockProvider - Ready to use.
//	error - AWS configuration could not be loaded.
func NewBedrockProvider(ctx context.Context, config Config, logger *logging.Logger) (*BedrockProvider, error) {
	config = config.WithDefaults(ProviderBedrock)

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(config.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockProvider(config, bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

func newBedrockProvider(config Config, client bedrockInvoker, logger *logging.Logger) *BedrockProvider {
	p := &BedrockProvider{client: client}
	p.analyzer = newAnalyzer(ProviderBedrock, config, p, logger)
	p.logger.Info("provider initialized", "region", config.Region, "profile", config.Profile)
	return p
}

func (p *BedrockProvider) complete(ctx context.Context, req completion) (string, error) {
	temperature := req.Temperature
	body, err := json.Marshal(bedrockPayload{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.MaxTokens,
		Temperature:      &temperature,
		System:           req.System,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContent{{Type: "text", Text: req.Prompt}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock: encode payload: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.config.Model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		var throttled *types.ThrottlingException
		if errors.As(err, &throttled) {
			return "", fmt.Errorf("%w: bedrock: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("bedrock: %w", err)
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return "", fmt.Errorf("bedrock: decode response: %w", err)
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		text.WriteString(block.Text)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("bedrock: %w", ErrEmptyResponse)
	}
	return text.String(), nil
}

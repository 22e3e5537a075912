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
	"errors"
	"fmt"
	"time"
)

// Provider names understood by the default registry.
const (
	ProviderOpenAI    = "openai"
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// Config configures one provider.
//
// Zero-valued fields are filled by WithDefaults from the provider's
// built-in defaults, so a YAML section only needs the keys it changes.
type Config struct {
	// Model is the model identifier sent to the back end.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// SecretFile is read when APIKeyEnv is unset or empty.
	SecretFile string `yaml:"secret_file"`

	// BaseURL overrides the service endpoint (Anthropic, OpenAI, Ollama).
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// Region and Profile select AWS credentials for Bedrock.
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`

	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`

	// Timeout bounds a single call. Zero means no extra bound.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts is the total number of tries for a rate-limited call.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=0,lte=10"`

	// RetryBackoff is the first backoff; it doubles per retry.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Pacing is the pause the orchestrator takes after each call.
	Pacing time.Duration `yaml:"pacing"`

	// APIKey is resolved at runtime and never read from YAML.
	APIKey *Secret `yaml:"-"`
}

// DefaultConfig returns the built-in configuration for a provider name.
// Unknown names get the shared retry settings and nothing else.
func DefaultConfig(name string) Config {
	base := Config{
		Temperature:  0.1,
		MaxTokens:    1000,
		Timeout:      60 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
	}
	switch name {
	case ProviderOpenAI:
		base.Model = "gpt-4o-mini"
		base.APIKeyEnv = "OPENAI_API_KEY"
		base.SecretFile = "/run/secrets/openai_api_key"
		base.Pacing = 2 * time.Second
	case ProviderBedrock:
		base.Model = "anthropic.claude-3-5-sonnet-20240620-v1:0"
		base.Region = "us-east-1"
		base.Pacing = 10 * time.Second
	case ProviderAnthropic:
		base.Model = "claude-3-5-sonnet-20240620"
		base.APIKeyEnv = "ANTHROPIC_API_KEY"
		base.SecretFile = "/run/secrets/anthropic_api_key"
		base.BaseURL = "https://api.anthropic.com/v1/messages"
		base.Pacing = 5 * time.Second
	case ProviderOllama:
		base.Model = "llama3.1"
		base.BaseURL = "http://localhost:11434"
		base.Timeout = 5 * time.Minute
	case ProviderGemini:
		base.Model = "gemini-2.0-flash"
		base.APIKeyEnv = "GEMINI_API_KEY"
		base.SecretFile = "/run/secrets/gemini_api_key"
		base.Pacing = 4 * time.Second
	}
	return base
}

// WithDefaults returns c with zero fields taken from DefaultConfig(name).
// Temperature is kept as given since zero is a meaningful value; it is only
// defaulted when every numeric field is zero.
func (c Config) WithDefaults(name string) Config {
	d := DefaultConfig(name)
	blank := c.Temperature == 0 && c.MaxTokens == 0 && c.MaxAttempts == 0
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = d.APIKeyEnv
	}
	if c.SecretFile == "" {
		c.SecretFile = d.SecretFile
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Region == "" {
		c.Region = d.Region
	}
	if blank {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.Pacing == 0 {
		c.Pacing = d.Pacing
	}
	return c
}

// Validate checks the fields every provider relies on.
func (c Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be in [0,2], got %v", c.Temperature))
	}
	if c.Pacing < 0 || c.RetryBackoff < 0 || c.Timeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

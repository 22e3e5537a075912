// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the CodeSentinel application configuration.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/CodeSentinel/services/llm"
	"github.com/AleutianAI/CodeSentinel/services/tokens"
)

// CurrentConfigVersion is written into new config files.
const CurrentConfigVersion = "1"

// Meta tracks the config schema.
type Meta struct {
	Version string `yaml:"version"`
}

// LLMConfig selects and tunes the classification provider.
type LLMConfig struct {
	// Provider is the default provider name.
	Provider string `yaml:"provider" validate:"required,oneof=openai bedrock anthropic ollama gemini"`

	// Providers holds per-provider overrides keyed by provider name. Only
	// the keys that differ from the built-in defaults need to be set.
	Providers map[string]llm.Config `yaml:"providers,omitempty" validate:"omitempty,dive"`
}

// AnalysisConfig controls which files are analyzed and how fast.
type AnalysisConfig struct {
	// Extensions to inventory, lowercase with the dot. Empty uses the
	// built-in source extension list.
	Extensions []string `yaml:"extensions,omitempty" validate:"omitempty,dive,startswith=."`

	// MaxFileSize in bytes. Larger files are not inventoried or classified.
	MaxFileSize int64 `yaml:"max_file_size" validate:"gte=0"`

	// SampleSize is the number of files read for the cost preview.
	SampleSize int `yaml:"sample_size" validate:"gte=0"`

	// MaxRetries overrides every provider's max_attempts when set.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`

	// RequestsPerMinute caps provider calls. Zero disables the cap.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"`

	// MaxCostUSD aborts analyze when the preview projects more. Zero
	// disables the gate.
	MaxCostUSD float64 `yaml:"max_cost_usd" validate:"gte=0"`

	// RedactSecrets masks credentials in file contents before they are
	// sent to the provider. The model then sees the masked text, not the
	// file verbatim; false sends content unchanged.
	RedactSecrets bool `yaml:"redact_secrets"`
}

// OutputConfig names the artifacts a run writes. Relative file names are
// resolved against Dir.
type OutputConfig struct {
	Dir         string `yaml:"dir" validate:"required"`
	Manifest    string `yaml:"manifest" validate:"required"`
	TokenReport string `yaml:"token_report"`
	RiskReport  string `yaml:"risk_report"`
}

// ManifestPath returns the manifest location.
func (o OutputConfig) ManifestPath() string { return o.resolve(o.Manifest) }

// TokenReportPath returns the token report location, or "" when disabled.
func (o OutputConfig) TokenReportPath() string { return o.resolve(o.TokenReport) }

// RiskReportPath returns the risk report location, or "" when disabled.
func (o OutputConfig) RiskReportPath() string { return o.resolve(o.RiskReport) }

func (o OutputConfig) resolve(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(expandHome(o.Dir), name)
}

// CacheConfig configures the on-disk classification cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir" validate:"required_if=Enabled true"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// StorageConfig configures the optional artifact upload.
type StorageConfig struct {
	// Bucket is a gs:// prefix. Empty disables uploads.
	Bucket string `yaml:"bucket" validate:"omitempty,startswith=gs://"`

	// CredentialsFile is a service-account JSON file. Empty uses
	// Application Default Credentials.
	CredentialsFile string `yaml:"credentials_file"`
}

// RiskConfig points at the scoring configuration.
type RiskConfig struct {
	// ScoringConfig is a YAML file. Empty uses the built-in tables.
	ScoringConfig string `yaml:"scoring_config"`
}

// Config is the root of codesentinel.yaml.
type Config struct {
	Meta     Meta                      `yaml:"meta"`
	LLM      LLMConfig                 `yaml:"llm"`
	Analysis AnalysisConfig            `yaml:"analysis"`
	Output   OutputConfig              `yaml:"output"`
	Cache    CacheConfig               `yaml:"cache"`
	Storage  StorageConfig             `yaml:"storage"`
	Risk     RiskConfig                `yaml:"risk"`
	Pricing  map[string]tokens.Pricing `yaml:"pricing,omitempty" validate:"omitempty,dive"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Meta: Meta{Version: CurrentConfigVersion},
		LLM: LLMConfig{
			Provider:  llm.ProviderBedrock,
			Providers: map[string]llm.Config{},
		},
		Analysis: AnalysisConfig{
			MaxFileSize:   1 << 20,
			SampleSize:    50,
			RedactSecrets: true,
		},
		Output: OutputConfig{
			Dir:         "codesentinel-output",
			Manifest:    "manifest.json",
			TokenReport: "token_report.json",
			RiskReport:  "risk_report.json",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "~/.codesentinel/cache",
			TTL:     30 * 24 * time.Hour,
		},
	}
}

// ProviderConfig returns the effective configuration for a provider:
// the file's overrides on top of the built-in defaults, with
// analysis.max_retries applied.
func (c Config) ProviderConfig(name string) llm.Config {
	name = strings.ToLower(name)
	pc := c.LLM.Providers[name].WithDefaults(name)
	if c.Analysis.MaxRetries > 0 {
		pc.MaxAttempts = c.Analysis.MaxRetries
	}
	return pc
}

// PricingFor returns the configured price table for a provider, falling
// back to the built-in one.
func (c Config) PricingFor(name string) tokens.Pricing {
	name = strings.ToLower(name)
	p, ok := c.Pricing[name]
	if !ok {
		return tokens.PricingFor(name)
	}
	if p.Model == "" {
		p.Model = tokens.PricingFor(name).Model
	}
	p.Currency = "USD"
	return p
}

// CacheDir returns the expanded cache directory.
func (c Config) CacheDir() string {
	return expandHome(c.Cache.Dir)
}

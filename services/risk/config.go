// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// weightTolerance is how far component weights may drift from 1.0 before a
// warning is logged.
const weightTolerance = 0.01

// =============================================================================
// Configuration Types
// =============================================================================

// ComponentWeights blends the three component scores into the base score.
type ComponentWeights struct {
	VulnerabilitySeverity float64 `yaml:"vulnerability_severity" json:"vulnerability_severity" validate:"gte=0,lte=1"`
	FileCategory          float64 `yaml:"file_category" json:"file_category" validate:"gte=0,lte=1"`
	SecurityRelevance     float64 `yaml:"security_relevance" json:"security_relevance" validate:"gte=0,lte=1"`
}

// UnmarshalYAML requires all three weights. An omitted weight would
// otherwise decode as zero and silently drop that component.
func (w *ComponentWeights) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		VulnerabilitySeverity *float64 `yaml:"vulnerability_severity"`
		FileCategory          *float64 `yaml:"file_category"`
		SecurityRelevance     *float64 `yaml:"security_relevance"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := requireKeys("risk_component_weights", map[string]*float64{
		"vulnerability_severity": raw.VulnerabilitySeverity,
		"file_category":          raw.FileCategory,
		"security_relevance":     raw.SecurityRelevance,
	}); err != nil {
		return err
	}
	*w = ComponentWeights{
		VulnerabilitySeverity: *raw.VulnerabilitySeverity,
		FileCategory:          *raw.FileCategory,
		SecurityRelevance:     *raw.SecurityRelevance,
	}
	return nil
}

// Sum returns the total weight.
func (w ComponentWeights) Sum() float64 {
	return w.VulnerabilitySeverity + w.FileCategory + w.SecurityRelevance
}

// Thresholds are the minimum scores for each tier. Anything below Low is
// INFO.
type Thresholds struct {
	Critical float64 `yaml:"critical" json:"critical" validate:"gte=0,lte=10"`
	High     float64 `yaml:"high" json:"high" validate:"gte=0,ltefield=Critical"`
	Medium   float64 `yaml:"medium" json:"medium" validate:"gte=0,ltefield=High"`
	Low      float64 `yaml:"low" json:"low" validate:"gte=0,ltefield=Medium"`
}

// UnmarshalYAML requires every tier threshold.
func (t *Thresholds) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Critical *float64 `yaml:"critical"`
		High     *float64 `yaml:"high"`
		Medium   *float64 `yaml:"medium"`
		Low      *float64 `yaml:"low"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := requireKeys("priority_thresholds", map[string]*float64{
		"critical": raw.Critical,
		"high":     raw.High,
		"medium":   raw.Medium,
		"low":      raw.Low,
	}); err != nil {
		return err
	}
	*t = Thresholds{Critical: *raw.Critical, High: *raw.High, Medium: *raw.Medium, Low: *raw.Low}
	return nil
}

func requireKeys(section string, fields map[string]*float64) error {
	var missing []string
	for name, v := range fields {
		if v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%s is missing %s", section, strings.Join(missing, ", "))
}

// CountSettings controls the multi-finding amplification.
type CountSettings struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	BaseMultiplier    float64 `yaml:"base_multiplier" json:"base_multiplier" validate:"gte=0"`
	MaxMultiplier     float64 `yaml:"max_multiplier" json:"max_multiplier" validate:"gte=1"`
	CriticalHighBoost float64 `yaml:"critical_high_boost" json:"critical_high_boost" validate:"gte=0"`
}

// ScoringConfig is the complete rule set for the risk engine.
//
// Description:
//
//	Keys are the YAML names used by existing scoring files. The weight and
//	threshold sections are required with every key present; count settings
//	and the two default scores fall back to built-in values when omitted.
//	sla_hours maps a lowercase tier name to hours and must name critical,
//	high, medium and low; a null entry, or a missing info entry, means no
//	SLA.
type ScoringConfig struct {
	SeverityScores   map[string]float64 `yaml:"vulnerability_severity_scores" json:"vulnerability_severity_scores" validate:"required,min=1,dive,keys,required,endkeys,gte=0,lte=10"`
	CategoryScores   map[string]float64 `yaml:"file_category_scores" json:"file_category_scores" validate:"required,min=1,dive,keys,required,endkeys,gte=0,lte=10"`
	RelevanceScores  map[string]float64 `yaml:"security_relevance_scores" json:"security_relevance_scores" validate:"required,min=1,dive,keys,required,endkeys,gte=0,lte=10"`
	ComponentWeights *ComponentWeights  `yaml:"risk_component_weights" json:"risk_component_weights" validate:"required"`
	Thresholds       *Thresholds        `yaml:"priority_thresholds" json:"priority_thresholds" validate:"required"`
	SLAHours         map[string]*int    `yaml:"sla_hours" json:"sla_hours" validate:"dive,omitnil,gte=0"`
	CountSettings    *CountSettings     `yaml:"vulnerability_count_settings" json:"vulnerability_count_settings"`

	DefaultCategoryScore  *float64 `yaml:"default_category_score" json:"default_category_score" validate:"omitnil,gte=0,lte=10"`
	DefaultRelevanceScore *float64 `yaml:"default_relevance_score" json:"default_relevance_score" validate:"omitnil,gte=0,lte=10"`
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// DefaultScoringConfig returns the built-in rule set.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		SeverityScores: map[string]float64{
			"critical": 10, "high": 7, "medium": 4, "low": 1,
		},
		CategoryScores: map[string]float64{
			"authentication": 10, "api": 8, "data-processing": 7,
			"config": 6, "frontend": 4, "build": 3, "test": 2,
			"documentation": 1, "other": 3,
		},
		RelevanceScores: map[string]float64{
			"high": 10, "medium": 5, "low": 2,
		},
		ComponentWeights: &ComponentWeights{
			VulnerabilitySeverity: 0.40,
			FileCategory:          0.35,
			SecurityRelevance:     0.25,
		},
		Thresholds: &Thresholds{Critical: 8, High: 6, Medium: 4, Low: 2},
		SLAHours: map[string]*int{
			"critical": intPtr(4),
			"high":     intPtr(24),
			"medium":   intPtr(72),
			"low":      intPtr(168),
			"info":     nil,
		},
		CountSettings: &CountSettings{
			Enabled:           true,
			BaseMultiplier:    0.1,
			MaxMultiplier:     1.5,
			CriticalHighBoost: 1.0,
		},
		DefaultCategoryScore:  floatPtr(3),
		DefaultRelevanceScore: floatPtr(2),
	}
}

// withDefaults fills the optional sections. Map keys are lowercased so that
// lookups match normalized manifest values.
func (c *ScoringConfig) withDefaults() *ScoringConfig {
	def := DefaultScoringConfig()
	if c.CountSettings == nil {
		c.CountSettings = def.CountSettings
	}
	if c.DefaultCategoryScore == nil {
		c.DefaultCategoryScore = def.DefaultCategoryScore
	}
	if c.DefaultRelevanceScore == nil {
		c.DefaultRelevanceScore = def.DefaultRelevanceScore
	}
	if c.SLAHours == nil {
		c.SLAHours = map[string]*int{}
	}
	c.SeverityScores = lowerKeys(c.SeverityScores)
	c.CategoryScores = lowerKeys(c.CategoryScores)
	c.RelevanceScores = lowerKeys(c.RelevanceScores)
	c.SLAHours = lowerKeys(c.SLAHours)
	return c
}

func lowerKeys[V any](in map[string]V) map[string]V {
	if in == nil {
		return nil
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// slaTiers must appear in sla_hours. INFO may be omitted.
var slaTiers = []manifest.Tier{manifest.TierCritical, manifest.TierHigh, manifest.TierMedium, manifest.TierLow}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural correctness.
//
// Description:
//
//	Required sections must be present, scores lie in [0,10], thresholds
//	must not increase from CRITICAL down to LOW and sla_hours must name
//	every tier above INFO. The weight sum is not
//	checked here; see WeightWarning.
func (c *ScoringConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid scoring config: %w", err)
	}
	var errs []error
	if _, ok := c.SeverityScores[string(manifest.SeverityLow)]; !ok {
		errs = append(errs, errors.New("vulnerability_severity_scores must define low"))
	}
	for _, tier := range slaTiers {
		if _, ok := c.SLAHours[strings.ToLower(string(tier))]; !ok {
			errs = append(errs, fmt.Errorf("sla_hours must define %s", strings.ToLower(string(tier))))
		}
	}
	return errors.Join(errs...)
}

// WeightWarning describes a component weight sum outside 1.0 ± 0.01, or
// returns "" when the weights are balanced.
func (c *ScoringConfig) WeightWarning() string {
	if c.ComponentWeights == nil {
		return ""
	}
	sum := c.ComponentWeights.Sum()
	if math.Abs(sum-1.0) <= weightTolerance {
		return ""
	}
	return fmt.Sprintf("risk component weights sum to %.3f, expected 1.0", sum)
}

// =============================================================================
// Loading
// =============================================================================

// ParseScoringConfig decodes and validates YAML. Unknown keys are rejected
// so that typos in section names surface instead of silently falling back.
func ParseScoringConfig(data []byte) (*ScoringConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg ScoringConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse scoring config: %w", err)
	}
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadScoringConfig reads path and returns a usable configuration.
//
// Description:
//
//	An empty path returns the defaults silently. A missing, unreadable,
//	malformed or partial file also returns the defaults, with one warning
//	logged for the load and the cause returned alongside so that callers
//	can surface it. The returned config is never nil.
//
// Inputs:
//
//	path - YAML file; "" for built-in defaults.
//	logger - Receives the fallback and weight warnings. May be nil.
//
// Outputs:
//
//	*ScoringConfig - The loaded or default configuration.
//	error - Why the defaults were used, or nil.
func LoadScoringConfig(path string, logger *logging.Logger) (*ScoringConfig, error) {
	logger = logging.OrNop(logger)
	if path == "" {
		return DefaultScoringConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("read scoring config: %w", err)
		logger.Warn("using default risk scoring config", "path", path, "error", err)
		return DefaultScoringConfig(), err
	}

	cfg, err := ParseScoringConfig(data)
	if err != nil {
		logger.Warn("using default risk scoring config", "path", path, "error", err)
		return DefaultScoringConfig(), err
	}

	if msg := cfg.WeightWarning(); msg != "" {
		logger.Warn(msg, "path", path)
	}
	logger.Debug("loaded risk scoring config", "path", path)
	return cfg, nil
}

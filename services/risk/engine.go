// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk turns a file's findings and classification into a 0-10 risk
// score, a priority tier and a remediation SLA.
package risk

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// Component score keys.
const (
	ComponentSeverity  = "vulnerability_severity"
	ComponentCategory  = "file_category"
	ComponentRelevance = "security_relevance"
	ComponentBase      = "base_score"
	ComponentFinal     = "final_score"
)

// MaxScore caps every risk score.
const MaxScore = 10.0

// =============================================================================
// Pure Scoring
// =============================================================================

// Score assesses one file under cfg.
//
// Description:
//
//	Files without findings are not assessed and return false. Otherwise:
//	  1. severity component = mean severity weight (unknown -> low weight)
//	  2. category and relevance components from their tables, with the
//	     configured defaults for unknown values
//	  3. base = weighted sum of the three components
//	  4. with more than one finding and counting enabled,
//	     base * min(1 + (n-1)*base_multiplier, max_multiplier), plus the
//	     boost when two or more findings are critical or high
//	  5. capped at 10 and rounded to two decimals
//	  6. tier from the first threshold met scanning CRITICAL down to LOW
//	  7. SLA hours for the tier; INFO has none
//
//	The result depends only on cfg and f.
//
// Inputs:
//
//	cfg - A validated configuration.
//	f - The file. Unclassified files score as category other, relevance low.
//
// Outputs:
//
//	manifest.RiskAssessment - The assessment.
//	bool - False when f has no findings.
func Score(cfg *ScoringConfig, f *manifest.FileRecord) (manifest.RiskAssessment, bool) {
	findings := f.Vulnerabilities
	if len(findings) == 0 {
		return manifest.RiskAssessment{}, false
	}

	category := f.Category()
	relevance := f.SecurityRelevance()

	severityScore := severityComponent(cfg, findings)
	categoryScore := lookup(cfg.CategoryScores, string(category), *cfg.DefaultCategoryScore)
	relevanceScore := lookup(cfg.RelevanceScores, string(relevance), *cfg.DefaultRelevanceScore)

	w := cfg.ComponentWeights
	base := severityScore*w.VulnerabilitySeverity +
		categoryScore*w.FileCategory +
		relevanceScore*w.SecurityRelevance

	final := round2(math.Min(applyCountModifiers(cfg.CountSettings, base, findings), MaxScore))
	tier := priority(cfg.Thresholds, final)

	return manifest.RiskAssessment{
		Path:               f.Path,
		RiskScore:          final,
		Priority:           tier,
		SLAHours:           sla(cfg.SLAHours, tier),
		VulnerabilityCount: len(findings),
		Category:           category,
		SecurityRelevance:  relevance,
		ComponentScores: map[string]float64{
			ComponentSeverity:  round2(severityScore),
			ComponentCategory:  round2(categoryScore),
			ComponentRelevance: round2(relevanceScore),
			ComponentBase:      round2(base),
			ComponentFinal:     final,
		},
		Reasoning: explain(findings, category, relevance),
	}, true
}

func severityComponent(cfg *ScoringConfig, findings []manifest.Finding) float64 {
	low := cfg.SeverityScores[string(manifest.SeverityLow)]
	var total float64
	for _, v := range findings {
		total += lookup(cfg.SeverityScores, strings.ToLower(string(v.Severity)), low)
	}
	return total / float64(len(findings))
}

func applyCountModifiers(settings *CountSettings, base float64, findings []manifest.Finding) float64 {
	n := len(findings)
	if !settings.Enabled || n <= 1 {
		return base
	}
	multiplier := math.Min(1.0+float64(n-1)*settings.BaseMultiplier, settings.MaxMultiplier)

	highImpact := 0
	for _, v := range findings {
		if manifest.NormalizeSeverity(string(v.Severity)).IsHighImpact() {
			highImpact++
		}
	}
	var boost float64
	if highImpact >= 2 {
		boost = settings.CriticalHighBoost
	}
	return base*multiplier + boost
}

func priority(t *Thresholds, score float64) manifest.Tier {
	switch {
	case score >= t.Critical:
		return manifest.TierCritical
	case score >= t.High:
		return manifest.TierHigh
	case score >= t.Medium:
		return manifest.TierMedium
	case score >= t.Low:
		return manifest.TierLow
	default:
		return manifest.TierInfo
	}
}

func sla(table map[string]*int, tier manifest.Tier) *int {
	hours, ok := table[strings.ToLower(string(tier))]
	if !ok || hours == nil {
		return nil
	}
	v := *hours
	return &v
}

// explain builds the reasoning string. Severity counts are listed from most
// to least severe so the text is stable for identical input.
func explain(findings []manifest.Finding, category manifest.Category, relevance manifest.Relevance) string {
	counts := make(map[manifest.Severity]int)
	for _, v := range findings {
		counts[manifest.NormalizeSeverity(string(v.Severity))]++
	}
	var parts []string
	for _, s := range manifest.Severities {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}

	reasons := []string{fmt.Sprintf("%d vulnerabilities found: %s", len(findings), strings.Join(parts, ", "))}
	switch category {
	case manifest.CategoryAuthentication, manifest.CategoryAPI, manifest.CategoryDataProcessing:
		reasons = append(reasons, fmt.Sprintf("High-impact %s file", category))
	case manifest.CategoryConfig:
		reasons = append(reasons, "System configuration file")
	}
	switch relevance {
	case manifest.RelevanceHigh:
		reasons = append(reasons, "LLM assessed as high security relevance")
	case manifest.RelevanceMedium:
		reasons = append(reasons, "LLM assessed as medium security relevance")
	}
	return strings.Join(reasons, "; ")
}

func lookup(table map[string]float64, key string, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// =============================================================================
// Engine
// =============================================================================

// Engine scores files under a swappable configuration.
//
// Thread Safety: safe for concurrent use. Reload and SetConfig replace the
// whole configuration at once; an assessment in flight keeps using the
// configuration it started with.
type Engine struct {
	path   string
	config atomic.Pointer[ScoringConfig]
	logger *logging.Logger
}

// NewEngine loads path (see LoadScoringConfig) and returns an engine. The
// engine is always usable; a load problem is logged and the defaults used.
func NewEngine(path string, logger *logging.Logger) *Engine {
	e := &Engine{path: path, logger: logging.OrNop(logger).With("component", "risk")}
	cfg, _ := LoadScoringConfig(path, e.logger)
	e.config.Store(cfg)
	e.logger.Info("risk scoring engine initialized", "config", displayPath(path))
	return e
}

// NewEngineWithConfig returns an engine using cfg, which must be valid.
func NewEngineWithConfig(cfg *ScoringConfig, logger *logging.Logger) *Engine {
	e := &Engine{logger: logging.OrNop(logger).With("component", "risk")}
	e.config.Store(cfg.withDefaults())
	return e
}

func displayPath(path string) string {
	if path == "" {
		return "(built-in defaults)"
	}
	return path
}

// Config returns the active configuration. Callers must not modify it.
func (e *Engine) Config() *ScoringConfig {
	return e.config.Load()
}

// Path returns the configuration file path, "" for built-in defaults.
func (e *Engine) Path() string {
	return e.path
}

// SetConfig atomically replaces the configuration.
func (e *Engine) SetConfig(cfg *ScoringConfig) {
	e.config.Store(cfg.withDefaults())
}

// Reload re-reads the configuration file and swaps it in.
//
// Description:
//
//	Follows LoadScoringConfig: a broken file installs the defaults and the
//	cause is returned. The swap happens in both cases.
func (e *Engine) Reload() error {
	cfg, err := LoadScoringConfig(e.path, e.logger)
	e.config.Store(cfg)
	reloadsTotal.WithLabelValues(reloadResult(err)).Inc()
	e.logger.Info("risk scoring configuration reloaded", "config", displayPath(e.path), "fallback", err != nil)
	return err
}

func reloadResult(err error) string {
	if err != nil {
		return "fallback"
	}
	return "ok"
}

// Assess scores f under the active configuration.
func (e *Engine) Assess(f *manifest.FileRecord) (manifest.RiskAssessment, bool) {
	a, ok := Score(e.config.Load(), f)
	if ok {
		assessmentsTotal.WithLabelValues(string(a.Priority)).Inc()
		e.logger.Debug("risk assessment", "path", f.Path, "score", a.RiskScore, "priority", a.Priority)
	}
	return a, ok
}

// Priority maps a score to its tier under the active configuration.
func (e *Engine) Priority(score float64) manifest.Tier {
	return priority(e.config.Load().Thresholds, score)
}

// SLA returns the remediation hours for tier, or nil when it has none.
func (e *Engine) SLA(tier manifest.Tier) *int {
	return sla(e.config.Load().SLAHours, tier)
}

// Distribution counts assessed files per tier. Every tier is present.
type Distribution map[manifest.Tier]int

func newDistribution() Distribution {
	d := make(Distribution, len(manifest.Tiers))
	for _, t := range manifest.Tiers {
		d[t] = 0
	}
	return d
}

// Total returns the number of assessed files.
func (d Distribution) Total() int {
	n := 0
	for _, c := range d {
		n += c
	}
	return n
}

// ScoreManifest assesses every file in m.
//
// Description:
//
//	Files with findings get a fresh assessment; files without have any
//	previous result cleared. One configuration snapshot is used for the
//	whole pass so that a concurrent reload cannot mix rule sets.
func (e *Engine) ScoreManifest(m *manifest.Manifest) Distribution {
	cfg := e.config.Load()
	dist := newDistribution()
	for i := range m.Files {
		f := &m.Files[i]
		a, ok := Score(cfg, f)
		if !ok {
			f.ClearAssessment()
			continue
		}
		f.ApplyAssessment(a)
		dist[a.Priority]++
		assessmentsTotal.WithLabelValues(string(a.Priority)).Inc()
	}
	e.logger.Info("risk scoring complete",
		"files", m.Len(),
		"assessed", dist.Total(),
		"critical", dist[manifest.TierCritical],
		"high", dist[manifest.TierHigh],
	)
	return dist
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"math"
	"strings"
	"time"
)

// =============================================================================
// Enumerations
// =============================================================================

// Category is the functional area a file belongs to.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryDataProcessing Category = "data-processing"
	CategoryAPI            Category = "api"
	CategoryFrontend       Category = "frontend"
	CategoryConfig         Category = "config"
	CategoryTest           Category = "test"
	CategoryBuild          Category = "build"
	CategoryDocumentation  Category = "documentation"
	CategoryOther          Category = "other"
)

// Categories lists the closed category set in prompt order.
var Categories = []Category{
	CategoryAuthentication,
	CategoryDataProcessing,
	CategoryAPI,
	CategoryFrontend,
	CategoryConfig,
	CategoryTest,
	CategoryBuild,
	CategoryDocumentation,
	CategoryOther,
}

// IsValid reports whether c is a member of the closed set.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// NormalizeCategory lowercases s and maps anything outside the closed set
// to CategoryOther.
func NormalizeCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.IsValid() {
		return c
	}
	return CategoryOther
}

// Relevance is the security relevance assigned by a classifier.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// NormalizeRelevance maps s onto high, medium or low. Unknown values are low.
func NormalizeRelevance(s string) Relevance {
	switch Relevance(strings.ToLower(strings.TrimSpace(s))) {
	case RelevanceHigh:
		return RelevanceHigh
	case RelevanceMedium:
		return RelevanceMedium
	default:
		return RelevanceLow
	}
}

// Severity is a normalized finding severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// NormalizeSeverity maps scanner vocabulary onto the four severities.
//
// Description:
//
//	"moderate" is accepted as medium and "error"/"warning" follow the common
//	scanner convention. Anything unrecognized, including "info", becomes low.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsHighImpact reports whether the severity counts toward the multi-finding
// boost.
func (s Severity) IsHighImpact() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Tier is a discretized priority derived from a risk score.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierHigh     Tier = "HIGH"
	TierMedium   Tier = "MEDIUM"
	TierLow      Tier = "LOW"
	TierInfo     Tier = "INFO"
)

// Tiers lists tiers from highest to lowest.
var Tiers = []Tier{TierCritical, TierHigh, TierMedium, TierLow, TierInfo}

// Rank orders tiers; higher is more urgent. Unknown tiers rank below INFO.
func (t Tier) Rank() int {
	for i, known := range Tiers {
		if t == known {
			return len(Tiers) - i
		}
	}
	return 0
}

// =============================================================================
// Records
// =============================================================================

// RepositoryDescriptor identifies the analyzed repository snapshot. It is
// created once per run by the inventory and not modified afterwards.
type RepositoryDescriptor struct {
	URL               string    `json:"url"`
	DefaultBranch     string    `json:"default_branch"`
	CommitSHA         string    `json:"commit_sha"`
	AnalysisTimestamp time.Time `json:"analysis_timestamp"`
}

// Finding is one normalized vulnerability report. A Finding belongs to
// exactly one FileRecord.
type Finding struct {
	Tool       string   `json:"tool"`
	RuleID     string   `json:"rule_id"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	LineStart  int      `json:"line_start"`
	LineEnd    int      `json:"line_end"`
	Confidence string   `json:"confidence,omitempty"`
	CWE        string   `json:"cwe,omitempty"`
}

// Classification is the transient result of analyzing one file.
type Classification struct {
	Purpose           string    `json:"purpose"`
	Category          Category  `json:"category"`
	Confidence        float64   `json:"confidence"`
	SecurityRelevance Relevance `json:"security_relevance"`
	Reasoning         string    `json:"reasoning"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model"`

	// Fallback marks the sentinel result returned when analysis failed.
	Fallback bool `json:"fallback,omitempty"`
}

// LLMMetadata is the persisted portion of a Classification that has no
// top-level FileRecord field.
type LLMMetadata struct {
	Category          Category  `json:"category"`
	SecurityRelevance Relevance `json:"security_relevance"`
	Reasoning         string    `json:"reasoning"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model"`
	Fallback          bool      `json:"fallback,omitempty"`
}

// RiskAssessment is derived from a file's findings and classification.
// It is recomputed whenever either changes and never edited directly.
type RiskAssessment struct {
	Path               string             `json:"path"`
	RiskScore          float64            `json:"risk_score"`
	Priority           Tier               `json:"priority"`
	SLAHours           *int               `json:"sla_hours"`
	VulnerabilityCount int                `json:"vulnerability_count"`
	Category           Category           `json:"category"`
	SecurityRelevance  Relevance          `json:"security_relevance"`
	ComponentScores    map[string]float64 `json:"component_scores"`
	Reasoning          string             `json:"reasoning"`
}

// FileRecord is one file in the manifest. Fields after Extension are filled
// in by later pipeline stages; nil means the stage has not run for this file.
type FileRecord struct {
	Path      string `json:"path"`
	BlobSHA   string `json:"blob_sha"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`

	Purpose         *string      `json:"purpose"`
	ConfidenceScore *float64     `json:"confidence_score"`
	Vulnerabilities []Finding    `json:"vulnerabilities"`
	RiskScore       *float64     `json:"risk_score"`
	LLMMetadata     *LLMMetadata `json:"llm_metadata"`
	Priority        *Tier        `json:"priority"`
	SLAHours        *int         `json:"sla_hours"`

	// Assessment holds the full breakdown of the last scoring pass.
	Assessment *RiskAssessment `json:"-"`
}

// NewFileRecord creates an unclassified record with an empty finding list.
func NewFileRecord(path, blobSHA string, size int64, extension string) FileRecord {
	return FileRecord{
		Path:            path,
		BlobSHA:         blobSHA,
		Size:            size,
		Extension:       extension,
		Vulnerabilities: []Finding{},
	}
}

// IsClassified reports whether any classification, fallback included, has
// been applied.
func (f *FileRecord) IsClassified() bool {
	return f.LLMMetadata != nil
}

// IsFallback reports whether the applied classification is the failure
// sentinel.
func (f *FileRecord) IsFallback() bool {
	return f.LLMMetadata != nil && f.LLMMetadata.Fallback
}

// Category returns the classified category, or CategoryOther when the file
// has not been classified.
func (f *FileRecord) Category() Category {
	if f.LLMMetadata == nil {
		return CategoryOther
	}
	return f.LLMMetadata.Category
}

// SecurityRelevance returns the classified relevance, or RelevanceLow when
// the file has not been classified.
func (f *FileRecord) SecurityRelevance() Relevance {
	if f.LLMMetadata == nil {
		return RelevanceLow
	}
	return f.LLMMetadata.SecurityRelevance
}

// ApplyClassification folds c into the record.
//
// Description:
//
//	Confidence is clamped to [0,1], category is forced into the closed set
//	and relevance onto high/medium/low before storing.
func (f *FileRecord) ApplyClassification(c Classification) {
	purpose := c.Purpose
	confidence := ClampConfidence(c.Confidence)
	f.Purpose = &purpose
	f.ConfidenceScore = &confidence
	f.LLMMetadata = &LLMMetadata{
		Category:          NormalizeCategory(string(c.Category)),
		SecurityRelevance: NormalizeRelevance(string(c.SecurityRelevance)),
		Reasoning:         c.Reasoning,
		Provider:          c.Provider,
		Model:             c.Model,
		Fallback:          c.Fallback,
	}
}

// ApplyAssessment stores a and mirrors its score, tier and SLA into the
// persisted fields.
func (f *FileRecord) ApplyAssessment(a RiskAssessment) {
	score := a.RiskScore
	tier := a.Priority
	f.RiskScore = &score
	f.Priority = &tier
	if a.SLAHours != nil {
		sla := *a.SLAHours
		f.SLAHours = &sla
	} else {
		f.SLAHours = nil
	}
	f.Assessment = &a
}

// ClearAssessment removes any previous scoring result.
func (f *FileRecord) ClearAssessment() {
	f.RiskScore = nil
	f.Priority = nil
	f.SLAHours = nil
	f.Assessment = nil
}

// ClampConfidence bounds v to [0,1]. NaN becomes 0.
func ClampConfidence(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// normalize brings decoded values back inside the record invariants:
// confidence in [0,1], risk score in [0,10], category in the closed set,
// relevance and finding severities on their normalized scales.
func (f *FileRecord) normalize() {
	if f.ConfidenceScore != nil {
		v := ClampConfidence(*f.ConfidenceScore)
		f.ConfidenceScore = &v
	}
	if f.RiskScore != nil {
		v := 0.0
		if !math.IsNaN(*f.RiskScore) {
			v = math.Max(0, math.Min(10, *f.RiskScore))
		}
		f.RiskScore = &v
	}
	if f.LLMMetadata != nil {
		f.LLMMetadata.Category = NormalizeCategory(string(f.LLMMetadata.Category))
		f.LLMMetadata.SecurityRelevance = NormalizeRelevance(string(f.LLMMetadata.SecurityRelevance))
	}
	for i := range f.Vulnerabilities {
		f.Vulnerabilities[i].Severity = NormalizeSeverity(string(f.Vulnerabilities[i].Severity))
	}
}

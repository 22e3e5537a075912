// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets masks credentials in file contents before they are sent
// to a remote model.
package secrets

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// Mask replaces every redacted match.
const Mask = "[REDACTED]"

var redactedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "codesentinel",
	Subsystem: "secrets",
	Name:      "redacted_total",
	Help:      "Credential matches masked before leaving the machine, by class",
}, []string{"class"})

// Redactor finds and masks credentials.
//
// Thread Safety: safe for concurrent use after construction.
type Redactor struct {
	classes []Class
}

// New returns a Redactor using the built-in pattern set.
func New() (*Redactor, error) {
	return Parse(defaultPatterns)
}

// Parse builds a Redactor from a YAML pattern set.
func Parse(data []byte) (*Redactor, error) {
	var pf PatternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse secret patterns: %w", err)
	}
	if err := pf.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile secret patterns: %w", err)
	}
	return &Redactor{classes: pf.Classes}, nil
}

// Scan reports every match, ordered by line and, within a line, highest
// priority class first. Block patterns report the line they start on.
func (r *Redactor) Scan(content string) []Finding {
	var findings []Finding
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		for _, c := range r.classes {
			for _, p := range c.Patterns {
				if !p.Block && p.compiled.MatchString(line) {
					findings = append(findings, finding(i+1, c, p))
				}
			}
		}
	}
	for _, c := range r.classes {
		for _, p := range c.Patterns {
			if !p.Block {
				continue
			}
			for _, loc := range p.compiled.FindAllStringIndex(content, -1) {
				line := strings.Count(content[:loc[0]], "\n") + 1
				findings = append(findings, finding(line, c, p))
			}
		}
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Line < findings[j].Line })
	return findings
}

func finding(line int, c Class, p Pattern) Finding {
	return Finding{Line: line, Class: c.Name, PatternID: p.ID, Confidence: p.Confidence}
}

// Redact returns content with every match replaced by Mask, along with the
// findings. Patterns run over the whole content, so a block match masks
// every line it covers. Content without matches is returned unchanged.
func (r *Redactor) Redact(content string) (string, []Finding) {
	findings := r.Scan(content)
	if len(findings) == 0 {
		return content, nil
	}
	for _, c := range r.classes {
		for _, p := range c.Patterns {
			content = p.compiled.ReplaceAllString(content, Mask)
		}
	}
	for _, f := range findings {
		redactedTotal.WithLabelValues(f.Class).Inc()
	}
	return content, findings
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Confidence grades how likely a pattern match is a real credential.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// UnmarshalYAML rejects unknown confidence levels.
func (c *Confidence) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch v := Confidence(s); v {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		*c = v
		return nil
	default:
		return fmt.Errorf("invalid confidence %q", s)
	}
}

// PatternFile is the on-disk shape of a pattern set.
type PatternFile struct {
	Classes []Class `yaml:"classes"`
}

// Class groups patterns for one kind of secret.
type Class struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

// Pattern is one credential regex.
type Pattern struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description"`
	Regex       string     `yaml:"regex"`
	Confidence  Confidence `yaml:"confidence"`

	// Block patterns span lines and are matched against the whole content.
	Block bool `yaml:"block"`

	compiled *regexp.Regexp
}

// compile compiles every regex and orders classes from highest priority.
func (p *PatternFile) compile() error {
	for i := range p.Classes {
		for j := range p.Classes[i].Patterns {
			pat := &p.Classes[i].Patterns[j]
			re, err := regexp.Compile(pat.Regex)
			if err != nil {
				return fmt.Errorf("pattern %s: %w", pat.ID, err)
			}
			pat.compiled = re
		}
	}
	sort.SliceStable(p.Classes, func(i, j int) bool {
		return p.Classes[i].Priority > p.Classes[j].Priority
	})
	return nil
}

// Finding is one credential match. The matched text is never stored.
type Finding struct {
	Line       int        `json:"line"`
	Class      string     `json:"class"`
	PatternID  string     `json:"pattern_id"`
	Confidence Confidence `json:"confidence"`
}

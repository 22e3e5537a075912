// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest defines the repository manifest shared by every stage of
// the analysis pipeline, and its JSON persistence.
//
// A Manifest is created by the inventory, enriched in place by the
// classifier, the vulnerability merge and the risk engine, and finally
// saved. Stages run one after another; the manifest has a single owner at
// any point in time.
//
// Thread Safety: Manifest is not safe for concurrent mutation.
package manifest

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicatePath is returned when a path is added twice.
	ErrDuplicatePath = errors.New("duplicate file path")

	// ErrNotFound is returned when a path is not in the manifest.
	ErrNotFound = errors.New("file not found in manifest")
)

// Manifest is the full record of one repository analysis run.
type Manifest struct {
	Repository RepositoryDescriptor `json:"repository"`
	Files      []FileRecord         `json:"files"`

	index map[string]int
}

// New creates an empty manifest for desc.
func New(desc RepositoryDescriptor) *Manifest {
	return &Manifest{
		Repository: desc,
		Files:      []FileRecord{},
		index:      make(map[string]int),
	}
}

// Add appends rec, preserving insertion order.
//
// Outputs:
//
//	error - ErrDuplicatePath if a record with the same path exists.
func (m *Manifest) Add(rec FileRecord) error {
	m.ensureIndex()
	if _, ok := m.index[rec.Path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, rec.Path)
	}
	if rec.Vulnerabilities == nil {
		rec.Vulnerabilities = []Finding{}
	}
	m.index[rec.Path] = len(m.Files)
	m.Files = append(m.Files, rec)
	return nil
}

// Lookup returns a pointer to the record for path. The pointer stays valid
// until the next Add.
func (m *Manifest) Lookup(path string) (*FileRecord, bool) {
	m.ensureIndex()
	i, ok := m.index[path]
	if !ok {
		return nil, false
	}
	return &m.Files[i], true
}

// Get is Lookup returning ErrNotFound instead of a boolean.
func (m *Manifest) Get(path string) (*FileRecord, error) {
	rec, ok := m.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return rec, nil
}

// Len returns the number of files.
func (m *Manifest) Len() int {
	return len(m.Files)
}

// Paths returns every path in manifest order.
func (m *Manifest) Paths() []string {
	out := make([]string, len(m.Files))
	for i := range m.Files {
		out[i] = m.Files[i].Path
	}
	return out
}

// Stats summarizes pipeline progress across the manifest.
type Stats struct {
	Files        int
	Classified   int
	Fallbacks    int
	WithFindings int
	Findings     int
	Assessed     int
	Extensions   map[string]int
	Tiers        map[Tier]int
}

// Stats computes progress counters. Extensions without a dot are counted
// under "(none)".
func (m *Manifest) Stats() Stats {
	s := Stats{
		Files:      len(m.Files),
		Extensions: make(map[string]int),
		Tiers:      make(map[Tier]int),
	}
	for i := range m.Files {
		f := &m.Files[i]
		ext := f.Extension
		if ext == "" {
			ext = "(none)"
		}
		s.Extensions[ext]++
		if f.IsClassified() {
			s.Classified++
		}
		if f.IsFallback() {
			s.Fallbacks++
		}
		if len(f.Vulnerabilities) > 0 {
			s.WithFindings++
			s.Findings += len(f.Vulnerabilities)
		}
		if f.Priority != nil {
			s.Assessed++
			s.Tiers[*f.Priority]++
		}
	}
	return s
}

// ExtensionCount is one row of an extension breakdown.
type ExtensionCount struct {
	Extension string
	Count     int
}

// TopExtensions returns extension counts sorted by count descending, then
// extension ascending.
func (s Stats) TopExtensions() []ExtensionCount {
	out := make([]ExtensionCount, 0, len(s.Extensions))
	for ext, n := range s.Extensions {
		out = append(out, ExtensionCount{Extension: ext, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Extension < out[j].Extension
	})
	return out
}

// reindex rebuilds the path index after decoding and enforces the manifest
// invariants on loaded data.
func (m *Manifest) reindex() error {
	m.index = make(map[string]int, len(m.Files))
	if m.Files == nil {
		m.Files = []FileRecord{}
	}
	for i := range m.Files {
		f := &m.Files[i]
		if _, ok := m.index[f.Path]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, f.Path)
		}
		m.index[f.Path] = i
		if f.Vulnerabilities == nil {
			f.Vulnerabilities = []Finding{}
		}
		f.normalize()
	}
	return nil
}

func (m *Manifest) ensureIndex() {
	if m.index != nil && len(m.index) == len(m.Files) {
		return
	}
	m.index = make(map[string]int, len(m.Files))
	for i := range m.Files {
		m.index[m.Files[i].Path] = i
	}
}

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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxManifestBytes bounds how much Load will read.
const MaxManifestBytes = 512 << 20

// Save writes m as indented JSON to path.
//
// Description:
//
//	Writes to a temporary file in the same directory and renames it over
//	path, so a failed save never leaves a truncated manifest behind.
//
// Outputs:
//
//	error - Any write failure. Persistence errors are fatal to the caller.
func Save(m *Manifest, path string) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Marshal encodes m as the persisted JSON document.
func Marshal(m *Manifest) ([]byte, error) {
	for i := range m.Files {
		if m.Files[i].Vulnerabilities == nil {
			m.Files[i].Vulnerabilities = []Finding{}
		}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads a manifest written by Save.
//
// Outputs:
//
//	*Manifest - The decoded manifest with its path index rebuilt.
//	error - Read, size or decode failure, or ErrDuplicatePath.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a manifest from r.
func Decode(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxManifestBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(data) > MaxManifestBytes {
		return nil, fmt.Errorf("manifest exceeds %d bytes", MaxManifestBytes)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.reindex(); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteFileAtomic writes data to path through a temp file and rename.
// Parent directories are created as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

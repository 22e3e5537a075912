// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inventory produces the initial manifest for a repository and
// serves file content to later stages.
//
// The pipeline depends only on the Source and ContentFetcher interfaces.
// Local implements both for a checked-out working tree.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// ErrBlobNotFound is returned when content is requested for an unknown blob.
var ErrBlobNotFound = errors.New("blob not found")

// ContentFetcher returns the text of a file by its blob identifier.
type ContentFetcher interface {
	Content(ctx context.Context, blobSHA string) (string, error)
}

// Source describes a repository and lists its files.
type Source interface {
	ContentFetcher

	// Describe returns the descriptor for the repository at location.
	Describe(ctx context.Context, location string) (manifest.RepositoryDescriptor, error)

	// ListFiles returns skeleton records (path, blob, size, extension) in a
	// stable order.
	ListFiles(ctx context.Context, desc manifest.RepositoryDescriptor) ([]manifest.FileRecord, error)
}

// Build runs Describe and ListFiles and assembles a manifest.
//
// Outputs:
//
//	*manifest.Manifest - Files in the order returned by ListFiles.
//	error - Any Source error, or ErrDuplicatePath from a misbehaving Source.
func Build(ctx context.Context, src Source, location string) (*manifest.Manifest, error) {
	desc, err := src.Describe(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("describe repository: %w", err)
	}
	files, err := src.ListFiles(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	m := manifest.New(desc)
	for _, f := range files {
		if err := m.Add(f); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MapFetcher serves content from memory. Used by tests and by callers that
// already hold file contents.
type MapFetcher map[string]string

// Content implements ContentFetcher.
func (m MapFetcher) Content(_ context.Context, blobSHA string) (string, error) {
	content, ok := m[blobSHA]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBlobNotFound, blobSHA)
	}
	return content, nil
}

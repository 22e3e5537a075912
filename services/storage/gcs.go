// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

// ErrInvalidURI is returned for destinations that are not gs://bucket/...
var ErrInvalidURI = errors.New("invalid gcs uri")

// Location is a parsed gs:// destination.
type Location struct {
	Bucket string
	Object string
}

// String formats l as a gs:// URI.
func (l Location) String() string {
	return "gs://" + l.Bucket + "/" + l.Object
}

// ParseGCSURI splits gs://bucket/prefix. The object part may be empty or
// end in "/", in which case Upload appends the local file name.
func ParseGCSURI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q must start with gs://", ErrInvalidURI, uri)
	}
	bucket, object, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	return Location{Bucket: bucket, Object: object}, nil
}

// Uploader publishes run artifacts to a bucket.
type Uploader struct {
	client *storage.Client
	logger *logging.Logger
}

// NewUploader creates a GCS client.
//
// Description:
//
//	With a credentials file the service account key is used; the file must
//	exist. Without one, Application Default Credentials apply. Extra
//	options are passed through to the client.
func NewUploader(ctx context.Context, credentialsFile string, logger *logging.Logger, opts ...option.ClientOption) (*Uploader, error) {
	if credentialsFile != "" {
		info, err := os.Stat(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", credentialsFile, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("service account key path is a directory: %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &Uploader{client: client, logger: logging.OrNop(logger).With("component", "gcs")}, nil
}

// Close releases the client.
func (u *Uploader) Close() error {
	return u.client.Close()
}

// Upload copies the file at localPath to dest and returns the final URI.
func (u *Uploader) Upload(ctx context.Context, localPath, dest string) (string, error) {
	loc, err := ParseGCSURI(dest)
	if err != nil {
		return "", err
	}
	if loc.Object == "" || strings.HasSuffix(loc.Object, "/") {
		loc.Object = path.Join(loc.Object, filepath.Base(localPath))
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer f.Close()

	w := u.client.Bucket(loc.Bucket).Object(loc.Object).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to copy local file %s to GCS object %s: %w", localPath, loc, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", loc, err)
	}

	u.logger.Info("uploaded artifact", "local", localPath, "uri", loc.String())
	return loc.String(), nil
}

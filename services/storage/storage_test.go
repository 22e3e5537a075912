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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// ============================================================================
// Badger Tests
// ============================================================================

type cached struct {
	Purpose string  `json:"purpose"`
	Score   float64 `json:"score"`
}

func TestDB_JSONRoundTrip(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.PutJSON(ctx, "cls/abc", cached{Purpose: "auth", Score: 0.9}, 0))

	var got cached
	require.NoError(t, db.GetJSON(ctx, "cls/abc", &got))
	assert.Equal(t, cached{Purpose: "auth", Score: 0.9}, got)

	assert.ErrorIs(t, db.GetJSON(ctx, "cls/missing", &got), ErrKeyNotFound)

	n, err := db.CountPrefix(ctx, "cls/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.Delete(ctx, "cls/abc"))
	assert.ErrorIs(t, db.GetJSON(ctx, "cls/abc", &got), ErrKeyNotFound)
}

func TestDB_GetJSONDecodeError(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.PutJSON(ctx, "cls/bad", "not an object", 0))
	var got cached
	err = db.GetJSON(ctx, "cls/bad", &got)
	assert.ErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestDB_DropPrefix(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.PutJSON(ctx, "a/1", 1, 0))
	require.NoError(t, db.PutJSON(ctx, "a/2", 2, 0))
	require.NoError(t, db.PutJSON(ctx, "b/1", 3, 0))
	require.NoError(t, db.DropPrefix("a/"))

	n, err := db.CountPrefix(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDB_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	ctx := context.Background()

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, dir, db.Path())
	require.NoError(t, db.PutJSON(ctx, "k", "v", 0))
	require.NoError(t, db.Close())

	db, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer db.Close()
	var got string
	require.NoError(t, db.GetJSON(ctx, "k", &got))
	assert.Equal(t, "v", got)
}

func TestDB_Errors(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, db.PutJSON(ctx, "k", 1, 0), context.Canceled)
	var v int
	assert.ErrorIs(t, db.GetJSON(ctx, "k", &v), context.Canceled)
}

// ============================================================================
// GCS Tests (paths that need no network)
// ============================================================================

func TestParseGCSURI(t *testing.T) {
	loc, err := ParseGCSURI("gs://bucket/runs/2025/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "bucket", Object: "runs/2025/manifest.json"}, loc)
	assert.Equal(t, "gs://bucket/runs/2025/manifest.json", loc.String())

	loc, err = ParseGCSURI("gs://bucket")
	require.NoError(t, err)
	assert.Empty(t, loc.Object)

	for _, bad := range []string{"s3://bucket/x", "gs://", "bucket/x"} {
		_, err := ParseGCSURI(bad)
		assert.ErrorIs(t, err, ErrInvalidURI, bad)
	}
}

func TestNewUploader_CredentialErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewUploader(ctx, "/nonexistent/key.json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account key not found")

	_, err = NewUploader(ctx, t.TempDir(), nil)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(bad, []byte("not valid json"), 0o600))
	_, err = NewUploader(ctx, bad, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create GCS storage client")
}

func TestUploader_UploadLocalErrors(t *testing.T) {
	ctx := context.Background()
	u, err := NewUploader(ctx, "", nil, option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1/storage/v1/"))
	require.NoError(t, err)
	defer u.Close()

	_, err = u.Upload(ctx, "/nonexistent/file.json", "gs://bucket/x/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open the local file")

	_, err = u.Upload(ctx, "/nonexistent/file.json", "not-a-uri")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

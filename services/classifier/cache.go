// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/storage"
)

const cachePrefix = "classification/"

// Cache stores classifications by content, so an interrupted or repeated
// run does not pay for the same blob twice with the same model.
//
// Thread Safety: safe for concurrent use.
type Cache struct {
	db  *storage.DB
	ttl time.Duration
}

// NewCache wraps db. A zero ttl keeps entries forever.
func NewCache(db *storage.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl}
}

func cacheKey(blobSHA, provider, model string) string {
	return cachePrefix + provider + "/" + model + "/" + blobSHA
}

// Get returns the cached classification for a blob, if any. Lookup errors
// are treated as misses, and an entry that no longer decodes is removed so
// the next run replaces it.
func (c *Cache) Get(ctx context.Context, blobSHA, provider, model string) (manifest.Classification, bool) {
	key := cacheKey(blobSHA, provider, model)
	var out manifest.Classification
	if err := c.db.GetJSON(ctx, key, &out); err != nil {
		if errors.Is(err, storage.ErrDecode) {
			_ = c.db.Delete(ctx, key)
		}
		return manifest.Classification{}, false
	}
	return out, true
}

// Put stores a classification. Fallback results are not cached so that a
// later run retries them.
func (c *Cache) Put(ctx context.Context, blobSHA string, result manifest.Classification) error {
	if result.Fallback {
		return nil
	}
	if blobSHA == "" {
		return errors.New("cannot cache classification without blob sha")
	}
	return c.db.PutJSON(ctx, cacheKey(blobSHA, result.Provider, result.Model), result, c.ttl)
}

// Len counts cached classifications.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.db.CountPrefix(ctx, cachePrefix)
}

// Clear removes every cached classification.
func (c *Cache) Clear() error {
	return c.db.DropPrefix(cachePrefix)
}

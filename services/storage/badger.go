// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage holds the persistence backends shared by the pipeline:
// an embedded BadgerDB key-value store for resumable caches and an
// uploader for publishing artifacts to Google Cloud Storage.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

// ErrKeyNotFound is returned by GetJSON for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// ErrDecode is returned by GetJSON when a stored value does not decode.
var ErrDecode = errors.New("decode")

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's own log lines. Nil silences them.
	Logger *logging.Logger

	// GCDiscardRatio is the value-log garbage threshold for the GC pass run
	// at Close. Zero disables it.
	GCDiscardRatio float64
}

// DefaultConfig returns the configuration for an on-disk cache at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts the project logger to BadgerDB's Logger interface.
// BadgerDB's info chatter is demoted to debug.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB wraps a BadgerDB instance with JSON helpers.
//
// Thread Safety: safe for concurrent use.
type DB struct {
	db      *badger.DB
	path    string
	discard float64
}

// Open opens the database described by cfg.
//
// Description:
//
//	Creates the directory for persistent databases. Path is required
//	unless InMemory is set.
//
// Outputs:
//
//	*DB - Call Close when done.
//	error - Invalid path or open failure, such as a lock held by another
//	        process.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	d := &DB{db: db, path: cfg.Path}
	if !cfg.InMemory {
		d.discard = cfg.GCDiscardRatio
	}
	return d, nil
}

// OpenInMemory opens an in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// Path returns the database directory, "" when in memory.
func (d *DB) Path() string {
	return d.path
}

// Close runs one best-effort value-log GC pass when configured and closes
// the database.
func (d *DB) Close() error {
	if d.discard > 0 {
		// ErrNoRewrite means there was nothing to collect. Other GC
		// failures do not affect the stored data.
		_ = d.db.RunValueLogGC(d.discard)
	}
	return d.db.Close()
}

// PutJSON stores v under key. A positive ttl expires the entry.
func (d *DB) PutJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return d.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// GetJSON decodes the value under key into v. A missing key returns
// ErrKeyNotFound.
func (d *DB) GetJSON(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, v); err != nil {
				return fmt.Errorf("%w %s: %w", ErrDecode, key, err)
			}
			return nil
		})
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// CountPrefix returns the number of keys starting with prefix.
func (d *DB) CountPrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// DropPrefix removes every key starting with prefix.
func (d *DB) DropPrefix(prefix string) error {
	return d.db.DropPrefix([]byte(prefix))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// DefaultExtensions are analyzed when LocalConfig.Extensions is empty.
var DefaultExtensions = []string{".py", ".js", ".java", ".go", ".rb", ".php", ".ts", ".jsx", ".tsx"}

// DefaultMaxFileSize is the inventory size ceiling in bytes.
const DefaultMaxFileSize = 1 << 20

// LocalConfig configures a Local inventory.
type LocalConfig struct {
	// Extensions to include, lowercase with the dot. Empty uses
	// DefaultExtensions; a single "*" includes everything.
	Extensions []string

	// MaxFileSize excludes larger files. Zero uses DefaultMaxFileSize.
	MaxFileSize int64

	// SkipDirs are directory names never descended into.
	SkipDirs []string

	// Now stamps the descriptor. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Local inventories a checked-out working tree.
//
// Description:
//
//	Describe reads branch, commit and origin URL straight from the .git
//	directory. ListFiles walks the tree in lexical order and computes git
//	blob SHAs, which Content later resolves back to paths.
//
// Thread Safety: safe for concurrent use.
type Local struct {
	root   string
	config LocalConfig
	logger *logging.Logger

	mu    sync.RWMutex
	blobs map[string]string
}

// NewLocal creates a Local inventory rooted at root.
func NewLocal(root string, config LocalConfig, logger *logging.Logger) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultExtensions
	}
	if config.MaxFileSize == 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if config.SkipDirs == nil {
		config.SkipDirs = []string{".git", "node_modules"}
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Local{
		root:   abs,
		config: config,
		logger: logging.OrNop(logger).With("component", "inventory"),
		blobs:  make(map[string]string),
	}, nil
}

// Describe implements Source. location is ignored when empty; otherwise it
// overrides the URL recorded in the descriptor.
func (l *Local) Describe(_ context.Context, location string) (manifest.RepositoryDescriptor, error) {
	desc := manifest.RepositoryDescriptor{
		URL:               location,
		AnalysisTimestamp: l.config.Now(),
	}

	gitDir, err := resolveGitDir(l.root)
	if err != nil {
		l.logger.Warn("not a git checkout, descriptor has no commit", "root", l.root)
		if desc.URL == "" {
			desc.URL = "file://" + filepath.ToSlash(l.root)
		}
		return desc, nil
	}

	branch, commit, err := readHead(gitDir)
	if err != nil {
		return desc, fmt.Errorf("read HEAD: %w", err)
	}
	desc.CommitSHA = commit
	desc.DefaultBranch = branch
	if branch == "" {
		desc.DefaultBranch = remoteDefaultBranch(gitDir)
	}
	if desc.URL == "" {
		desc.URL = originURL(gitDir)
	}
	if desc.URL == "" {
		desc.URL = "file://" + filepath.ToSlash(l.root)
	}
	return desc, nil
}

// remoteDefaultBranch reads refs/remotes/origin/HEAD for detached checkouts.
func remoteDefaultBranch(gitDir string) string {
	content, err := os.ReadFile(filepath.Join(gitDir, "refs", "remotes", "origin", "HEAD"))
	if err != nil {
		return ""
	}
	ref := strings.TrimPrefix(strings.TrimSpace(string(content)), "ref: ")
	return strings.TrimPrefix(ref, "refs/remotes/origin/")
}

// ListFiles implements Source.
func (l *Local) ListFiles(ctx context.Context, _ manifest.RepositoryDescriptor) ([]manifest.FileRecord, error) {
	var files []manifest.FileRecord
	skipped := 0

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != l.root && l.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !l.supported(ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > l.config.MaxFileSize {
			skipped++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("unreadable file excluded from inventory", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		sha := BlobSHA(data)

		l.mu.Lock()
		l.blobs[sha] = path
		l.mu.Unlock()

		files = append(files, manifest.NewFileRecord(filepath.ToSlash(rel), sha, info.Size(), ext))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", l.root, err)
	}

	l.logger.Info("inventory complete", "files", len(files), "oversized", skipped)
	return files, nil
}

// Content implements ContentFetcher for blobs seen by ListFiles.
func (l *Local) Content(_ context.Context, blobSHA string) (string, error) {
	l.mu.RLock()
	path, ok := l.blobs[blobSHA]
	l.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBlobNotFound, blobSHA)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Index records blob → path for every file in m without re-walking. Used
// when a saved manifest is reloaded against the same checkout.
func (l *Local) Index(m *manifest.Manifest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range m.Files {
		f := &m.Files[i]
		l.blobs[f.BlobSHA] = filepath.Join(l.root, filepath.FromSlash(f.Path))
	}
}

func (l *Local) skipDir(name string) bool {
	for _, skip := range l.config.SkipDirs {
		if name == skip {
			return true
		}
	}
	return false
}

func (l *Local) supported(ext string) bool {
	for _, e := range l.config.Extensions {
		if e == "*" || strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

var _ Source = (*Local)(nil)

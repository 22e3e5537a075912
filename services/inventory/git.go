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
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobSHA computes the git blob identifier of content.
func BlobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// resolveGitDir returns the git directory for a working tree root, following
// the "gitdir: <path>" indirection used by worktrees and submodules.
func resolveGitDir(root string) (string, error) {
	gitPath := filepath.Join(root, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "gitdir: ") {
		return "", fmt.Errorf("unrecognized .git file in %s", root)
	}
	dir := strings.TrimPrefix(line, "gitdir: ")
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir, nil
}

// readHead returns the checked-out branch (empty when detached) and the
// commit HEAD points at.
func readHead(gitDir string) (branch, commit string, err error) {
	content, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", "", err
	}
	head := strings.TrimSpace(string(content))
	if !strings.HasPrefix(head, "ref: ") {
		return "", head, nil
	}
	ref := strings.TrimPrefix(head, "ref: ")
	branch = strings.TrimPrefix(ref, "refs/heads/")
	commit, err = resolveRef(gitDir, ref)
	if err != nil {
		// An unborn branch has no commit yet.
		return branch, "", nil
	}
	return branch, commit, nil
}

// resolveRef looks a ref up as a loose file, then in packed-refs. Linked
// worktrees keep shared refs in the common directory.
func resolveRef(gitDir, ref string) (string, error) {
	dirs := []string{gitDir}
	if common, err := os.ReadFile(filepath.Join(gitDir, "commondir")); err == nil {
		c := strings.TrimSpace(string(common))
		if !filepath.IsAbs(c) {
			c = filepath.Join(gitDir, c)
		}
		dirs = append(dirs, c)
	}

	for _, dir := range dirs {
		if content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(ref))); err == nil {
			return strings.TrimSpace(string(content)), nil
		}
		if sha, ok := lookupPackedRef(filepath.Join(dir, "packed-refs"), ref); ok {
			return sha, nil
		}
	}
	return "", fmt.Errorf("ref %s not found", ref)
}

func lookupPackedRef(path, ref string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		sha, name, ok := strings.Cut(line, " ")
		if ok && name == ref {
			return sha, true
		}
	}
	return "", false
}

// originURL reads remote "origin" from the git config. Returns "" when
// there is no origin.
func originURL(gitDir string) string {
	f, err := os.Open(filepath.Join(gitDir, "config"))
	if err != nil {
		return ""
	}
	defer f.Close()

	inOrigin := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inOrigin = line == `[remote "origin"]`
			continue
		}
		if !inOrigin {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(key) == "url" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

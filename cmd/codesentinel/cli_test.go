// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
	"github.com/AleutianAI/CodeSentinel/services/llm"
	"github.com/AleutianAI/CodeSentinel/services/pipeline"
)

// =============================================================================
// Harness
// =============================================================================

// stubProvider labels every file as authentication code.
type stubProvider struct {
	reachable bool
	calls     int
}

func (p *stubProvider) AnalyzeFile(_ context.Context, path, _, _ string) manifest.Classification {
	p.calls++
	return manifest.Classification{
		Purpose:           "handles " + path,
		Category:          manifest.CategoryAuthentication,
		Confidence:        0.9,
		SecurityRelevance: manifest.RelevanceHigh,
		Provider:          p.Name(),
		Model:             p.Model(),
	}
}

func (p *stubProvider) TestConnection(context.Context) bool { return p.reachable }
func (p *stubProvider) Name() string                        { return "stub" }
func (p *stubProvider) Model() string                       { return "stub-1" }

func useStubProvider(t *testing.T, p *stubProvider) {
	t.Helper()
	orig := newProviderFunc
	newProviderFunc = func(context.Context, string, llm.Config, *logging.Logger) (llm.Provider, error) {
		return p, nil
	}
	t.Cleanup(func() { newProviderFunc = orig })
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI with machine output and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--output", "machine", "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// workspace creates a checkout, scanner reports and a config file.
type workspace struct {
	repo, out, config, semgrep, bandit string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	w := workspace{
		repo:    filepath.Join(dir, "repo"),
		out:     filepath.Join(dir, "out"),
		config:  filepath.Join(dir, "codesentinel.yaml"),
		semgrep: filepath.Join(dir, "semgrep.json"),
		bandit:  filepath.Join(dir, "bandit.json"),
	}
	files := map[string]string{
		"repo/app/login.py":         "def login(user, pw):\n    return True\n",
		"repo/app/util.go":          "package app\n",
		"repo/README.md":            "# app\n",
		"repo/.git/HEAD":            "ref: refs/heads/main\n",
		"repo/.git/refs/heads/main": "2222222222222222222222222222222222222222\n",
		"semgrep.json":              `{"results":[{"check_id":"sqli","path":"app/login.py","start":{"line":1},"end":{"line":2},"extra":{"message":"sql","severity":"ERROR"}}]}`,
		"bandit.json":               `{"results":[{"filename":"app/login.py","test_id":"B105","issue_severity":"HIGH","issue_confidence":"HIGH","issue_text":"hardcoded","line_number":2}]}`,
		"codesentinel.yaml": fmt.Sprintf(`
llm:
  provider: openai
  providers:
    openai:
      pacing: 1ms
analysis:
  extensions: [".py", ".go", ".md"]
  sample_size: 2
output:
  dir: %s
cache:
  enabled: false
`, filepath.Join(dir, "out")),
	}
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return w
}

// =============================================================================
// Tests
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("bad flag"), ExitSetup},
		{fmt.Errorf("save: %w", pipeline.ErrPersistence), ExitPersistence},
		{fmt.Errorf("estimate: %w", pipeline.ErrCostRejected), ExitAborted},
		{fmt.Errorf("classify: %w", context.Canceled), ExitAborted},
		{ErrConnectionFailed, ExitSetup},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestAnalyze_EndToEnd(t *testing.T) {
	w := newWorkspace(t)
	stub := &stubProvider{}
	useStubProvider(t, stub)

	out, err := execute(t, "--config", w.config, "analyze", w.repo,
		"--semgrep", w.semgrep, "--bandit", w.bandit, "--no-upload")
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)
	assert.Contains(t, out, "CRITICAL\t1")

	m, err := manifest.Load(filepath.Join(w.out, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, "2222222222222222222222222222222222222222", m.Repository.CommitSHA)
	login, err := m.Get("app/login.py")
	require.NoError(t, err)
	assert.Len(t, login.Vulnerabilities, 2)
	require.NotNil(t, login.Priority)
	assert.Equal(t, manifest.TierCritical, *login.Priority)

	for _, name := range []string{"token_report.json", "risk_report.json"} {
		_, err := os.Stat(filepath.Join(w.out, name))
		assert.NoError(t, err, name)
	}
}

func TestAnalyze_CostGate(t *testing.T) {
	w := newWorkspace(t)
	stub := &stubProvider{}
	useStubProvider(t, stub)

	_, err := execute(t, "--config", w.config, "analyze", w.repo, "--max-cost", "0.0000001")
	require.Error(t, err)
	assert.Equal(t, ExitAborted, exitCode(err))
	assert.Zero(t, stub.calls)
}

func TestStages_Individually(t *testing.T) {
	w := newWorkspace(t)
	stub := &stubProvider{}
	useStubProvider(t, stub)
	manifestPath := filepath.Join(w.out, "manifest.json")

	_, err := execute(t, "--config", w.config, "inventory", w.repo)
	require.NoError(t, err)

	out, err := execute(t, "--config", w.config, "show", manifestPath, "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "files\t3")
	assert.Contains(t, out, "README.md")

	_, err = execute(t, "--config", w.config, "classify", manifestPath, "--repo", w.repo)
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)

	// Resume leaves every classified file alone.
	_, err = execute(t, "--config", w.config, "classify", manifestPath, "--repo", w.repo, "--resume")
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)

	out, err = execute(t, "--config", w.config, "merge", manifestPath, "--bandit", w.bandit)
	require.NoError(t, err)
	assert.Contains(t, out, "bandit\t1\t1\t0")

	reportPath := filepath.Join(w.out, "risk.json")
	out, err = execute(t, "--config", w.config, "score", manifestPath, "--report", reportPath, "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "app/login.py")
	_, err = os.Stat(reportPath)
	assert.NoError(t, err)

	out, err = execute(t, "--config", w.config, "estimate", manifestPath, "--project")
	require.NoError(t, err)
	assert.Contains(t, out, "files\t3")

	out, err = execute(t, "--config", w.config, "estimate", manifestPath, "--repo", w.repo, "--sample", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "sampled_files\t1 of 3")
}

func TestClassify_CacheAndClear(t *testing.T) {
	w := newWorkspace(t)
	stub := &stubProvider{}
	useStubProvider(t, stub)

	body, err := os.ReadFile(w.config)
	require.NoError(t, err)
	cacheDir := filepath.Join(t.TempDir(), "cache")
	body = []byte(strings.Replace(string(body), "enabled: false", "enabled: true\n  dir: "+cacheDir, 1))
	require.NoError(t, os.WriteFile(w.config, body, 0o644))
	manifestPath := filepath.Join(w.out, "manifest.json")

	_, err = execute(t, "--config", w.config, "inventory", w.repo)
	require.NoError(t, err)
	_, err = execute(t, "--config", w.config, "classify", manifestPath, "--repo", w.repo)
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)

	// Every blob is cached, so a repeat run makes no provider calls.
	_, err = execute(t, "--config", w.config, "classify", manifestPath, "--repo", w.repo)
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)

	out, err := execute(t, "--config", w.config, "classify", manifestPath, "--repo", w.repo, "--clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 3 cached classifications")
	assert.Equal(t, 6, stub.calls)
}

func TestMerge_RequiresReports(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(t, "--config", w.config, "merge", filepath.Join(w.out, "manifest.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scanner reports")
}

func TestTestConnection(t *testing.T) {
	w := newWorkspace(t)
	stub := &stubProvider{reachable: true}
	useStubProvider(t, stub)

	out, err := execute(t, "--config", w.config, "test-connection")
	require.NoError(t, err)
	assert.Contains(t, out, "OK\tstub is reachable")

	stub.reachable = false
	_, err = execute(t, "--config", w.config, "test-connection")
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestSetup_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("llm:\n  provider: nope\n"), 0o644))

	_, err := execute(t, "--config", bad, "show", "x.json")
	require.Error(t, err)
	assert.Equal(t, ExitSetup, exitCode(err))

	_, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "show", "x.json")
	require.Error(t, err)
	assert.Equal(t, ExitSetup, exitCode(err))

	_, err = execute(t, "--log-level", "loud", "show", "x.json")
	require.Error(t, err)
}

func TestHelp_DescribesRedaction(t *testing.T) {
	for _, cmd := range []string{"classify", "analyze"} {
		out, err := execute(t, cmd, "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "redact_secrets", cmd)
		assert.Contains(t, out, "verbatim", cmd)
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "codesentinel.yaml")
	out, err := execute(t, "init-config", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "OK\twrote"))

	_, err = execute(t, "init-config", path)
	assert.Error(t, err)

	_, err = execute(t, "--config", path, "show", filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load manifest")
}

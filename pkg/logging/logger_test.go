// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(42).toSlogLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"Warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "test", Output: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("visible", "files", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "files=3")
	assert.Contains(t, out, "service=test")
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Output: &buf})

	logger.Warn("fallback used", "path", "a.go")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "fallback used", record["msg"])
	assert.Equal(t, "a.go", record["path"])
	assert.Equal(t, "WARN", record["level"])
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, Quiet: true, LogDir: dir, Service: "svc"})
	logger.Info("to file")
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "svc_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestWith_AddsAttributesToExport(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp, Service: "svc"})

	child := logger.With("run_id", "r1")
	child.Info("stage done", "stage", "merge")

	entries := exp.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "stage done", entries[0].Message)
	assert.Equal(t, "r1", entries[0].Attrs["run_id"])
	assert.Equal(t, "merge", entries[0].Attrs["stage"])
	assert.Equal(t, "svc", entries[0].Service)
}

func TestExporter_RespectsLevel(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Level: LevelWarn, Exporter: exp})

	logger.Info("dropped")
	logger.Error("kept")

	assert.Equal(t, []string{"kept"}, exp.Messages(LevelDebug))
}

func TestWarnOnce(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})
	child := logger.With("component", "risk")

	assert.True(t, logger.WarnOnce("config-fallback", "using default scoring config"))
	assert.False(t, child.WarnOnce("config-fallback", "using default scoring config"))
	assert.True(t, child.WarnOnce("other", "different condition"))

	assert.Len(t, exp.Messages(LevelWarn), 2)
}

func TestNop_DiscardsOutput(t *testing.T) {
	logger := Nop()
	logger.Error("nothing happens")
	assert.NoError(t, logger.Close())
	assert.NotNil(t, OrNop(nil))
	assert.Same(t, logger, OrNop(logger))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".codesentinel/logs"), expandPath("~/.codesentinel/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.True(t, strings.HasPrefix(expandPath("relative"), "relative"))
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, 2, "ignored", "b", "x", "dangling"})
	assert.Equal(t, map[string]any{"a": 1, "b": "x"}, got)
}

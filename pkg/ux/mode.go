// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// EnvOutputMode overrides terminal detection.
const EnvOutputMode = "CODESENTINEL_OUTPUT"

// Mode controls how richly output is rendered.
type Mode string

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain keeps icons and layout but drops ANSI styling.
	ModePlain Mode = "plain"

	// ModeMachine writes tab-separated key/value lines for scripts.
	ModeMachine Mode = "machine"
)

// ParseMode converts a flag or environment value to a Mode. Unknown values
// return ok=false.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "color":
		return ModeRich, true
	case "plain", "minimal", "no-color":
		return ModePlain, true
	case "machine", "quiet", "tsv":
		return ModeMachine, true
	default:
		return "", false
	}
}

// DetectMode picks a Mode for w.
//
// Description:
//
//	An explicit value wins, then $CODESENTINEL_OUTPUT. Otherwise a
//	terminal gets ModeRich, $NO_COLOR or a non-terminal file gets
//	ModePlain, and any other writer gets ModeMachine.
func DetectMode(w io.Writer, explicit string) Mode {
	if m, ok := ParseMode(explicit); ok {
		return m
	}
	if m, ok := ParseMode(os.Getenv(EnvOutputMode)); ok {
		return m
	}
	f, ok := w.(*os.File)
	if !ok {
		return ModeMachine
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModePlain
}

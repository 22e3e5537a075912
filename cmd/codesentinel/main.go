// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command codesentinel inventories a repository, classifies its files with
// an LLM, merges static-analysis findings and ranks files by risk.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/CodeSentinel/pkg/ux"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		ux.NewPrinter(os.Stderr, ux.DetectMode(os.Stderr, outputMode)).Error(err.Error())
	}
	os.Exit(exitCode(err))
}

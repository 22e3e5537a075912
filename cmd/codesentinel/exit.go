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
	"context"
	"errors"

	"github.com/AleutianAI/CodeSentinel/services/pipeline"
)

// Process exit codes.
const (
	// ExitOK covers success, including runs where some files failed or
	// fell back.
	ExitOK = 0

	// ExitSetup covers configuration, credential, input and usage errors.
	ExitSetup = 1

	// ExitPersistence means an artifact could not be written or uploaded.
	ExitPersistence = 2

	// ExitAborted means the run was interrupted or rejected by the cost
	// gate. Saved artifacts are valid for a resumed run.
	ExitAborted = 3
)

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, pipeline.ErrPersistence):
		return ExitPersistence
	case errors.Is(err, pipeline.ErrCostRejected),
		errors.Is(err, context.Canceled):
		return ExitAborted
	default:
		return ExitSetup
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tokens estimates prompt sizes and classification cost.
//
// Two estimates are offered. The Estimator counts real prompt tokens from
// file content (EstimateRepository, Preview). Project needs no content and
// extrapolates from extension and size alone, for repositories too large
// to fetch up front.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

// EncodingName is the tiktoken encoding used for every provider. It is an
// approximation for non-OpenAI models.
const EncodingName = "cl100k_base"

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int

	// Name identifies the tokenizer in reports.
	Name() string
}

// ApproxCounter estimates one token per four characters, rounded down.
//
// This is a lower-fidelity stand-in used only when no tokenizer can be
// loaded. It is not an error condition.
type ApproxCounter struct{}

// Count returns len(text) / 4.
func (ApproxCounter) Count(text string) int { return len(text) / 4 }

// Name implements Counter.
func (ApproxCounter) Name() string { return "len/4 approximation" }

// TiktokenCounter counts with a tiktoken BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// Count implements Counter.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Name implements Counter.
func (c *TiktokenCounter) Name() string { return EncodingName + " (tiktoken)" }

// NewCounter loads the cl100k_base encoding, falling back to ApproxCounter
// when it is unavailable (for example offline with no BPE cache). The
// fallback is logged once per logger tree.
func NewCounter(logger *logging.Logger) Counter {
	enc, err := tiktoken.GetEncoding(EncodingName)
	if err != nil {
		logging.OrNop(logger).WarnOnce("tokens.tokenizer",
			"tokenizer unavailable, using len/4 approximation",
			"encoding", EncodingName,
			"error", err,
		)
		return ApproxCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

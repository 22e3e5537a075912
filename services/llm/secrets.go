// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// Secret holds an API key in an encrypted memguard enclave. The plaintext
// only exists while Reveal's caller holds it.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals b and wipes it. Returns nil for empty input.
func NewSecret(b []byte) *Secret {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	return &Secret{enclave: memguard.NewEnclave(b)}
}

// Reveal decrypts the secret into a regular string.
func (s *Secret) Reveal() (string, error) {
	if s == nil || s.enclave == nil {
		return "", ErrMissingCredentials
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("open secret: %w", err)
	}
	defer buf.Destroy()
	return strings.Clone(buf.String()), nil
}

// ResolveAPIKey loads the API key for c.
//
// Description:
//
//	Checks c.APIKey, then the environment variable c.APIKeyEnv, then the
//	file c.SecretFile (container secrets are mounted this way). The key is
//	sealed into a Secret as soon as it is read.
//
// Outputs:
//
//	*Secret - The sealed key.
//	error - ErrMissingCredentials when no source yields a key.
func ResolveAPIKey(c Config) (*Secret, error) {
	if c.APIKey != nil {
		return c.APIKey, nil
	}
	if c.APIKeyEnv != "" {
		if v := os.Getenv(c.APIKeyEnv); v != "" {
			return NewSecret([]byte(v)), nil
		}
	}
	if c.SecretFile != "" {
		if data, err := os.ReadFile(c.SecretFile); err == nil {
			if s := NewSecret(data); s != nil {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: set %s", ErrMissingCredentials, c.APIKeyEnv)
}

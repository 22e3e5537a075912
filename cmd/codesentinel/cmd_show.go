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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeSentinel/cmd/codesentinel/config"
)

// ErrConnectionFailed is returned by test-connection when the provider
// does not answer.
var ErrConnectionFailed = errors.New("provider connection test failed")

func runShow(_ *cobra.Command, args []string) error {
	a := current
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	printManifestSummary(a, m, showLimit)
	return nil
}

func runTestConnection(cmd *cobra.Command, _ []string) error {
	a := current
	provider, pc, err := a.newProvider(cmd.Context())
	if err != nil {
		return err
	}
	a.out.Info(fmt.Sprintf("testing %s (%s)", provider.Name(), pc.Model))
	if !provider.TestConnection(cmd.Context()) {
		return fmt.Errorf("%w: %s", ErrConnectionFailed, provider.Name())
	}
	a.out.Success(fmt.Sprintf("%s is reachable", provider.Name()))
	return nil
}

func runInitConfig(_ *cobra.Command, args []string) error {
	a := current
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	a.out.Success(fmt.Sprintf("wrote %s", path))
	return nil
}

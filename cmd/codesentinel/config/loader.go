// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/CodeSentinel/services/llm"
	"github.com/AleutianAI/CodeSentinel/services/tokens"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "CODESENTINEL_CONFIG"

// ErrInvalidConfig wraps parse and validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	// envRef matches ${NAME}. A bare $NAME is left alone so that values
	// like bcrypt hashes survive.
	envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// DefaultPath returns ~/.codesentinel/codesentinel.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".codesentinel", "codesentinel.yaml"), nil
}

// Load reads the application configuration.
//
// Description:
//
//	An explicit path must exist. With an empty path, $CODESENTINEL_CONFIG
//	and then DefaultPath are tried, and a missing default file yields
//	DefaultConfig. ${NAME} references are expanded from the environment
//	before parsing. Unknown keys are rejected.
//
// Inputs:
//
//	path - Config file, or "" for the default lookup.
//
// Outputs:
//
//	Config - The validated configuration.
//	string - The file that was read, or "" for built-in defaults.
//	error - Read failures, or ErrInvalidConfig for parse and validation.
func Load(path string) (Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, "", err
		}
		path = p
	}

	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), "", nil
		}
		return Config{}, "", fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, "", fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

// Parse decodes and validates YAML on top of DefaultConfig.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the provider override names.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}
	for name := range c.LLM.Providers {
		if err := validate.Var(name, "oneof=openai bedrock anthropic ollama gemini"); err != nil {
			errs = append(errs, fmt.Errorf("llm.providers: unknown provider %q", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
func WriteDefault(path string) error {
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ExpandEnv replaces ${NAME} with the environment value. Unset names
// expand to "".
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if len(c.LLM.Providers) > 0 {
		lowered := make(map[string]llm.Config, len(c.LLM.Providers))
		for k, v := range c.LLM.Providers {
			lowered[strings.ToLower(k)] = v
		}
		c.LLM.Providers = lowered
	}
	for i, ext := range c.Analysis.Extensions {
		c.Analysis.Extensions[i] = strings.ToLower(ext)
	}
	if len(c.Pricing) > 0 {
		lowered := make(map[string]tokens.Pricing, len(c.Pricing))
		for k, v := range c.Pricing {
			lowered[strings.ToLower(k)] = v
		}
		c.Pricing = lowered
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

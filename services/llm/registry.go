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
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/CodeSentinel/pkg/logging"
)

// Factory builds a Provider from its configuration.
type Factory func(ctx context.Context, config Config, logger *logging.Logger) (Provider, error)

// Registry maps provider names to factories. Callers select a back end by
// name and never branch on it themselves.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ProviderOpenAI, func(_ context.Context, c Config, l *logging.Logger) (Provider, error) {
		return NewOpenAIProvider(c, l)
	})
	r.Register(ProviderBedrock, func(ctx context.Context, c Config, l *logging.Logger) (Provider, error) {
		return NewBedrockProvider(ctx, c, l)
	})
	r.Register(ProviderAnthropic, func(_ context.Context, c Config, l *logging.Logger) (Provider, error) {
		return NewAnthropicProvider(c, l)
	})
	r.Register(ProviderOllama, func(_ context.Context, c Config, l *logging.Logger) (Provider, error) {
		return NewOllamaProvider(c, l)
	})
	r.Register(ProviderGemini, func(ctx context.Context, c Config, l *logging.Logger) (Provider, error) {
		return NewGeminiProvider(ctx, c, l)
	})
	return r
}

// Register adds or replaces the factory for name. Names are
// case-insensitive.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the provider registered under name.
//
// Inputs:
//
//	ctx - Passed to factories that discover credentials.
//	name - Provider name.
//	config - Provider configuration; defaults are applied.
//	logger - Logger; nil discards.
//
// Outputs:
//
//	Provider - The constructed provider.
//	error - ErrUnknownProvider, a validation error, or a factory error.
func (r *Registry) New(ctx context.Context, name string, config Config, logger *logging.Logger) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, name, strings.Join(r.Names(), ", "))
	}

	config = config.WithDefaults(key)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", key, err)
	}
	p, err := f(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", key, err)
	}
	return p, nil
}

// New builds a provider from the default registry.
func New(ctx context.Context, name string, config Config, logger *logging.Logger) (Provider, error) {
	return DefaultRegistry().New(ctx, name, config, logger)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokens

import "strings"

// Pricing is a per-1000-token price table in USD.
type Pricing struct {
	Model            string  `json:"model" yaml:"model"`
	InputPricePer1K  float64 `json:"input_price_per_1k_tokens" yaml:"input_price_per_1k" validate:"gte=0"`
	OutputPricePer1K float64 `json:"output_price_per_1k_tokens" yaml:"output_price_per_1k" validate:"gte=0"`
	Currency         string  `json:"currency" yaml:"-"`
}

// Cost prices a request.
func (p Pricing) Cost(promptTokens, responseTokens int) float64 {
	return float64(promptTokens)/1000*p.InputPricePer1K + float64(responseTokens)/1000*p.OutputPricePer1K
}

// defaultPricing is keyed by provider name. Prices are list prices at the
// time of writing and should be overridden from configuration when they
// change.
var defaultPricing = map[string]Pricing{
	"bedrock":   {Model: "claude-3.5-sonnet", InputPricePer1K: 0.003, OutputPricePer1K: 0.015},
	"anthropic": {Model: "claude-3.5-sonnet", InputPricePer1K: 0.003, OutputPricePer1K: 0.015},
	"openai":    {Model: "gpt-4o-mini", InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006},
	"gemini":    {Model: "gemini-2.0-flash", InputPricePer1K: 0.0001, OutputPricePer1K: 0.0004},
	"ollama":    {Model: "local", InputPricePer1K: 0, OutputPricePer1K: 0},
}

// PricingFor returns the built-in price table for a provider. Unknown
// providers are priced like Bedrock Claude, the most expensive default.
func PricingFor(provider string) Pricing {
	p, ok := defaultPricing[strings.ToLower(provider)]
	if !ok {
		p = defaultPricing["bedrock"]
	}
	p.Currency = "USD"
	return p
}

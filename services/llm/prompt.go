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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// SystemPrompt is sent as the system role by providers that support one.
const SystemPrompt = "You are a senior software engineer and security analyst. " +
	"Analyze code files and provide structured insights about their purpose and security implications."

// analysisPromptTemplate embeds the file verbatim. Every provider sends the
// same text so classifications are comparable across back ends.
const analysisPromptTemplate = `Analyze this code file and identify its primary purpose. Consider:
- Main functionality and business logic
- Security implications
- Data handling patterns
- External dependencies
- Framework/library usage patterns
- Architectural role in the application

File: {{.Path}}
Extension: {{.Extension}}
Code Content:
` + "```" + `
{{.Content}}
` + "```" + `

Respond with a JSON object containing:
- "purpose": A brief, clear description of the file's main purpose (max 100 words)
- "category": One of [{{.Categories}}]
- "confidence": A confidence score from 0.0 to 1.0
- "security_relevance": One of [high, medium, low] based on security implications
- "reasoning": Brief explanation of the categorization (max 50 words)

Example response:
{
  "purpose": "User authentication and session management module",
  "category": "authentication",
  "confidence": 0.95,
  "security_relevance": "high",
  "reasoning": "Handles user credentials, session tokens, and access control"
}

Provide only the JSON response, no additional text.`

var promptTemplate = template.Must(template.New("analysis").Parse(analysisPromptTemplate))

// BuildPrompt renders the shared analysis prompt for one file.
//
// Inputs:
//
//	path - Repository-relative file path.
//	content - Full file content, embedded verbatim.
//	extension - File extension including the dot, may be empty.
//
// Outputs:
//
//	string - The prompt text.
func BuildPrompt(path, content, extension string) string {
	categories := make([]string, len(manifest.Categories))
	for i, c := range manifest.Categories {
		categories[i] = string(c)
	}
	data := struct {
		Path       string
		Extension  string
		Content    string
		Categories string
	}{path, extension, content, strings.Join(categories, ", ")}

	var buf bytes.Buffer
	// The template is static and the data is plain strings; Execute cannot fail.
	_ = promptTemplate.Execute(&buf, data)
	return buf.String()
}

// ExtractJSON returns the substring from the first '{' to the last '}'.
//
// Description:
//
//	Tolerates models that wrap the object in prose or markdown fences.
//
// Outputs:
//
//	string - The candidate JSON object.
//	error - ErrNoJSON when no braces are found in order.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// requiredFields must all be present for a response to be accepted.
var requiredFields = []string{"purpose", "category", "confidence", "security_relevance"}

// ParseClassification turns a raw model response into a Classification.
//
// Description:
//
//	Extracts the JSON object, checks that purpose, category, confidence and
//	security_relevance are present, then normalizes values: category into
//	the closed set, relevance onto high/medium/low, confidence clamped to
//	[0,1]. Confidence may arrive as a number or a numeric string.
//	Provider and Model are left for the caller to fill.
//
// Outputs:
//
//	manifest.Classification - The parsed result.
//	error - ErrNoJSON, ErrMissingFields, or a decode error.
func ParseClassification(text string) (manifest.Classification, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return manifest.Classification{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return manifest.Classification{}, fmt.Errorf("decode response: %w", err)
	}

	var missing []string
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return manifest.Classification{}, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	confidence, err := decodeConfidence(fields["confidence"])
	if err != nil {
		return manifest.Classification{}, err
	}

	return manifest.Classification{
		Purpose:           decodeString(fields["purpose"]),
		Category:          manifest.NormalizeCategory(decodeString(fields["category"])),
		Confidence:        manifest.ClampConfidence(confidence),
		SecurityRelevance: manifest.NormalizeRelevance(decodeString(fields["security_relevance"])),
		Reasoning:         decodeString(fields["reasoning"]),
	}, nil
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func decodeConfidence(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, perr := strconv.ParseFloat(strings.TrimSpace(s), 64); perr == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("decode confidence: invalid value %s", string(raw))
}

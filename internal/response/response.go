// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package response

import "fmt"

// ModelType selects a normalization strategy.
type ModelType string

const (
	Standard ModelType = "standard"
	Thinking ModelType = "thinking"
	Code     ModelType = "code"
	Custom   ModelType = "custom"
)

// Metadata keys written by the built-in strategies.
const (
	MetaModelType      = "model_type"
	MetaThinkingCount  = "thinking_blocks_count"
	MetaCodeBlocks     = "code_blocks"
	MetaCodeBlockCount = "code_blocks_count"
	MetaExtracted      = "extracted"
)

// ParseModelType converts a tag such as "thinking" to a ModelType.
func ParseModelType(s string) (ModelType, error) {
	switch t := ModelType(s); t {
	case Standard, Thinking, Code, Custom:
		return t, nil
	}
	return "", fmt.Errorf("unknown model type %q", s)
}

// ProcessedResponse is the normalized result of one model turn.
type ProcessedResponse struct {
	// Content is the user-facing answer with reasoning and markup removed.
	Content string `json:"content"`

	// Thinking holds extracted reasoning blocks in document order.
	// It is nil, not empty, when none were found.
	Thinking []string `json:"thinking,omitempty"`

	// Metadata always carries MetaModelType.
	Metadata map[string]any `json:"metadata"`

	// RawContent is the unmodified model output.
	RawContent string `json:"raw_content"`
}

// Type returns the strategy tag recorded in the metadata.
func (r *ProcessedResponse) Type() ModelType {
	t, _ := r.Metadata[MetaModelType].(ModelType)
	return t
}

// CodeBlocks returns the code inventory recorded by the code strategy.
func (r *ProcessedResponse) CodeBlocks() []CodeBlock {
	blocks, _ := r.Metadata[MetaCodeBlocks].([]CodeBlock)
	return blocks
}

// Extracted returns the fields captured by the custom strategy.
func (r *ProcessedResponse) Extracted() map[string]any {
	m, _ := r.Metadata[MetaExtracted].(map[string]any)
	return m
}

// CodeBlock is one fenced code region.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Pattern is a named regular expression for the custom strategy.
// Patterns are applied in slice order.
type Pattern struct {
	Name string
	Expr string
}

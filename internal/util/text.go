// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Defaults for ChunkText.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// FormatResponse wraps lines wider than maxWidth columns at word
// boundaries. Lines that fit are left untouched, including their
// whitespace. A single word wider than maxWidth gets its own line.
func FormatResponse(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if runewidth.StringWidth(line) <= maxWidth {
			out = append(out, line)
			continue
		}
		var cur []string
		width := 0
		for _, word := range strings.Fields(line) {
			w := runewidth.StringWidth(word)
			if len(cur) > 0 && width+1+w > maxWidth {
				out = append(out, strings.Join(cur, " "))
				cur, width = nil, 0
			}
			if len(cur) > 0 {
				width++
			}
			cur = append(cur, word)
			width += w
		}
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
		}
	}
	return strings.Join(out, "\n")
}

// EstimateTokens approximates the token count as one token per four bytes.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ChunkText splits text into chunks of size runes, each starting overlap
// runes before the end of the previous one. Non-positive size uses
// DefaultChunkSize; an overlap not smaller than size is treated as zero.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// FillTemplate replaces every {key} in tpl with fmt's rendering of
// vars[key]. Unknown placeholders are left in place.
func FillTemplate(tpl string, vars map[string]any) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// CreateSystemPrompt builds a system prompt from a role, optional
// context and numbered guidelines.
func CreateSystemPrompt(role, context string, constraints ...string) string {
	parts := []string{"You are a " + role + "."}
	if context != "" {
		parts = append(parts, "\nContext: "+context)
	}
	if len(constraints) > 0 {
		parts = append(parts, "\nPlease follow these guidelines:")
		for i, c := range constraints {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, c))
		}
	}
	return strings.Join(parts, "\n")
}

var modelNameRe = regexp.MustCompile(`^[a-zA-Z0-9_./-]+(?::[a-zA-Z0-9_.-]+)?$`)

// ValidateModelName reports whether name looks like an Ollama model
// reference such as "llama3.2", "qwen2.5:7b" or "user/model:tag".
func ValidateModelName(name string) bool {
	return modelNameRe.MatchString(name)
}

// BatchProcess applies fn to every item in order, in batches of
// batchSize. onBatch, if set, is called before each batch with its
// 1-based index and the batch count.
func BatchProcess[T, R any](items []T, batchSize int, fn func(T) R, onBatch func(batch, total int)) []R {
	if batchSize <= 0 {
		batchSize = 10
	}
	results := make([]R, 0, len(items))
	total := (len(items) + batchSize - 1) / batchSize
	for i := 0; i < len(items); i += batchSize {
		if onBatch != nil {
			onBatch(i/batchSize+1, total)
		}
		for _, item := range items[i:min(i+batchSize, len(items))] {
			results = append(results, fn(item))
		}
	}
	return results
}

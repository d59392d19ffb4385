// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package customize

import (
	"sort"

	"github.com/jeranaias/otk/internal/ollama"
)

// ModelConfig holds sampling parameters. It is a value type; the With
// methods return modified copies.
type ModelConfig struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int // 0 leaves num_predict unset
	Stop          []string
	SystemPrompt  string
}

// DefaultConfig returns the balanced defaults.
func DefaultConfig() ModelConfig {
	return ModelConfig{
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
	}
}

// WithTemperature returns a copy with temperature t.
func (c ModelConfig) WithTemperature(t float64) ModelConfig {
	c.Temperature = t
	return c
}

// WithTopP returns a copy with top_p p.
func (c ModelConfig) WithTopP(p float64) ModelConfig {
	c.TopP = p
	return c
}

// WithTopK returns a copy with top_k k.
func (c ModelConfig) WithTopK(k int) ModelConfig {
	c.TopK = k
	return c
}

// WithMaxTokens returns a copy limited to n generated tokens.
func (c ModelConfig) WithMaxTokens(n int) ModelConfig {
	c.MaxTokens = n
	return c
}

// WithStop returns a copy with the given stop sequences.
func (c ModelConfig) WithStop(stop ...string) ModelConfig {
	c.Stop = append([]string(nil), stop...)
	return c
}

// WithSystemPrompt returns a copy with system prompt s.
func (c ModelConfig) WithSystemPrompt(s string) ModelConfig {
	c.SystemPrompt = s
	return c
}

// Options converts the config to request options.
func (c ModelConfig) Options() *ollama.Options {
	return &ollama.Options{
		Temperature:   c.Temperature,
		TopP:          c.TopP,
		TopK:          c.TopK,
		RepeatPenalty: c.RepeatPenalty,
		NumPredict:    c.MaxTokens,
		Stop:          append([]string(nil), c.Stop...),
	}
}

// GenerateOptions converts the config for a generate call.
func (c ModelConfig) GenerateOptions() *ollama.GenerateOptions {
	return &ollama.GenerateOptions{System: c.SystemPrompt, Options: c.Options()}
}

// =============================================================================
// PRESETS
// =============================================================================

var presets = map[string]func() ModelConfig{
	"creative": func() ModelConfig {
		return DefaultConfig().WithTemperature(0.9).WithTopP(0.95)
	},
	"factual": func() ModelConfig {
		c := DefaultConfig().WithTemperature(0.2).WithTopP(0.5)
		c.RepeatPenalty = 1.2
		return c
	},
	"balanced": DefaultConfig,
	"code": func() ModelConfig {
		c := DefaultConfig().WithTemperature(0.2).WithTopP(0.95).WithStop("```\n\n")
		c.RepeatPenalty = 1.05
		return c
	},
	"conversational": func() ModelConfig {
		return DefaultConfig().WithTemperature(0.8).WithTopP(0.92)
	},
}

// Preset returns the named preset.
func Preset(name string) (ModelConfig, bool) {
	f, ok := presets[name]
	if !ok {
		return ModelConfig{}, false
	}
	return f(), true
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

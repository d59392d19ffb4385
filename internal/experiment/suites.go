// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package experiment

import (
	"context"
	"strings"

	"github.com/jeranaias/otk/internal/ollama"
)

// =============================================================================
// PROMPT SUITES
// =============================================================================

// Case is one prompt of a suite with an optional quality evaluator.
type Case struct {
	Name      string           `json:"name"`
	Kind      Kind             `json:"kind"`
	Prompt    string           `json:"prompt"`
	Evaluator QualityEvaluator `json:"-"`
}

// Kind categorizes a case.
type Kind string

const (
	KindLatency     Kind = "latency"
	KindSpeed       Kind = "speed"
	KindCode        Kind = "code"
	KindExplanation Kind = "explanation"
	KindInstruction Kind = "instruction"
)

// QualityEvaluator scores a response from 0 to 100.
type QualityEvaluator func(response string) float64

// StandardSuite returns the built-in prompt suite.
func StandardSuite() []Case {
	return []Case{
		{
			Name:   "latency",
			Kind:   KindLatency,
			Prompt: "Say 'Hello'",
			Evaluator: func(response string) float64 {
				if strings.Contains(strings.ToLower(response), "hello") {
					return 100
				}
				return 50
			},
		},
		{
			Name:   "haiku",
			Kind:   KindSpeed,
			Prompt: "Write a haiku about programming.",
			Evaluator: func(response string) float64 {
				lines := strings.Split(strings.TrimSpace(response), "\n")
				switch {
				case len(lines) >= 3:
					return 100
				case len(response) > 10:
					return 70
				default:
					return 30
				}
			},
		},
		{
			Name:      "fibonacci",
			Kind:      KindCode,
			Prompt:    "Complete this function:\n\ndef fibonacci(n):\n    # Calculate the nth Fibonacci number",
			Evaluator: KeywordEvaluator("return", "if", "fib", "fibonacci("),
		},
		{
			Name:   "rest-api",
			Kind:   KindExplanation,
			Prompt: "Explain what a REST API is in simple terms.",
			Evaluator: func(response string) float64 {
				score := KeywordEvaluator("api", "http", "request", "response", "rest")(response) * 0.75
				if strings.Count(response, ".") >= 3 {
					score += 25
				}
				return min(score, 100)
			},
		},
		{
			Name:   "three-languages",
			Kind:   KindInstruction,
			Prompt: "List exactly 3 programming languages. Format: 1. Language",
			Evaluator: func(response string) float64 {
				score := 0.0
				for _, marker := range []string{"1.", "2.", "3."} {
					if strings.Contains(response, marker) {
						score += 25
					}
				}
				if !strings.Contains(response, "4.") {
					score += 25
				}
				return score
			},
		},
	}
}

// QuickSuite returns the latency and speed cases only.
func QuickSuite() []Case {
	return FilterByKind(StandardSuite(), KindLatency, KindSpeed)
}

// FilterByKind keeps cases whose kind is in kinds.
func FilterByKind(cases []Case, kinds ...Kind) []Case {
	var out []Case
	for _, c := range cases {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Prompts returns the prompt of every case.
func Prompts(cases []Case) []string {
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.Prompt
	}
	return out
}

// KeywordEvaluator scores the share of keywords present, case-insensitive.
func KeywordEvaluator(keywords ...string) QualityEvaluator {
	return func(response string) float64 {
		if len(keywords) == 0 {
			return 100
		}
		lower := strings.ToLower(response)
		found := 0
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found++
			}
		}
		return float64(found) / float64(len(keywords)) * 100
	}
}

// LengthEvaluator scores 100 once the response reaches n runes.
func LengthEvaluator(n int) QualityEvaluator {
	return func(response string) float64 {
		if n <= 0 {
			return 100
		}
		l := len([]rune(response))
		if l >= n {
			return 100
		}
		return float64(l) / float64(n) * 100
	}
}

// ScoredResult pairs a suite case with its run.
type ScoredResult struct {
	Case   Case    `json:"case"`
	Result Result  `json:"result"`
	Score  float64 `json:"score"`
}

// RunSuite runs every case against model. Failed runs score zero.
func (r *Runner) RunSuite(ctx context.Context, model string, cases []Case, opts *ollama.GenerateOptions) []ScoredResult {
	out := make([]ScoredResult, 0, len(cases))
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}
		res := r.RunSingle(ctx, model, c.Prompt, opts)
		sr := ScoredResult{Case: c, Result: res}
		if !res.Failed() && c.Evaluator != nil {
			sr.Score = c.Evaluator(res.Response)
		}
		out = append(out, sr)
	}
	return out
}

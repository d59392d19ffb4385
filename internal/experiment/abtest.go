// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package experiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/otk/internal/ollama"
)

// Verdicts returned by a Judge.
const (
	VerdictA   = "a"
	VerdictB   = "b"
	VerdictTie = "tie"
)

// Judge picks the better of two results. Any answer other than "a" or
// "b" counts as a tie.
type Judge func(a, b Result) string

// ABTest pits two models against each other over a prompt set.
type ABTest struct {
	Runner *Runner
	ModelA string
	ModelB string
	Judge  Judge
	Opts   *ollama.GenerateOptions
}

// Round is one prompt of an A/B test.
type Round struct {
	Prompt  string `json:"prompt"`
	A       Result `json:"a"`
	B       Result `json:"b"`
	Verdict string `json:"verdict"`
}

// ABResult tallies an A/B test.
type ABResult struct {
	ModelA  string  `json:"model_a"`
	ModelB  string  `json:"model_b"`
	WinsA   int     `json:"wins_a"`
	WinsB   int     `json:"wins_b"`
	Ties    int     `json:"ties"`
	Skipped int     `json:"skipped"`
	Rounds  []Round `json:"rounds"`
}

// Winner returns the model with more wins, or "" on a draw.
func (r ABResult) Winner() string {
	switch {
	case r.WinsA > r.WinsB:
		return r.ModelA
	case r.WinsB > r.WinsA:
		return r.ModelB
	default:
		return ""
	}
}

// Run evaluates every prompt on both models. A prompt where either side
// fails is skipped and not judged. A nil Judge prefers the faster model.
func (t *ABTest) Run(ctx context.Context, prompts []string) ABResult {
	out := ABResult{ModelA: t.ModelA, ModelB: t.ModelB}
	judge := t.Judge
	if judge == nil {
		judge = FasterJudge
	}

	for _, p := range prompts {
		if ctx.Err() != nil {
			break
		}
		a := t.Runner.RunSingle(ctx, t.ModelA, p, t.Opts)
		b := t.Runner.RunSingle(ctx, t.ModelB, p, t.Opts)
		if a.Failed() || b.Failed() {
			out.Skipped++
			continue
		}

		verdict := strings.ToLower(strings.TrimSpace(judge(a, b)))
		switch verdict {
		case VerdictA:
			out.WinsA++
		case VerdictB:
			out.WinsB++
		default:
			verdict = VerdictTie
			out.Ties++
		}
		out.Rounds = append(out.Rounds, Round{Prompt: p, A: a, B: b, Verdict: verdict})
	}
	return out
}

// Summary renders the tally.
func (r ABResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "A/B Test: %s vs %s\n", r.ModelA, r.ModelB)
	fmt.Fprintf(&b, "  %s wins: %d\n", r.ModelA, r.WinsA)
	fmt.Fprintf(&b, "  %s wins: %d\n", r.ModelB, r.WinsB)
	fmt.Fprintf(&b, "  Ties: %d\n", r.Ties)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "  Skipped: %d\n", r.Skipped)
	}
	if w := r.Winner(); w != "" {
		fmt.Fprintf(&b, "Winner: %s\n", w)
	} else {
		b.WriteString("Result: draw\n")
	}
	return b.String()
}

// FasterJudge prefers the result with the shorter elapsed time.
func FasterJudge(a, b Result) string {
	switch {
	case a.Elapsed < b.Elapsed:
		return VerdictA
	case b.Elapsed < a.Elapsed:
		return VerdictB
	default:
		return VerdictTie
	}
}

// EvaluatorJudge scores both responses with eval and prefers the higher.
func EvaluatorJudge(eval QualityEvaluator) Judge {
	return func(a, b Result) string {
		sa, sb := eval(a.Response), eval(b.Response)
		switch {
		case sa > sb:
			return VerdictA
		case sb > sa:
			return VerdictB
		default:
			return VerdictTie
		}
	}
}

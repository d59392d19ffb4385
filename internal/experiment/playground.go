// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package experiment

import (
	"context"
	"math"

	"github.com/jeranaias/otk/internal/ollama"
)

// DefaultTemperatures is the sweep used when none are given.
var DefaultTemperatures = []float64{0.1, 0.5, 0.7, 0.9, 1.2}

// Playground runs parameter sweeps for a single model.
type Playground struct {
	Runner *Runner
	Model  string
}

// NewPlayground creates a playground for model.
func NewPlayground(r *Runner, model string) *Playground {
	return &Playground{Runner: r, Model: model}
}

// TryTemperatures runs prompt once per temperature.
func (p *Playground) TryTemperatures(ctx context.Context, prompt string, temps []float64) map[float64]Result {
	if len(temps) == 0 {
		temps = DefaultTemperatures
	}
	out := make(map[float64]Result, len(temps))
	for _, t := range temps {
		if ctx.Err() != nil {
			break
		}
		out[t] = p.Runner.RunSingle(ctx, p.Model, prompt, temperatureOpts(t))
	}
	return out
}

// TryPrompts runs base prefixed with each variation, keyed by variation.
func (p *Playground) TryPrompts(ctx context.Context, base string, variations []string) map[string]Result {
	out := make(map[string]Result, len(variations))
	for _, v := range variations {
		if ctx.Err() != nil {
			break
		}
		out[v] = p.Runner.RunSingle(ctx, p.Model, v+" "+base, nil)
	}
	return out
}

// TrySystemMessages runs prompt under each system message.
func (p *Playground) TrySystemMessages(ctx context.Context, prompt string, systems []string) map[string]Result {
	out := make(map[string]Result, len(systems))
	for _, s := range systems {
		if ctx.Err() != nil {
			break
		}
		out[s] = p.Runner.RunSingle(ctx, p.Model, prompt, &ollama.GenerateOptions{System: s})
	}
	return out
}

// TemperatureScore is one point of a temperature search.
type TemperatureScore struct {
	Temperature float64
	Score       float64
	Result      Result
}

// FindBestTemperature evaluates steps+1 evenly spaced temperatures in
// [lo, hi] and returns the best scoring one. Failed runs are not scored.
// ok is false when every run failed.
func (p *Playground) FindBestTemperature(ctx context.Context, prompt string, score QualityEvaluator, lo, hi float64, steps int) (best TemperatureScore, all []TemperatureScore, ok bool) {
	if steps < 1 {
		steps = 10
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	step := (hi - lo) / float64(steps)
	for i := 0; i <= steps; i++ {
		if ctx.Err() != nil {
			break
		}
		t := math.Round((lo+step*float64(i))*100) / 100
		res := p.Runner.RunSingle(ctx, p.Model, prompt, temperatureOpts(t))
		if res.Failed() {
			continue
		}
		ts := TemperatureScore{Temperature: t, Score: score(res.Response), Result: res}
		all = append(all, ts)
		if !ok || ts.Score > best.Score {
			best, ok = ts, true
		}
	}
	return best, all, ok
}

func temperatureOpts(t float64) *ollama.GenerateOptions {
	return &ollama.GenerateOptions{Options: &ollama.Options{Temperature: t}}
}

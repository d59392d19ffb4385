// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package experiment

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/otk/internal/ollama"
	"github.com/jeranaias/otk/internal/util"
)

// Generator produces a single completion. *ollama.Client satisfies it
// through OllamaGenerator.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error)
}

// OllamaGenerator adapts an ollama client to Generator.
type OllamaGenerator struct {
	Client *ollama.Client
}

// Generate implements Generator.
func (g OllamaGenerator) Generate(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error) {
	resp, err := g.Client.Generate(ctx, model, prompt, opts)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// GeneratorFunc lets a plain function act as a Generator.
type GeneratorFunc func(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error) {
	return f(ctx, model, prompt, opts)
}

// Runner executes experiments against a Generator.
type Runner struct {
	gen    Generator
	logger zerolog.Logger
	now    func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used for per-run failures.
func WithLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner over gen.
func NewRunner(gen Generator, opts ...RunnerOption) *Runner {
	r := &Runner{
		gen:    gen,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunSingle runs one prompt against one model. It never returns an
// error; failures are recorded in Result.Error.
func (r *Runner) RunSingle(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) Result {
	res := Result{
		RunID:     uuid.NewString(),
		Model:     model,
		Prompt:    prompt,
		StartedAt: r.now(),
		Metadata:  make(map[string]any),
	}

	text, err := r.gen.Generate(ctx, model, prompt, opts)
	res.Elapsed = r.now().Sub(res.StartedAt)
	if opts != nil && opts.System != "" {
		res.Metadata["system"] = opts.System
	}
	if opts != nil && opts.Options != nil {
		res.Metadata["temperature"] = opts.Options.Temperature
	}

	if err != nil {
		res.Error = err.Error()
		res.Metadata["success"] = false
		r.logger.Warn().Err(err).Str("model", model).Msg("experiment run failed")
		return res
	}

	res.Response = text
	res.Tokens = util.EstimateTokens(text)
	res.Metadata["success"] = true
	return res
}

// CompareModels runs prompt against every model. With parallel set, one
// goroutine per model is used and Results are in completion order.
func (r *Runner) CompareModels(ctx context.Context, prompt string, models []string, opts *ollama.GenerateOptions, parallel bool) Comparison {
	cmp := Comparison{
		ID:      uuid.NewString(),
		Models:  append([]string(nil), models...),
		Prompt:  prompt,
		Results: make([]Result, 0, len(models)),
	}

	if parallel && len(models) > 1 {
		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		g.SetLimit(len(models))
		for _, model := range models {
			g.Go(func() error {
				res := r.RunSingle(ctx, model, prompt, opts)
				mu.Lock()
				cmp.Results = append(cmp.Results, res)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait() // workers never return errors
	} else {
		for _, model := range models {
			cmp.Results = append(cmp.Results, r.RunSingle(ctx, model, prompt, opts))
		}
	}

	cmp.rank()
	return cmp
}

// BatchTest runs each prompt sequentially against model.
func (r *Runner) BatchTest(ctx context.Context, model string, prompts []string, opts *ollama.GenerateOptions) []Result {
	results := make([]Result, 0, len(prompts))
	for _, p := range prompts {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.RunSingle(ctx, model, p, opts))
	}
	return results
}

// ErrAllIterationsFailed is reported when no benchmark iteration succeeds.
var ErrAllIterationsFailed = errors.New("all iterations failed")

// Benchmark runs prompt iterations times and summarizes the successful runs.
func (r *Runner) Benchmark(ctx context.Context, model, prompt string, iterations int, opts *ollama.GenerateOptions) BenchmarkResult {
	if iterations < 1 {
		iterations = 1
	}
	results := make([]Result, 0, iterations)
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.RunSingle(ctx, model, prompt, opts))
	}
	return Summarize(model, iterations, results)
}

// Summarize computes benchmark statistics over results. Failed results
// are excluded.
func Summarize(model string, iterations int, results []Result) BenchmarkResult {
	br := BenchmarkResult{Model: model, Iterations: iterations}

	var ok []Result
	for _, res := range results {
		if !res.Failed() {
			ok = append(ok, res)
		}
	}
	if len(ok) == 0 {
		br.Error = ErrAllIterationsFailed.Error()
		return br
	}
	br.Succeeded = len(ok)

	var total time.Duration
	var tokens, tps float64
	br.MinTime = ok[0].Elapsed
	for _, res := range ok {
		total += res.Elapsed
		tokens += float64(res.Tokens)
		tps += res.TokensPerSecond()
		br.MinTime = min(br.MinTime, res.Elapsed)
		br.MaxTime = max(br.MaxTime, res.Elapsed)
	}
	n := float64(len(ok))
	br.AvgTime = total / time.Duration(len(ok))
	br.AvgTokens = tokens / n
	br.TokensPerSecond = tps / n

	if len(ok) > 1 {
		mean := float64(br.AvgTime)
		var sq float64
		for _, res := range ok {
			d := float64(res.Elapsed) - mean
			sq += d * d
		}
		br.StdDev = time.Duration(math.Sqrt(sq / (n - 1)))
	}
	return br
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// experiment_cmd.go - compare, bench, ab and tune commands.
//
// Examples:
//   otk compare --models llama3.2,qwen3:4b "Explain TCP slow start"
//   otk bench --models llama3.2 --iterations 5 "Say hello"
//   otk bench --models llama3.2,phi3 --suite quick --save
//   otk ab --a llama3.2 --b qwen3:4b --judge length "Explain DNS" "Explain BGP"
//   otk tune --model llama3.2 --keywords recursion,base "Explain recursion"

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/otk/internal/experiment"
	"github.com/jeranaias/otk/internal/logging"
	"github.com/jeranaias/otk/internal/ollama"
	"github.com/jeranaias/otk/internal/storage"
	"github.com/jeranaias/otk/internal/util"
)

func (a *App) runner() *experiment.Runner {
	return experiment.NewRunner(
		experiment.OllamaGenerator{Client: a.client},
		experiment.WithLogger(logging.Component("experiment")),
	)
}

// generateOptions builds request options from --temperature and --system.
func (a *App) generateOptions(p *ArgParser) (*ollama.GenerateOptions, error) {
	opts := &ollama.GenerateOptions{System: p.Flag("system")}
	if t, ok, err := p.FlagFloat("temperature"); err != nil {
		return nil, err
	} else if ok {
		opts.Options = &ollama.Options{Temperature: t}
	}
	return opts, nil
}

// modelList returns --models, falling back to --model or the default.
func (a *App) modelList(p *ArgParser) []string {
	if list := p.FlagList("models"); len(list) > 0 {
		return list
	}
	return []string{a.model()}
}

// saveResults stores results when --save or experiment.save_results is set.
func (a *App) saveResults(ctx context.Context, p *ArgParser, save func(*storage.Store) error) error {
	if !p.BoolFlag("save") && !a.cfg.Experiment.SaveResults {
		return nil
	}
	store, err := a.openStore()
	if err != nil {
		return NewCommandError("results", "open", "could not open results database", err)
	}
	defer store.Close()
	if err := save(store); err != nil {
		return NewCommandError("results", "save", "could not save results", err)
	}
	a.infof("Results saved")
	return nil
}

// =============================================================================
// COMPARE
// =============================================================================

func (a *App) runCompare(ctx context.Context) error {
	p := NewArgParser(a.args.Raw, "sequential", "parallel", "save", "show")
	prompt := JoinPositionalArgs(p, 0)
	if prompt == "" {
		return ErrMissingArgument("prompt", `otk compare --models llama3.2,phi3 "Explain recursion"`)
	}
	list := p.FlagList("models")
	if len(list) < 2 {
		return &ValidationError{Field: "models", Value: strings.Join(list, ","), Reason: "need at least two models", Example: "--models llama3.2,phi3"}
	}
	opts, err := a.generateOptions(p)
	if err != nil {
		return err
	}

	parallel := a.cfg.Experiment.Parallel
	if p.BoolFlag("sequential") {
		parallel = false
	} else if p.BoolFlag("parallel") {
		parallel = true
	}
	a.infof("Comparing %d models (%s)...", len(list), map[bool]string{true: "parallel", false: "sequential"}[parallel])

	cmp := a.runner().CompareModels(ctx, prompt, list, opts, parallel)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.saveResults(ctx, p, func(s *storage.Store) error { return s.SaveComparison(ctx, cmp) }); err != nil {
		return err
	}

	if a.args.JSON {
		return a.printJSON(cmp)
	}

	fmt.Fprintln(a.out, TitleStyle.Render("Comparison: ")+util.TruncateWidth(prompt, 60))
	rows := make([][]string, 0, len(cmp.Results))
	for i, rk := range cmp.Ranked() {
		res, _ := cmp.Result(rk.Model)
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			rk.Model,
			experiment.FormatDuration(rk.Elapsed),
			fmt.Sprintf("~%d", res.Tokens),
			experiment.FormatTokensPerSec(res.TokensPerSecond()),
		})
	}
	for _, res := range cmp.Errors() {
		rows = append(rows, []string{"-", res.Model, "failed", "", util.TruncateWidth(res.Error, 40)})
	}
	writeTable(a.out, []string{"#", "MODEL", "TIME", "TOKENS", "SPEED"}, rows)

	if p.BoolFlag("show") {
		for _, rk := range cmp.Ranked() {
			res, _ := cmp.Result(rk.Model)
			fmt.Fprintln(a.out, SectionStyle.Render(rk.Model))
			fmt.Fprint(a.out, a.render.Markdown(a.clean(res.Response, rk.Model)))
		}
	}
	if cmp.Winner != "" {
		fmt.Fprintln(a.out, SuccessStyle.Render("Fastest: "+cmp.Winner))
	} else {
		return NewCommandError("compare", "run", "every model failed", nil)
	}
	return nil
}

// clean normalizes a raw answer for display, falling back to the raw text.
func (a *App) clean(raw, model string) string {
	pr, err := a.resolver.Process(raw, model)
	if err != nil {
		return raw
	}
	return pr.Content
}

// =============================================================================
// BENCH
// =============================================================================

func (a *App) runBench(ctx context.Context) error {
	p := NewArgParser(a.args.Raw, "save")
	opts, err := a.generateOptions(p)
	if err != nil {
		return err
	}
	list := a.modelList(p)

	if prompt := JoinPositionalArgs(p, 0); prompt != "" {
		return a.benchPrompt(ctx, p, list, prompt, opts)
	}
	return a.benchSuite(ctx, p, list, opts)
}

func (a *App) benchPrompt(ctx context.Context, p *ArgParser, list []string, prompt string, opts *ollama.GenerateOptions) error {
	iterations := p.FlagIntOrDefault("iterations", a.cfg.Experiment.Iterations)
	if iterations < 1 {
		return NewValidationError("iterations", p.Flag("iterations"), "must be positive")
	}

	r := a.runner()
	var (
		results []experiment.BenchmarkResult
		all     []experiment.Result
	)
	for _, model := range list {
		a.infof("Benchmarking %s (%d iterations)...", model, iterations)
		runs := r.BatchTest(ctx, model, repeat(prompt, iterations), opts)
		if err := ctx.Err(); err != nil {
			return err
		}
		all = append(all, runs...)
		results = append(results, experiment.Summarize(model, iterations, runs))
	}

	group := uuid.NewString()
	if err := a.saveResults(ctx, p, func(s *storage.Store) error {
		return s.SaveAll(ctx, storage.KindBench, group, all)
	}); err != nil {
		return err
	}

	if a.args.JSON {
		return a.printJSON(results)
	}
	rows := make([][]string, 0, len(results))
	for _, b := range results {
		if b.Error != "" {
			rows = append(rows, []string{b.Model, fmt.Sprintf("0/%d", b.Iterations), "failed", "", "", b.Error})
			continue
		}
		rows = append(rows, []string{
			b.Model,
			fmt.Sprintf("%d/%d", b.Succeeded, b.Iterations),
			experiment.FormatDuration(b.AvgTime),
			experiment.FormatDuration(b.MinTime) + " - " + experiment.FormatDuration(b.MaxTime),
			fmt.Sprintf("%.2fs", b.StdDev.Seconds()),
			experiment.FormatTokensPerSec(b.TokensPerSecond),
		})
	}
	writeTable(a.out, []string{"MODEL", "OK", "AVG", "RANGE", "STDDEV", "SPEED"}, rows)
	return nil
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

type suiteReport struct {
	Model   string                    `json:"model"`
	Score   float64                   `json:"avg_score"`
	Results []experiment.ScoredResult `json:"results"`
}

func (a *App) benchSuite(ctx context.Context, p *ArgParser, list []string, opts *ollama.GenerateOptions) error {
	var cases []experiment.Case
	switch name := p.FlagOrDefault("suite", "standard"); name {
	case "standard":
		cases = experiment.StandardSuite()
	case "quick":
		cases = experiment.QuickSuite()
	default:
		return &ValidationError{Field: "suite", Value: name, Reason: "unknown suite", Example: "--suite quick"}
	}
	if kinds := p.FlagList("kind"); len(kinds) > 0 {
		ks := make([]experiment.Kind, len(kinds))
		for i, k := range kinds {
			ks[i] = experiment.Kind(k)
		}
		if cases = experiment.FilterByKind(cases, ks...); len(cases) == 0 {
			return NewValidationError("kind", strings.Join(kinds, ","), "no suite cases of that kind")
		}
	}

	r := a.runner()
	reports := make([]suiteReport, 0, len(list))
	var all []experiment.Result
	for _, model := range list {
		a.infof("Running %d cases on %s...", len(cases), model)
		scored := r.RunSuite(ctx, model, cases, opts)
		if err := ctx.Err(); err != nil {
			return err
		}
		rep := suiteReport{Model: model, Results: scored}
		for _, s := range scored {
			rep.Score += s.Score
			all = append(all, s.Result)
		}
		if len(scored) > 0 {
			rep.Score /= float64(len(scored))
		}
		reports = append(reports, rep)
	}

	group := uuid.NewString()
	if err := a.saveResults(ctx, p, func(s *storage.Store) error {
		return s.SaveAll(ctx, storage.KindBench, group, all)
	}); err != nil {
		return err
	}

	if a.args.JSON {
		return a.printJSON(reports)
	}
	for _, rep := range reports {
		fmt.Fprintln(a.out, SectionStyle.Render(fmt.Sprintf("%s  (avg score %.0f)", rep.Model, rep.Score)))
		rows := make([][]string, 0, len(rep.Results))
		for _, s := range rep.Results {
			status := fmt.Sprintf("%.0f", s.Score)
			if s.Result.Failed() {
				status = "failed"
			}
			rows = append(rows, []string{
				s.Case.Name,
				string(s.Case.Kind),
				experiment.FormatDuration(s.Result.Elapsed),
				experiment.FormatTokensPerSec(s.Result.TokensPerSecond()),
				status,
			})
		}
		writeTable(a.out, []string{"CASE", "KIND", "TIME", "SPEED", "SCORE"}, rows)
	}
	return nil
}

// =============================================================================
// A/B
// =============================================================================

func (a *App) runAB(ctx context.Context) error {
	p := NewArgParser(a.args.Raw, "save")
	modelA, modelB := p.Flag("a"), p.Flag("b")
	if modelA == "" || modelB == "" {
		return ErrMissingArgument("--a and --b", `otk ab --a llama3.2 --b phi3 "Explain DNS"`)
	}
	opts, err := a.generateOptions(p)
	if err != nil {
		return err
	}

	prompts := p.PositionalFrom(0)
	if len(prompts) == 0 {
		prompts = experiment.Prompts(experiment.QuickSuite())
	}

	var judge experiment.Judge
	switch name := p.FlagOrDefault("judge", "faster"); name {
	case "faster":
		judge = experiment.FasterJudge
	case "length":
		judge = experiment.EvaluatorJudge(experiment.LengthEvaluator(p.FlagIntOrDefault("length", 500)))
	default:
		return &ValidationError{Field: "judge", Value: name, Reason: "unknown judge", Example: "--judge length"}
	}

	a.infof("A/B testing %s vs %s over %d prompts...", modelA, modelB, len(prompts))
	test := &experiment.ABTest{Runner: a.runner(), ModelA: modelA, ModelB: modelB, Judge: judge, Opts: opts}
	res := test.Run(ctx, prompts)
	if err := ctx.Err(); err != nil {
		return err
	}

	group := uuid.NewString()
	if err := a.saveResults(ctx, p, func(s *storage.Store) error {
		var all []experiment.Result
		for _, r := range res.Rounds {
			all = append(all, r.A, r.B)
		}
		return s.SaveAll(ctx, storage.KindCompare, group, all)
	}); err != nil {
		return err
	}

	if a.args.JSON {
		return a.printJSON(res)
	}
	fmt.Fprint(a.out, res.Summary())
	return nil
}

// =============================================================================
// TUNE
// =============================================================================

func (a *App) runTune(ctx context.Context) error {
	p := NewArgParser(a.args.Raw)
	prompt := JoinPositionalArgs(p, 0)
	if prompt == "" {
		return ErrMissingArgument("prompt", `otk tune "Write a limerick about Go"`)
	}

	lo, hi := 0.1, 1.2
	if v, ok, err := p.FlagFloat("min"); err != nil {
		return err
	} else if ok {
		lo = v
	}
	if v, ok, err := p.FlagFloat("max"); err != nil {
		return err
	} else if ok {
		hi = v
	}
	steps := p.FlagIntOrDefault("steps", 5)

	score := experiment.LengthEvaluator(p.FlagIntOrDefault("length", 500))
	if kw := p.FlagList("keywords"); len(kw) > 0 {
		score = experiment.KeywordEvaluator(kw...)
	}

	model := a.model()
	a.infof("Trying %d temperatures on %s...", steps+1, model)
	best, all, ok := experiment.NewPlayground(a.runner(), model).FindBestTemperature(ctx, prompt, score, lo, hi, steps)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return NewCommandError("tune", "run", "every run failed", nil)
	}

	if a.args.JSON {
		return a.printJSON(map[string]any{"best": best, "all": all})
	}
	rows := make([][]string, 0, len(all))
	for _, ts := range all {
		mark := ""
		if ts.Temperature == best.Temperature {
			mark = "*"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%.2f", ts.Temperature),
			fmt.Sprintf("%.1f", ts.Score),
			experiment.FormatDuration(ts.Result.Elapsed),
			mark,
		})
	}
	writeTable(a.out, []string{"TEMP", "SCORE", "TIME", "BEST"}, rows)
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Examples:
//   otk ask "What is the capital of France?"
//   otk ask --model qwen3:4b --thinking "Is 1001 prime?"
//   git diff | otk ask "Review this diff"

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/otk/internal/customize"
	"github.com/jeranaias/otk/internal/logging"
	"github.com/jeranaias/otk/internal/ollama"
)

func (a *App) runAsk(ctx context.Context) error {
	p := NewArgParser(a.args.Raw, "stream", "thinking", "raw")

	prompt := JoinPositionalArgs(p, 0)
	piped, err := a.readStdin()
	if err != nil {
		return err
	}
	if piped = strings.TrimSpace(piped); piped != "" {
		if prompt != "" {
			prompt += "\n\n" + piped
		} else {
			prompt = piped
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrMissingArgument("prompt", `otk ask "Why is the sky blue?"`)
	}

	m, err := a.buildModel(p)
	if err != nil {
		return err
	}

	if p.BoolFlag("stream") && !a.args.JSON {
		return a.askStream(ctx, m, prompt)
	}

	start := time.Now()
	raw, err := m.Generate(ctx, prompt)
	if err != nil {
		return NewCommandError("ask", "generate", "model "+m.Name(), err)
	}
	a.logger.Debug().Str("model", m.Name()).Dur("elapsed", time.Since(start)).Msg("answer received")

	if p.BoolFlag("raw") {
		fmt.Fprintln(a.out, raw)
		return nil
	}

	pr, err := a.resolver.Process(raw, m.Name())
	if err != nil {
		return err
	}
	if a.args.JSON {
		return a.printJSON(pr)
	}
	fmt.Fprint(a.out, a.render.Response(pr, p.BoolFlag("thinking")))
	if !strings.HasSuffix(pr.Content, "\n") && !a.render.Enabled() {
		fmt.Fprintln(a.out)
	}
	return nil
}

// askStream prints fragments as they arrive, then a timing footer on
// stderr. Streamed output is not normalized.
func (a *App) askStream(ctx context.Context, m *customize.Model, prompt string) error {
	stats := ollama.NewStreamStats()
	for frag, err := range m.GenerateStream(ctx, prompt) {
		if err != nil {
			fmt.Fprintln(a.out)
			return NewCommandError("ask", "stream", "model "+m.Name(), err)
		}
		stats.Observe(frag)
		fmt.Fprint(a.out, frag)
	}
	fmt.Fprintln(a.out)
	stats.Finalize()
	a.logger.Debug().Str("model", m.Name()).Int("tokens", stats.CompletionTokens).
		Dur("ttft", stats.TTFT).Dur("elapsed", stats.TotalDuration).Msg("stream finished")
	a.infof("%s", stats.Format())
	return nil
}

// buildModel assembles a customized model from the shared generation
// flags: --preset, --temperature, --system and --max-tokens.
func (a *App) buildModel(p *ArgParser) (*customize.Model, error) {
	b := customize.NewBuilder(a.model()).Logger(logging.Component("customize"))

	if preset := p.Flag("preset"); preset != "" {
		if _, ok := customize.Preset(preset); !ok {
			return nil, &ValidationError{
				Field:   "preset",
				Value:   preset,
				Reason:  "unknown preset",
				Example: strings.Join(customize.PresetNames(), ", "),
			}
		}
		b.Preset(preset)
	} else {
		b.Temperature(a.cfg.Chat.Temperature)
	}

	if t, ok, err := p.FlagFloat("temperature"); err != nil {
		return nil, err
	} else if ok {
		b.Temperature(t)
	}
	if n := p.FlagIntOrDefault("max-tokens", 0); n > 0 {
		b.MaxTokens(n)
	}

	system := p.FlagOrDefault("system", a.cfg.Chat.SystemPrompt)
	if system != "" {
		b.System(system)
	}

	b.Hook(customize.OnError, func(hc *customize.HookContext) error {
		a.logger.Debug().Err(hc.Err).Str("model", hc.Model).Msg("generation failed")
		return nil
	})
	return b.Build(customize.NewOllamaRuntime(a.client)), nil
}

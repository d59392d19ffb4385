// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package customize

import (
	"context"
	"errors"
	"iter"

	"github.com/rs/zerolog"

	"github.com/jeranaias/otk/internal/ollama"
)

// Runtime generates completions for a Model.
type Runtime interface {
	Generate(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions, onFragment func(string) error) error
}

// OllamaRuntime adapts *ollama.Client to Runtime.
type OllamaRuntime struct {
	client *ollama.Client
}

// NewOllamaRuntime wraps client.
func NewOllamaRuntime(client *ollama.Client) *OllamaRuntime {
	return &OllamaRuntime{client: client}
}

// Generate implements Runtime.
func (r *OllamaRuntime) Generate(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error) {
	resp, err := r.client.Generate(ctx, model, prompt, opts)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// GenerateStream implements Runtime.
func (r *OllamaRuntime) GenerateStream(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions, onFragment func(string) error) error {
	return r.client.GenerateStream(ctx, model, prompt, opts, func(chunk ollama.StreamChunk) error {
		if chunk.Content == "" {
			return nil
		}
		return onFragment(chunk.Content)
	})
}

// Model is a model name bound to a config, hooks and processors.
type Model struct {
	name    string
	runtime Runtime
	config  ModelConfig
	hooks   *Hooks
	pre     []Processor
	post    []Processor
	onError ErrorHandler
	logger  zerolog.Logger
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Config returns the sampling config.
func (m *Model) Config() ModelConfig { return m.config }

// Hooks returns the hook registry, for adding hooks after Build.
func (m *Model) Hooks() *Hooks { return m.hooks }

// Generate runs prompt through the full pipeline. If the runtime fails
// and an error handler is set, its result is returned instead of the
// error.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	hc := &HookContext{Model: m.name, Prompt: prompt, Metadata: map[string]any{}}
	m.hooks.Run(PreProcess, hc)
	hc.Prompt = Chain(m.pre...)(hc.Prompt)

	resp, err := m.runtime.Generate(ctx, m.name, hc.Prompt, m.config.GenerateOptions())
	if err != nil {
		return m.fail(hc, err)
	}

	hc.Response = resp
	m.hooks.Run(PreClean, hc)
	hc.Response = Chain(m.post...)(hc.Response)
	m.hooks.Run(PostClean, hc)
	m.hooks.Run(PostProcess, hc)
	return hc.Response, nil
}

// GenerateStream streams the reply. Pre-processors apply to the prompt
// and stream_chunk hooks see each fragment and may rewrite it;
// post-processors do not run. On failure the error handler's result is
// yielded as a final fragment when set.
func (m *Model) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		hc := &HookContext{Model: m.name, Prompt: prompt, Metadata: map[string]any{}}
		m.hooks.Run(PreProcess, hc)
		hc.Prompt = Chain(m.pre...)(hc.Prompt)

		err := m.runtime.GenerateStream(ctx, m.name, hc.Prompt, m.config.GenerateOptions(), func(frag string) error {
			chunk := &HookContext{Model: m.name, Prompt: hc.Prompt, Response: frag, Metadata: hc.Metadata}
			m.hooks.Run(StreamChunk, chunk)
			if !yield(chunk.Response, nil) {
				return errStop
			}
			return nil
		})
		if err == nil || errors.Is(err, errStop) {
			return
		}
		s, err := m.fail(hc, err)
		if err != nil {
			yield("", err)
			return
		}
		yield(s, nil)
	}
}

var errStop = errors.New("consumer stopped")

func (m *Model) fail(hc *HookContext, err error) (string, error) {
	hc.Err = err
	m.hooks.Run(OnError, hc)
	if m.onError != nil {
		m.logger.Debug().Err(err).Str("model", m.name).Msg("generation failed, using error handler")
		return m.onError(err), nil
	}
	return "", err
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder assembles a Model fluently.
type Builder struct {
	name    string
	config  ModelConfig
	hooks   []hookEntry
	pre     []Processor
	post    []Processor
	onError ErrorHandler
	logger  zerolog.Logger
}

type hookEntry struct {
	t    HookType
	hook Hook
}

// NewBuilder starts a builder for model with DefaultConfig.
func NewBuilder(model string) *Builder {
	return &Builder{name: model, config: DefaultConfig(), logger: zerolog.Nop()}
}

// Config replaces the whole config.
func (b *Builder) Config(c ModelConfig) *Builder { b.config = c; return b }

// Preset replaces the config with a named preset. Unknown names are
// ignored.
func (b *Builder) Preset(name string) *Builder {
	if c, ok := Preset(name); ok {
		b.config = c
	} else {
		b.logger.Debug().Str("preset", name).Msg("unknown preset ignored")
	}
	return b
}

// Temperature sets the temperature.
func (b *Builder) Temperature(t float64) *Builder {
	b.config = b.config.WithTemperature(t)
	return b
}

// TopP sets top_p.
func (b *Builder) TopP(p float64) *Builder {
	b.config = b.config.WithTopP(p)
	return b
}

// MaxTokens limits generated tokens.
func (b *Builder) MaxTokens(n int) *Builder {
	b.config = b.config.WithMaxTokens(n)
	return b
}

// System sets the system prompt.
func (b *Builder) System(s string) *Builder {
	b.config = b.config.WithSystemPrompt(s)
	return b
}

// Hook registers a hook.
func (b *Builder) Hook(t HookType, h Hook) *Builder {
	b.hooks = append(b.hooks, hookEntry{t, h})
	return b
}

// PreProcessor appends a prompt processor.
func (b *Builder) PreProcessor(p Processor) *Builder {
	b.pre = append(b.pre, p)
	return b
}

// PostProcessor appends a response processor.
func (b *Builder) PostProcessor(p Processor) *Builder {
	b.post = append(b.post, p)
	return b
}

// OnError sets the error handler.
func (b *Builder) OnError(h ErrorHandler) *Builder {
	b.onError = h
	return b
}

// Logger sets the logger for hook failures.
func (b *Builder) Logger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// Build creates the Model over rt.
func (b *Builder) Build(rt Runtime) *Model {
	hooks := NewHooks(b.logger)
	for _, e := range b.hooks {
		hooks.Add(e.t, e.hook)
	}
	return &Model{
		name:    b.name,
		runtime: rt,
		config:  b.config,
		hooks:   hooks,
		pre:     append([]Processor(nil), b.pre...),
		post:    append([]Processor(nil), b.post...),
		onError: b.onError,
		logger:  b.logger,
	}
}

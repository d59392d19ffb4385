// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package customize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/otk/internal/ollama"
)

type fakeRuntime struct {
	reply     string
	fragments []string
	err       error

	prompt string
	opts   *ollama.GenerateOptions
}

func (f *fakeRuntime) Generate(_ context.Context, _, prompt string, opts *ollama.GenerateOptions) (string, error) {
	f.prompt, f.opts = prompt, opts
	return f.reply, f.err
}

func (f *fakeRuntime) GenerateStream(_ context.Context, _, prompt string, opts *ollama.GenerateOptions, on func(string) error) error {
	f.prompt, f.opts = prompt, opts
	for _, frag := range f.fragments {
		if err := on(frag); err != nil {
			return err
		}
	}
	return f.err
}

func TestHooks_OrderAndErrorsSwallowed(t *testing.T) {
	h := NewHooks(zerolog.Nop())
	var order []string
	h.Add(PostProcess, func(*HookContext) error { order = append(order, "first"); return nil })
	h.Add(PostProcess, func(*HookContext) error { return errors.New("broken") })
	h.Add(PostProcess, func(*HookContext) error { panic("worse") })
	h.Add(PostProcess, func(*HookContext) error { order = append(order, "last"); return nil })

	h.Run(PostProcess, &HookContext{})
	require.Equal(t, []string{"first", "last"}, order)

	h.Remove(PostProcess)
	if h.Len(PostProcess) != 0 {
		t.Error("Remove should drop hooks")
	}
}

func TestParseHookType(t *testing.T) {
	for _, ht := range HookTypes {
		got, err := ParseHookType(string(ht))
		require.NoError(t, err)
		if got != ht {
			t.Errorf("ParseHookType(%q) = %q", ht, got)
		}
	}
	if _, err := ParseHookType("nope"); err == nil {
		t.Error("expected error for unknown hook type")
	}
}

func TestModelConfig_Immutable(t *testing.T) {
	base := DefaultConfig()
	hot := base.WithTemperature(1.5).WithStop("END")

	if base.Temperature != 0.7 || len(base.Stop) != 0 {
		t.Errorf("base modified: %+v", base)
	}
	if hot.Temperature != 1.5 || hot.Stop[0] != "END" {
		t.Errorf("copy wrong: %+v", hot)
	}

	opts := base.Options()
	if opts.Temperature != 0.7 || opts.TopP != 0.9 || opts.TopK != 40 || opts.RepeatPenalty != 1.1 || opts.NumPredict != 0 {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		topP float64
	}{
		{"creative", 0.9, 0.95},
		{"factual", 0.2, 0.5},
		{"balanced", 0.7, 0.9},
		{"code", 0.2, 0.95},
		{"conversational", 0.8, 0.92},
	}
	for _, tt := range tests {
		c, ok := Preset(tt.name)
		require.True(t, ok, tt.name)
		if c.Temperature != tt.temp || c.TopP != tt.topP {
			t.Errorf("%s: temp=%v topP=%v", tt.name, c.Temperature, c.TopP)
		}
	}
	if _, ok := Preset("chaotic"); ok {
		t.Error("unknown preset should not resolve")
	}
	require.Len(t, PresetNames(), 5)
}

func TestProcessors(t *testing.T) {
	tests := []struct {
		name string
		p    Processor
		in   string
		want string
	}{
		{"limit", LengthLimiter(5), "hello world", "hello..."},
		{"limit short", LengthLimiter(50), "hi", "hi"},
		{"filter", KeywordFilter("secret", ""), "a secret plan", "a [FILTERED] plan"},
		{"prefix", AddPrefix(">> "), "x", ">> x"},
		{"suffix", AddSuffix("!"), "x", "x!"},
		{"chain", Chain(AddPrefix("["), AddSuffix("]")), "x", "[x]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModel_GeneratePipeline(t *testing.T) {
	rt := &fakeRuntime{reply: "raw answer"}
	var seen []HookType
	record := func(ht HookType) Hook {
		return func(*HookContext) error { seen = append(seen, ht); return nil }
	}

	m := NewBuilder("llama3.2").
		Preset("factual").
		System("be terse").
		PreProcessor(AddPrefix("Q: ")).
		PostProcessor(AddSuffix(" [done]")).
		Hook(PreProcess, record(PreProcess)).
		Hook(PreClean, record(PreClean)).
		Hook(PostClean, Uppercase).
		Hook(PostClean, record(PostClean)).
		Hook(PostProcess, record(PostProcess)).
		Build(rt)

	got, err := m.Generate(context.Background(), "why?")
	require.NoError(t, err)

	if rt.prompt != "Q: why?" {
		t.Errorf("prompt sent = %q", rt.prompt)
	}
	if rt.opts.System != "be terse" || rt.opts.Options.Temperature != 0.2 {
		t.Errorf("options sent = %+v / %+v", rt.opts, rt.opts.Options)
	}
	if got != "RAW ANSWER [DONE]" {
		t.Errorf("response = %q", got)
	}
	require.Equal(t, []HookType{PreProcess, PreClean, PostClean, PostProcess}, seen)
}

func TestModel_PreProcessHookRewritesPrompt(t *testing.T) {
	rt := &fakeRuntime{reply: "ok"}
	m := NewBuilder("m").
		Hook(PreProcess, func(hc *HookContext) error { hc.Prompt = strings.TrimSpace(hc.Prompt); return nil }).
		Build(rt)

	_, err := m.Generate(context.Background(), "  padded  ")
	require.NoError(t, err)
	if rt.prompt != "padded" {
		t.Errorf("prompt = %q", rt.prompt)
	}
}

func TestModel_ErrorHandling(t *testing.T) {
	boom := errors.New("boom")

	var hookErr error
	plain := NewBuilder("m").
		Hook(OnError, func(hc *HookContext) error { hookErr = hc.Err; return nil }).
		Build(&fakeRuntime{err: boom})
	_, err := plain.Generate(context.Background(), "x")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if !errors.Is(hookErr, boom) {
		t.Errorf("error hook saw %v", hookErr)
	}

	handled := NewBuilder("m").
		OnError(func(err error) string { return "fallback: " + err.Error() }).
		Build(&fakeRuntime{err: boom})
	got, err := handled.Generate(context.Background(), "x")
	require.NoError(t, err)
	if got != "fallback: boom" {
		t.Errorf("got %q", got)
	}
}

func TestModel_GenerateStream(t *testing.T) {
	rt := &fakeRuntime{fragments: []string{"a", "b", "c"}}
	m := NewBuilder("m").
		Hook(StreamChunk, func(hc *HookContext) error { hc.Response = strings.ToUpper(hc.Response); return nil }).
		Build(rt)

	var got []string
	for frag, err := range m.GenerateStream(context.Background(), "x") {
		require.NoError(t, err)
		got = append(got, frag)
	}
	require.Equal(t, []string{"A", "B", "C"}, got)
}

func TestModel_GenerateStreamBreakAndError(t *testing.T) {
	rt := &fakeRuntime{fragments: []string{"a", "b", "c"}}
	m := NewBuilder("m").Build(rt)
	n := 0
	for range m.GenerateStream(context.Background(), "x") {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterations = %d", n)
	}

	failing := NewBuilder("m").
		OnError(func(error) string { return "sorry" }).
		Build(&fakeRuntime{fragments: []string{"partial "}, err: errors.New("cut")})
	var out []string
	for frag, err := range failing.GenerateStream(context.Background(), "x") {
		require.NoError(t, err)
		out = append(out, frag)
	}
	require.Equal(t, []string{"partial ", "sorry"}, out)
}

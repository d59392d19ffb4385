// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/otk/internal/chat"
	"github.com/jeranaias/otk/internal/config"
	"github.com/jeranaias/otk/internal/experiment"
	"github.com/jeranaias/otk/internal/ollama"
	"github.com/jeranaias/otk/internal/response"
	"github.com/jeranaias/otk/internal/storage"
)

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		bools    []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"list"},
			wantSub: "list",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"recent", "--limit", "50"},
			wantSub: "recent",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("limit") != "50" {
					t.Errorf("Flag(limit) = %q, want %q", p.Flag("limit"), "50")
				}
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"pull", "--timeout=2m"},
			wantSub: "pull",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("timeout") != "2m" {
					t.Errorf("Flag(timeout) = %q, want %q", p.Flag("timeout"), "2m")
				}
			},
		},
		{
			name:    "boolean flag does not eat positional",
			args:    []string{"--sequential", "llama3.2", "qwen3"},
			bools:   []string{"sequential"},
			wantSub: "llama3.2",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("sequential") {
					t.Error("BoolFlag(sequential) should be true")
				}
				if p.PositionalCount() != 2 {
					t.Errorf("PositionalCount() = %d, want 2", p.PositionalCount())
				}
			},
		},
		{
			name:    "repeated flag",
			args:    []string{"--pattern", "a=x", "--pattern", "b=y"},
			wantSub: "",
			validate: func(t *testing.T, p *ArgParser) {
				got := p.FlagAll("pattern")
				if len(got) != 2 || got[0] != "a=x" || got[1] != "b=y" {
					t.Errorf("FlagAll(pattern) = %v", got)
				}
			},
		},
		{
			name:    "negative number is a value",
			args:    []string{"tune", "--min", "-1"},
			wantSub: "tune",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("min") != "-1" {
					t.Errorf("Flag(min) = %q, want -1", p.Flag("min"))
				}
			},
		},
		{
			name:    "double dash ends flags",
			args:    []string{"ask", "--", "--not-a-flag", "text"},
			wantSub: "ask",
			validate: func(t *testing.T, p *ArgParser) {
				if p.HasFlag("not-a-flag") {
					t.Error("--not-a-flag should be positional")
				}
				if JoinPositionalArgs(p, 1) != "--not-a-flag text" {
					t.Errorf("JoinPositionalArgs = %q", JoinPositionalArgs(p, 1))
				}
			},
		},
		{
			name: "comma list and repeats",
			args: []string{"--models", "a,b", "--models", "c"},
			validate: func(t *testing.T, p *ArgParser) {
				got := p.FlagList("models")
				if strings.Join(got, " ") != "a b c" {
					t.Errorf("FlagList(models) = %v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args, tt.bools...)
			if parser.Subcommand() != tt.wantSub {
				t.Errorf("Subcommand() = %q, want %q", parser.Subcommand(), tt.wantSub)
			}
			if tt.validate != nil {
				tt.validate(t, parser)
			}
		})
	}
}

func TestArgParser_FlagIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		defaultVal int
		want       int
	}{
		{"flag present", []string{"cmd", "--limit", "10"}, 5, 10},
		{"flag missing uses default", []string{"cmd"}, 5, 5},
		{"invalid int uses default", []string{"cmd", "--limit", "abc"}, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewArgParser(tt.args).FlagIntOrDefault("limit", tt.defaultVal)
			if got != tt.want {
				t.Errorf("FlagIntOrDefault = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestArgParser_FlagFloat(t *testing.T) {
	p := NewArgParser([]string{"--temperature", "0.4", "--bad", "warm"})

	v, ok, err := p.FlagFloat("temperature")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 0.4, v, 1e-9)

	_, ok, err = p.FlagFloat("missing")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = p.FlagFloat("bad")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestParseBoolString(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "yes", "y", "1", "on"} {
		got, err := ParseBoolString(v)
		if err != nil || !got {
			t.Errorf("ParseBoolString(%q) = %v, %v", v, got, err)
		}
	}
	for _, v := range []string{"false", "no", "N", "0", "off"} {
		got, err := ParseBoolString(v)
		if err != nil || got {
			t.Errorf("ParseBoolString(%q) = %v, %v", v, got, err)
		}
	}
	if _, err := ParseBoolString("maybe"); err == nil {
		t.Error("ParseBoolString(maybe) should error")
	}
}

func TestParseIntWithValidation(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"42", 42, false},
		{"1", 1, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseIntWithValidation(tt.input, "count")
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseIntWithValidation(%q) = %d, %v", tt.input, got, err)
		}
	}
}

// =============================================================================
// PARSE TESTS (cli.go)
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{
			name:    "no arguments shows help",
			argv:    nil,
			wantCmd: CmdHelp,
		},
		{
			name:    "ask with prompt",
			argv:    []string{"ask", "What", "is", "Go?"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, []string{"What", "is", "Go?"}, a.Raw)
			},
		},
		{
			name:    "global flags before and after the command",
			argv:    []string{"-q", "ask", "--model", "qwen3:4b", "hi", "--json"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				require.True(t, a.Quiet)
				require.True(t, a.JSON)
				require.Equal(t, "qwen3:4b", a.Model)
				require.Equal(t, []string{"hi"}, a.Raw)
			},
		},
		{
			name:    "model with equals",
			argv:    []string{"chat", "--model=llama3.2"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "llama3.2", a.Model)
			},
		},
		{
			name:    "alias",
			argv:    []string{"benchmark", "--models", "a,b"},
			wantCmd: CmdBench,
		},
		{
			name:    "plain disables markdown",
			argv:    []string{"ask", "--no-markdown", "hi"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				require.True(t, a.Plain)
			},
		},
		{
			name:    "config path and log level",
			argv:    []string{"--config", "/tmp/otk.toml", "status", "--log-level", "debug"},
			wantCmd: CmdStatus,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "/tmp/otk.toml", a.ConfigPath)
				require.Equal(t, "debug", a.LogLevel)
			},
		},
		{
			name:    "help after a command",
			argv:    []string{"compare", "-h"},
			wantCmd: CmdHelp,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "compare", a.Topic)
			},
		},
		{
			name:    "help topic",
			argv:    []string{"help", "bench"},
			wantCmd: CmdHelp,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "bench", a.Topic)
			},
		},
		{
			name:    "unknown command",
			argv:    []string{"frobnicate"},
			wantCmd: CmdHelp,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "frobnicate", a.Topic)
			},
		},
		{
			name:    "version flag",
			argv:    []string{"--version"},
			wantCmd: CmdVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := Parse(tt.argv)
			if cmd != tt.wantCmd {
				t.Errorf("Parse(%v) command = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestPrintHelp_Topics(t *testing.T) {
	for topic := range commandHelp {
		var buf bytes.Buffer
		PrintHelp(&buf, topic)
		if !strings.Contains(buf.String(), "otk "+topic) {
			t.Errorf("help for %s does not mention its usage:\n%s", topic, buf.String())
		}
	}

	var buf bytes.Buffer
	PrintHelp(&buf, "")
	require.Contains(t, buf.String(), "compare")
}

// =============================================================================
// ERROR TESTS (errors.go)
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitGeneralError},
		{"cancelled", context.Canceled, ExitInterrupted},
		{"validation", NewValidationError("model", "x", "bad"), ExitUsageError},
		{"missing argument", ErrMissingArgument("name", "otk models pull NAME"), ExitUsageError},
		{"not found", ErrNotFound("model", "llama2"), ExitNotFoundError},
		{"model not found", ollama.ErrModelNotFound, ExitNotFoundError},
		{"not running", ollama.ErrNotRunning, ExitNetworkError},
		{"timeout", ollama.ErrTimeout, ExitTimeoutError},
		{"wrapped", fmt.Errorf("ask: %w", ollama.ErrNotRunning), ExitNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, ollama.ErrNotRunning, false)
	require.Contains(t, buf.String(), "Is Ollama running?")

	buf.Reset()
	DisplayError(&buf, NewValidationError("temperature", "9", "must be between 0 and 2"), true)
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Contains(t, fmt.Sprint(out), "temperature")
}

// =============================================================================
// APP HELPERS
// =============================================================================

type testApp struct {
	*App
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestApp(t *testing.T, cfg *config.Config, argv []string, stdin string) (*testApp, Command) {
	t.Helper()
	t.Setenv("OTK_HOME", t.TempDir())
	if cfg == nil {
		cfg = config.Default()
	}
	cmd, args := Parse(argv)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	app := NewApp(cfg, args, strings.NewReader(stdin), out, errOut)
	return &testApp{App: app, out: out, errOut: errOut}, cmd
}

func runApp(t *testing.T, cfg *config.Config, stdin string, argv ...string) (*testApp, error) {
	t.Helper()
	app, cmd := newTestApp(t, cfg, argv, stdin)
	return app, app.Run(context.Background(), cmd)
}

// =============================================================================
// NORMALIZE COMMAND
// =============================================================================

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		stdin   string
		want    []string
		notWant []string
	}{
		{
			name:    "thinking strips reasoning",
			argv:    []string{"normalize", "--type", "thinking"},
			stdin:   "<think>compare capitals</think>Paris",
			want:    []string{"Paris"},
			notWant: []string{"<think>", "compare capitals"},
		},
		{
			name:  "thinking shown on request",
			argv:  []string{"normalize", "--for", "deepseek-r1:7b", "--thinking"},
			stdin: "<think>compare capitals</think>Paris",
			want:  []string{"thinking> compare capitals", "Paris"},
		},
		{
			name:  "code blocks",
			argv:  []string{"normalize", "--type", "code"},
			stdin: "Here:\n```go\nfmt.Println(1)\n```\n",
			want:  []string{"block 1 (go)", "fmt.Println(1)"},
		},
		{
			name:  "custom patterns",
			argv:  []string{"normalize", "--pattern", `answer=Answer: (\w+)`},
			stdin: "Answer: yes",
			want:  []string{"answer", "yes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := runApp(t, nil, tt.stdin, append(tt.argv, "--plain")...)
			require.NoError(t, err)
			got := app.out.String()
			for _, w := range tt.want {
				require.Contains(t, got, w)
			}
			for _, w := range tt.notWant {
				require.NotContains(t, got, w)
			}
		})
	}
}

func TestNormalize_JSON(t *testing.T) {
	app, err := runApp(t, nil, "<think>a</think>b", "normalize", "--type", "thinking", "--json")
	require.NoError(t, err)

	var pr response.ProcessedResponse
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &pr))
	require.Equal(t, "b", pr.Content)
	require.Equal(t, []string{"a"}, pr.Thinking)
}

func TestNormalize_Errors(t *testing.T) {
	_, err := runApp(t, nil, "", "normalize", "--type", "thinking")
	require.Equal(t, ExitUsageError, ExitCode(err), "empty stdin")

	_, err = runApp(t, nil, "x", "normalize", "--type", "poetry")
	require.Equal(t, ExitUsageError, ExitCode(err), "unknown type")

	_, err = runApp(t, nil, "x", "normalize", "--pattern", "no-equals")
	require.Equal(t, ExitUsageError, ExitCode(err), "bad pattern")
}

// =============================================================================
// MODELS AND STATUS AGAINST A FAKE SERVER
// =============================================================================

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollama.ListModelsResponse{Models: []ollama.ModelInfo{
			{
				Name:       "deepseek-r1:7b",
				Size:       4_700_000_000,
				ModifiedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				Details:    ollama.ModelDetails{ParameterSize: "7.6B", QuantizationLevel: "Q4_K_M"},
			},
			{Name: "llama3.2:latest", Size: 2_000_000_000},
		}})
	})
	mux.HandleFunc("/api/delete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAskStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"Par","done":false}`+"\n")
		_, _ = io.WriteString(w, `{"response":"is","done":false}`+"\n")
		_, _ = io.WriteString(w, `{"response":"","done":true,"eval_count":2}`+"\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	app, err := runApp(t, serverConfig(srv.URL), "", "ask", "--stream", "Capital of France?")
	require.NoError(t, err)
	require.Equal(t, "Paris\n", app.out.String())
	require.Contains(t, app.errOut.String(), "2 tokens")

	app, err = runApp(t, serverConfig(srv.URL), "", "ask", "--stream", "--quiet", "Capital of France?")
	require.NoError(t, err)
	require.NotContains(t, app.errOut.String(), "tok/s")
}

func serverConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Ollama.URL = url
	cfg.Ollama.Timeout = config.Duration{Duration: 5 * time.Second}
	return cfg
}

func TestModelsList(t *testing.T) {
	srv := fakeOllama(t)
	app, err := runApp(t, serverConfig(srv.URL), "", "models", "list")
	require.NoError(t, err)

	got := app.out.String()
	require.Contains(t, got, "NAME")
	require.Contains(t, got, "deepseek-r1:7b")
	require.Contains(t, got, "7.6B")
	require.Contains(t, got, string(response.Thinking))
	require.Contains(t, got, "llama3.2:latest")
}

func TestModelsDelete_NotInstalled(t *testing.T) {
	srv := fakeOllama(t)
	_, err := runApp(t, serverConfig(srv.URL), "", "models", "rm", "ghost")
	require.Error(t, err)
	require.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestModels_UnknownSubcommand(t *testing.T) {
	_, err := runApp(t, nil, "", "models", "polish")
	require.Equal(t, ExitUsageError, ExitCode(err))
}

func TestStatus_JSON(t *testing.T) {
	srv := fakeOllama(t)
	app, err := runApp(t, serverConfig(srv.URL), "", "status", "--json", "-m", "deepseek-r1:7b")
	require.NoError(t, err)

	var rep StatusReport
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &rep))
	require.True(t, rep.Running)
	require.Equal(t, 2, rep.InstalledCount)
	require.True(t, rep.ModelInstalled)
	require.Equal(t, string(response.Thinking), rep.ResponseType)
	require.False(t, rep.ConfigExists)
}

func TestStatus_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	app, err := runApp(t, serverConfig(url), "", "status", "--json")
	require.NoError(t, err, "status reports a down server instead of failing")

	var rep StatusReport
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &rep))
	require.False(t, rep.Running)
	require.NotEmpty(t, rep.Error)
}

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := runApp(t, nil, "", "--config", path, "config", "init")
	require.NoError(t, err)
	require.FileExists(t, path)

	_, err = runApp(t, nil, "", "--config", path, "config", "init")
	require.Error(t, err, "init refuses to overwrite")

	app, err := runApp(t, nil, "", "--config", path, "config", "set", "chat.temperature", "0.25")
	require.NoError(t, err)
	require.Contains(t, app.out.String(), "chat.temperature = 0.25")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.InDelta(t, 0.25, cfg.Chat.Temperature, 1e-9)

	app, err = runApp(t, cfg, "", "--config", path, "config", "get", "chat.temperature")
	require.NoError(t, err)
	require.Equal(t, "0.25", strings.TrimSpace(app.out.String()))

	app, err = runApp(t, nil, "", "--config", path, "config", "path")
	require.NoError(t, err)
	require.Equal(t, path, strings.TrimSpace(app.out.String()))
}

func TestConfigSet_Rejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := runApp(t, nil, "", "--config", path, "config", "set", "chat.temperature", "9")
	require.Error(t, err, "out of range values fail validation")
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "nothing is written on failure")

	_, err = runApp(t, nil, "", "--config", path, "config", "set", "no.such.key", "1")
	require.Equal(t, ExitUsageError, ExitCode(err))

	_, err = runApp(t, nil, "", "--config", path, "config", "set", "chat.temperature")
	require.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConfigShowAndKeys(t *testing.T) {
	app, err := runApp(t, nil, "", "config", "show")
	require.NoError(t, err)
	require.Contains(t, app.out.String(), "[ollama]")
	require.Contains(t, app.out.String(), "default_model")

	app, err = runApp(t, nil, "", "config", "keys")
	require.NoError(t, err)
	require.Contains(t, app.out.String(), "ollama.url")
}

// =============================================================================
// RESULTS COMMAND
// =============================================================================

func TestResults(t *testing.T) {
	cfg := config.Default()
	cfg.Experiment.Database = filepath.Join(t.TempDir(), "results.db")

	store, err := storage.Open(cfg.Experiment.Database)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.SaveAll(ctx, storage.KindBench, "group-1234567890", []experiment.Result{
		{RunID: "r1", Model: "llama3.2", Prompt: "hello", StartedAt: now, Elapsed: time.Second, Tokens: 20},
		{RunID: "r2", Model: "qwen3", Prompt: "hello", StartedAt: now, Error: "timeout"},
	}))
	require.NoError(t, store.Close())

	app, err := runApp(t, cfg, "", "results")
	require.NoError(t, err)
	got := app.out.String()
	require.Contains(t, got, "llama3.2")
	require.Contains(t, got, "failed")
	require.Contains(t, got, "group-12")

	app, err = runApp(t, cfg, "", "results", "--model", "qwen3")
	require.NoError(t, err)
	require.NotContains(t, app.out.String(), "llama3.2")

	app, err = runApp(t, cfg, "", "results", "stats")
	require.NoError(t, err)
	require.Contains(t, app.out.String(), "AVG TIME")

	_, err = runApp(t, cfg, "", "results", "group", "nope")
	require.Equal(t, ExitNotFoundError, ExitCode(err))
}

// =============================================================================
// CHAT REPL
// =============================================================================

type fakeRuntime struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeRuntime) Chat(_ context.Context, _ string, _ []ollama.Message, _ *ollama.Options) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	r := f.replies[f.calls%len(f.replies)]
	f.calls++
	return r, nil
}

func (f *fakeRuntime) ChatStream(ctx context.Context, model string, msgs []ollama.Message, opts *ollama.Options, onFragment func(string) error) error {
	reply, err := f.Chat(ctx, model, msgs, opts)
	if err != nil {
		return err
	}
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := onFragment(word); err != nil {
			return err
		}
	}
	return nil
}

func newREPL(rt chat.Runtime, stream bool) (*chatREPL, *bytes.Buffer) {
	var out bytes.Buffer
	s := chat.NewSession(rt, "deepseek-r1:7b",
		chat.WithSystemMessage("Be brief."),
		chat.WithResolver(response.NewResolver()),
	)
	return &chatREPL{session: s, out: &out, render: NewRenderer(&out, true), stream: stream}, &out
}

func TestChatREPL_SendNormalizes(t *testing.T) {
	repl, out := newREPL(&fakeRuntime{replies: []string{"<think>recall</think>Paris"}}, false)

	quit := repl.handle(context.Background(), "Capital of France?")
	require.False(t, quit)
	require.Contains(t, out.String(), "Paris")
	require.NotContains(t, out.String(), "<think>")

	out.Reset()
	repl.handle(context.Background(), "/thinking")
	require.Contains(t, out.String(), "thinking> recall")
}

func TestChatREPL_Stream(t *testing.T) {
	repl, out := newREPL(&fakeRuntime{replies: []string{"one two three"}}, true)
	repl.handle(context.Background(), "count")
	require.Contains(t, out.String(), "one two three")
	require.Equal(t, 3, repl.session.Len(), "system, user and assistant")
}

func TestChatREPL_StreamStats(t *testing.T) {
	repl, out := newREPL(&fakeRuntime{replies: []string{"one two three"}}, true)
	repl.handle(context.Background(), "count")
	require.NotContains(t, out.String(), "tok/s")

	out.Reset()
	repl.stats = true
	repl.handle(context.Background(), "again")
	require.Contains(t, out.String(), "3 tokens")
	require.Contains(t, out.String(), "tok/s")
}

func TestChatREPL_RuntimeError(t *testing.T) {
	repl, out := newREPL(&fakeRuntime{err: ollama.ErrNotRunning}, false)
	quit := repl.handle(context.Background(), "hi")
	require.False(t, quit)
	require.Contains(t, out.String(), "error:")
}

func TestChatREPL_Commands(t *testing.T) {
	repl, out := newREPL(&fakeRuntime{replies: []string{"ok"}}, false)
	ctx := context.Background()

	tests := []struct {
		line  string
		quit  bool
		check func(*testing.T, string)
	}{
		{"/model", false, func(t *testing.T, s string) { require.Contains(t, s, "deepseek-r1:7b") }},
		{"/model qwen3:4b", false, func(t *testing.T, _ string) { require.Equal(t, "qwen3:4b", repl.session.Model()) }},
		{"/model bad name!", false, func(t *testing.T, s string) { require.Contains(t, s, "error:") }},
		{"/temp 0.2", false, func(t *testing.T, _ string) { require.InDelta(t, 0.2, repl.session.Temperature(), 1e-9) }},
		{"/temp 5", false, func(t *testing.T, s string) { require.Contains(t, s, "error:") }},
		{"/system", false, func(t *testing.T, s string) { require.Contains(t, s, "Be brief.") }},
		{"/system Be verbose.", false, func(t *testing.T, _ string) {
			sys, ok := repl.session.SystemMessage()
			require.True(t, ok)
			require.Equal(t, "Be verbose.", sys)
		}},
		{"/clear", false, func(t *testing.T, _ string) { require.Equal(t, 1, repl.session.Len()) }},
		{"/help", false, func(t *testing.T, s string) { require.Contains(t, s, "/exit") }},
		{"/bogus", false, func(t *testing.T, s string) { require.Contains(t, s, "unknown command") }},
		{"/save", false, func(t *testing.T, s string) { require.Contains(t, s, "error:") }},
		{"/quit", true, nil},
		{"/exit", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			if got := repl.handle(ctx, tt.line); got != tt.quit {
				t.Errorf("handle(%q) quit = %v, want %v", tt.line, got, tt.quit)
			}
			if tt.check != nil {
				tt.check(t, out.String())
			}
		})
	}
}

func TestChatREPL_SaveAndLoad(t *testing.T) {
	repl, out := newREPL(&fakeRuntime{replies: []string{"ok"}}, false)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	repl.handle(ctx, "hello")
	repl.handle(ctx, "/save "+path)
	require.Contains(t, out.String(), "saved 3 messages")

	fresh, out2 := newREPL(&fakeRuntime{replies: []string{"ok"}}, false)
	fresh.handle(ctx, "/load "+path)
	require.Contains(t, out2.String(), "loaded 3 messages")
	require.Equal(t, 3, fresh.session.Len())
}

func TestChatREPL_Copy(t *testing.T) {
	repl, out := newREPL(&fakeRuntime{replies: []string{"<think>x</think>Paris"}}, false)
	ctx := context.Background()

	var copied string
	repl.copy = func(s string) error { copied = s; return nil }

	repl.handle(ctx, "/copy")
	require.Contains(t, out.String(), "no answer to copy")

	repl.handle(ctx, "Capital of France?")
	out.Reset()
	repl.handle(ctx, "/copy")
	require.Equal(t, "Paris", copied)
	require.Contains(t, out.String(), "copied")

	repl.copy = nil
	out.Reset()
	repl.handle(ctx, "/copy")
	require.Contains(t, out.String(), "clipboard not available")
}

// =============================================================================
// TABLE OUTPUT
// =============================================================================

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	writeTable(&buf, []string{"NAME", "SIZE"}, [][]string{
		{"llama3.2", "2.0 GB"},
		{"模型", "1 GB"},
		{strings.Repeat("x", 80), "3 GB"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "NAME")
	require.Contains(t, lines[2], "模型")
	require.NotContains(t, lines[3], strings.Repeat("x", 80), "long cells are truncated")
}

// =============================================================================
// BENCHMARKS
// =============================================================================

func BenchmarkArgParser(b *testing.B) {
	args := []string{"--models", "a,b,c", "--iterations", "5", "--save", "Explain", "goroutines"}
	for b.Loop() {
		NewArgParser(args, "save")
	}
}

func BenchmarkParse(b *testing.B) {
	argv := []string{"-q", "compare", "--model", "llama3.2", "--sequential", "qwen3", "phi3", "--json"}
	for b.Loop() {
		Parse(argv)
	}
}

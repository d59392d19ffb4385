// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Command dispatch and shared command state.

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jeranaias/otk/internal/config"
	"github.com/jeranaias/otk/internal/logging"
	"github.com/jeranaias/otk/internal/models"
	"github.com/jeranaias/otk/internal/ollama"
	"github.com/jeranaias/otk/internal/response"
	"github.com/jeranaias/otk/internal/storage"
)

// App carries the configuration, clients and streams every command
// uses. Commands are methods on App.
type App struct {
	cfg    *config.Config
	args   Args
	logger zerolog.Logger

	client   *ollama.Client
	resolver *response.Resolver
	render   *Renderer

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewApp builds an App. The Ollama client is created from cfg.
func NewApp(cfg *config.Config, args Args, in io.Reader, out, errOut io.Writer) *App {
	return &App{
		cfg:    cfg,
		args:   args,
		logger: logging.Component("cli"),
		client: ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.Ollama.URL,
			Timeout:      cfg.Ollama.Timeout.Duration,
			DefaultModel: cfg.Ollama.DefaultModel,
		}),
		resolver: response.NewResolver(),
		render:   NewRenderer(out, args.Plain || args.JSON),
		in:       in,
		out:      out,
		errOut:   errOut,
	}
}

// Main parses argv, runs the command and returns the exit code.
func Main(ctx context.Context, argv []string) int {
	cmd, args := Parse(argv)

	switch cmd {
	case CmdHelp:
		PrintHelp(os.Stdout, args.Topic)
		if _, known := commandNames[args.Topic]; args.Topic != "" && !known {
			return ExitUsageError
		}
		return ExitSuccess
	case CmdVersion:
		PrintVersion(os.Stdout)
		return ExitSuccess
	}

	cfg, err := loadConfig(args)
	if err != nil {
		DisplayError(os.Stderr, err, args.JSON)
		return ExitCode(err)
	}
	config.SetGlobal(cfg)

	level := cfg.LogLevel
	switch {
	case args.Verbose:
		level = "debug"
	case args.LogLevel != "":
		level = args.LogLevel
	}
	logging.Init(os.Stderr, level)

	// chat handles interrupts per turn so Ctrl+C cancels one answer
	// instead of the whole session.
	if cmd != CmdChat {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	app := NewApp(cfg, args, os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(ctx, cmd); err != nil {
		DisplayError(os.Stderr, err, args.JSON)
		return ExitCode(err)
	}
	return ExitSuccess
}

func loadConfig(args Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		return config.LoadFromPath(args.ConfigPath)
	}
	return config.Load()
}

// Run executes cmd.
func (a *App) Run(ctx context.Context, cmd Command) error {
	a.logger.Debug().Str("command", cmd.String()).Strs("args", a.args.Raw).Msg("running command")

	switch cmd {
	case CmdAsk:
		return a.runAsk(ctx)
	case CmdChat:
		return a.runChat(ctx)
	case CmdModels:
		return a.runModels(ctx)
	case CmdCompare:
		return a.runCompare(ctx)
	case CmdBench:
		return a.runBench(ctx)
	case CmdAB:
		return a.runAB(ctx)
	case CmdTune:
		return a.runTune(ctx)
	case CmdNormalize:
		return a.runNormalize()
	case CmdCatalog:
		return a.runCatalog(ctx)
	case CmdResults:
		return a.runResults(ctx)
	case CmdStatus:
		return a.runStatus(ctx)
	case CmdConfig:
		return a.runConfig(ctx)
	case CmdVersion:
		PrintVersion(a.out)
		return nil
	default:
		PrintHelp(a.out, a.args.Topic)
		return nil
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// model returns the --model flag or the configured default.
func (a *App) model() string {
	if a.args.Model != "" {
		return a.args.Model
	}
	return a.cfg.Ollama.DefaultModel
}

func (a *App) manager() *models.Manager {
	return models.NewManager(a.client, logging.Component("models"))
}

// openStore opens the results database.
func (a *App) openStore() (*storage.Store, error) {
	path, err := a.cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("path", path).Msg("opening results database")
	return storage.Open(path)
}

// printJSON writes v as indented JSON.
func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readStdin reads all of stdin when it is not a terminal.
func (a *App) readStdin() (string, error) {
	if f, ok := a.in.(*os.File); ok && f == os.Stdin && IsTTY() {
		return "", nil
	}
	data, err := io.ReadAll(a.in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// infof prints a dim progress line unless --quiet or --json is set.
func (a *App) infof(format string, args ...any) {
	if a.args.Quiet || a.args.JSON {
		return
	}
	fmt.Fprintln(a.errOut, DimStyle.Render(fmt.Sprintf(format, args...)))
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Examples:
//   otk chat
//   otk chat --model qwen3:4b --system "Answer in one sentence."
//   otk chat --load ~/notes/session.yaml
//
// Ctrl+C cancels the answer being generated; Ctrl+D or /exit leaves.

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"

	"github.com/jeranaias/otk/internal/chat"
	"github.com/jeranaias/otk/internal/config"
	"github.com/jeranaias/otk/internal/logging"
	"github.com/jeranaias/otk/internal/ollama"
	"github.com/jeranaias/otk/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI wraps liner for line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI opens the terminal for line editing and loads history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}
	c.LoadHistory()
	return c
}

// LoadHistory reads saved input history, ignoring a missing file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput prompts for one line and records it in history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err != nil {
		return
	}
	if err := util.AtomicWriteFile(c.historyFile, buf.Bytes(), 0o600); err != nil {
		logger := logging.Component("cli")
		logger.Debug().Err(err).Msg("could not save chat history")
	}
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *App) runChat(ctx context.Context) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}
	p := NewArgParser(a.args.Raw, "no-stream")

	temp := a.cfg.Chat.Temperature
	if t, ok, err := p.FlagFloat("temperature"); err != nil {
		return err
	} else if ok {
		temp = t
	}

	session := chat.NewSession(chat.NewOllamaRuntime(a.client), a.model(),
		chat.WithSystemMessage(p.FlagOrDefault("system", a.cfg.Chat.SystemPrompt)),
		chat.WithTemperature(temp),
		chat.WithMaxHistory(a.cfg.Chat.MaxHistory),
		chat.WithAutoProcess(a.cfg.Chat.AutoProcess),
		chat.WithResolver(a.resolver),
		chat.WithLogger(logging.Component("chat")),
	)
	if path := p.Flag("load"); path != "" {
		if err := session.LoadFile(path); err != nil {
			return NewCommandError("chat", "load", path, err)
		}
	}

	repl := &chatREPL{
		session: session,
		out:     a.out,
		render:  a.render,
		stream:  !p.BoolFlag("no-stream"),
		stats:   !a.args.Quiet,
	}
	if !clipboard.Unsupported {
		repl.copy = clipboard.WriteAll
	}
	repl.banner()

	in := NewChatCLI()
	defer in.Close()

	for {
		line, err := in.ReadInput(PromptStyle.Render("you> "))
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(a.out, DimStyle.Render("(Ctrl+D or /exit to leave)"))
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(a.out)
			return nil
		case err != nil:
			return err
		}

		// Ctrl+C during generation cancels only this turn.
		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		quit := repl.handle(turnCtx, line)
		stop()
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

// =============================================================================
// REPL
// =============================================================================

// chatREPL handles one input line at a time. It has no terminal
// dependency, so slash commands can be exercised directly.
type chatREPL struct {
	session *chat.Session
	out     io.Writer
	render  *Renderer
	stream  bool
	stats   bool // timing footer after streamed replies
	copy    func(string) error
}

func (r *chatREPL) banner() {
	fmt.Fprintln(r.out, TitleStyle.Render("otk chat")+" "+DimStyle.Render("model "+r.session.Model()))
	if sys, ok := r.session.SystemMessage(); ok {
		fmt.Fprintln(r.out, DimStyle.Render("system: "+util.TruncateWidth(sys, 60)))
	}
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands."))
}

// handle processes one line and reports whether the user asked to quit.
func (r *chatREPL) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "/") {
		quit, err := r.command(line)
		if err != nil {
			fmt.Fprintln(r.out, ErrorStyle.Render("error: ")+err.Error())
		}
		return quit
	}
	if err := r.send(ctx, line); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(r.out, WarningStyle.Render("(cancelled)"))
			return false
		}
		fmt.Fprintln(r.out, ErrorStyle.Render("error: ")+err.Error())
	}
	return false
}

func (r *chatREPL) send(ctx context.Context, text string) error {
	if !r.stream {
		if _, err := r.session.Send(ctx, text); err != nil {
			return err
		}
		if pr := r.session.LastResponse(); pr != nil {
			fmt.Fprint(r.out, r.render.Response(pr, false))
		}
		fmt.Fprintln(r.out)
		return nil
	}

	stats := ollama.NewStreamStats()
	for frag, err := range r.session.SendStream(ctx, text) {
		if err != nil {
			fmt.Fprintln(r.out)
			return err
		}
		stats.Observe(frag)
		fmt.Fprint(r.out, frag)
	}
	fmt.Fprintln(r.out)
	if r.stats {
		stats.Finalize()
		fmt.Fprintln(r.out, DimStyle.Render(stats.Format()))
	}
	return nil
}

// command runs a slash command.
func (r *chatREPL) command(line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/exit", "/quit", "/q":
		return true, nil

	case "/help", "/h":
		fmt.Fprintln(r.out, commandHelp["chat"])

	case "/clear", "/c":
		r.session.Clear(true)
		fmt.Fprintln(r.out, DimStyle.Render("history cleared"))

	case "/system":
		if arg == "" {
			sys, ok := r.session.SystemMessage()
			if !ok {
				sys = "(none)"
			}
			fmt.Fprintln(r.out, sys)
			return false, nil
		}
		r.session.SetSystemMessage(arg)
		fmt.Fprintln(r.out, DimStyle.Render("system message updated"))

	case "/model":
		if arg == "" {
			fmt.Fprintln(r.out, r.session.Model())
			return false, nil
		}
		if !util.ValidateModelName(arg) {
			return false, NewValidationError("model", arg, "not a valid model name")
		}
		r.session.SetModel(arg)
		fmt.Fprintln(r.out, DimStyle.Render("model set to "+arg))

	case "/temp", "/temperature":
		if arg == "" {
			fmt.Fprintf(r.out, "%.2f\n", r.session.Temperature())
			return false, nil
		}
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil || t < 0 || t > 2 {
			return false, NewValidationError("temperature", arg, "must be between 0 and 2")
		}
		r.session.SetTemperature(t)

	case "/save":
		if arg == "" {
			return false, ErrMissingArgument("file", "/save chat.json")
		}
		if err := r.session.SaveFile(arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("saved %d messages to %s", r.session.Len(), arg)))

	case "/load":
		if arg == "" {
			return false, ErrMissingArgument("file", "/load chat.json")
		}
		if err := r.session.LoadFile(arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("loaded %d messages (model %s)", r.session.Len(), r.session.Model())))

	case "/thinking":
		blocks := r.session.LastThinking()
		if len(blocks) == 0 {
			fmt.Fprintln(r.out, DimStyle.Render("no reasoning in the last answer"))
			return false, nil
		}
		fmt.Fprint(r.out, r.render.Thinking(blocks))

	case "/history":
		fmt.Fprintln(r.out, chat.FormatHistory(r.session.History()))

	case "/copy":
		answer, ok := lastAssistant(r.session.History())
		if !ok {
			return false, errors.New("no answer to copy")
		}
		if r.copy == nil {
			return false, errors.New("clipboard not available")
		}
		if err := r.copy(answer); err != nil {
			return false, fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(r.out, DimStyle.Render("copied last answer to clipboard"))

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// lastAssistant returns the content of the newest non-empty assistant turn.
func lastAssistant(history []ollama.Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == ollama.RoleAssistant && history[i].Content != "" {
			return history[i].Content, true
		}
	}
	return "", false
}

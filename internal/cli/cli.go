// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command line parsing for otk.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the top-level command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdAsk
	CmdChat
	CmdModels
	CmdCompare
	CmdBench
	CmdAB
	CmdTune
	CmdNormalize
	CmdCatalog
	CmdResults
	CmdStatus
	CmdConfig
	CmdVersion
)

var commandNames = map[string]Command{
	"help":      CmdHelp,
	"ask":       CmdAsk,
	"chat":      CmdChat,
	"models":    CmdModels,
	"model":     CmdModels,
	"compare":   CmdCompare,
	"bench":     CmdBench,
	"benchmark": CmdBench,
	"ab":        CmdAB,
	"tune":      CmdTune,
	"normalize": CmdNormalize,
	"catalog":   CmdCatalog,
	"library":   CmdCatalog,
	"results":   CmdResults,
	"history":   CmdResults,
	"status":    CmdStatus,
	"s":         CmdStatus,
	"config":    CmdConfig,
	"version":   CmdVersion,
}

// String returns the canonical command name.
func (c Command) String() string {
	switch c {
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdModels:
		return "models"
	case CmdCompare:
		return "compare"
	case CmdBench:
		return "bench"
	case CmdAB:
		return "ab"
	case CmdTune:
		return "tune"
	case CmdNormalize:
		return "normalize"
	case CmdCatalog:
		return "catalog"
	case CmdResults:
		return "results"
	case CmdStatus:
		return "status"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds the global flags and the arguments left for the command.
type Args struct {
	Model      string
	ConfigPath string
	LogLevel   string
	Verbose    bool
	Quiet      bool
	JSON       bool
	Plain      bool // disable markdown rendering

	// Raw holds the arguments after the command name.
	Raw []string

	// Topic is the command help was requested for, if any.
	Topic string
}

// Parse splits argv (without the program name) into a command and its
// arguments. Global flags may appear before or after the command name.
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdHelp, args
	}

	name := strings.ToLower(remaining[0])
	switch name {
	case "-h", "--help":
		return CmdHelp, args
	case "-V", "--version":
		return CmdVersion, args
	}

	cmd, ok := commandNames[name]
	if !ok {
		args.Topic = name
		return CmdHelp, args
	}
	args.Raw = remaining[1:]

	if cmd == CmdHelp && len(args.Raw) > 0 {
		args.Topic = args.Raw[0]
	}
	for _, a := range args.Raw {
		if a == "-h" || a == "--help" {
			args.Topic = cmd.String()
			return CmdHelp, args
		}
	}
	return cmd, args
}

func parseGlobalFlags(argv []string) ([]string, Args) {
	var (
		remaining []string
		args      Args
	)
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		next := func() string {
			if i+1 < len(argv) {
				i++
				return argv[i]
			}
			return ""
		}

		switch {
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "--json":
			args.JSON = true
		case arg == "--plain" || arg == "--no-markdown":
			args.Plain = true
		case arg == "-m" || arg == "--model":
			args.Model = next()
		case strings.HasPrefix(arg, "--model="):
			args.Model = strings.TrimPrefix(arg, "--model=")
		case arg == "--config":
			args.ConfigPath = next()
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--log-level":
			args.LogLevel = next()
		case strings.HasPrefix(arg, "--log-level="):
			args.LogLevel = strings.TrimPrefix(arg, "--log-level=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, args
}

// =============================================================================
// HELP
// =============================================================================

const usageText = `otk - toolkit for local Ollama models

Usage:
  otk [global flags] <command> [arguments]

Commands:
  ask <prompt>              Ask a single question
  chat                      Start an interactive chat session
  models list|pull|rm|show  Manage installed models
  compare <prompt>          Run one prompt against several models
  bench [prompt]            Benchmark models on a prompt or a test suite
  ab <prompt>...            A/B test two models over several prompts
  tune <prompt>             Search for the best temperature
  normalize                 Normalize a model response read from stdin
  catalog                   Browse and pull models from the online library
  results                   Show saved experiment results
  status                    Show server, model and config status
  config                    Show or change configuration
  version                   Show version information
  help [command]            Show help

Global flags:
  -m, --model NAME          Model to use (overrides ollama.default_model)
  --config PATH             Use a different config file
  --log-level LEVEL         debug, info, warn or error
  --json                    Machine readable output
  --plain                   Disable markdown rendering
  -v, --verbose             Debug logging
  -q, --quiet               Minimal output
`

var commandHelp = map[string]string{
	"ask": `Usage: otk ask [flags] <prompt>

Flags:
  --system TEXT        System message
  --temperature N      Sampling temperature
  --preset NAME        creative, factual, balanced, code or conversational
  --stream             Print fragments as they arrive (no normalization)
  --thinking           Show extracted reasoning blocks
  --raw                Print the unprocessed model output

The prompt may also be piped on stdin.`,
	"chat": `Usage: otk chat [flags]

Flags:
  --system TEXT        System message
  --temperature N      Sampling temperature
  --load FILE          Resume a saved conversation (.json or .yaml)
  --no-stream          Wait for full, normalized answers

In-chat commands:
  /clear               Clear history (keeps the system message)
  /system [TEXT]       Show or set the system message
  /model [NAME]        Show or switch model
  /temp [N]            Show or set the temperature
  /save FILE           Save the conversation
  /load FILE           Load a conversation
  /thinking            Show reasoning from the last answer
  /history             Print the conversation
  /copy                Copy the last answer to the clipboard
  /help                List commands
  /exit                Leave (Ctrl+D also works)`,
	"models": `Usage: otk models <list|pull|rm|show|recommend> [name]

  list                 List installed models
  pull NAME            Download a model
  rm NAME              Delete a model
  show NAME            Show a model's parameters and template
  recommend            Show suggested models per use case`,
	"compare": `Usage: otk compare --models a,b,c [flags] <prompt>

Flags:
  --models LIST        Models to compare (comma separated or repeated)
  --sequential         Run one model at a time
  --temperature N      Sampling temperature
  --show               Print every response
  --save               Save results to the results database`,
	"bench": `Usage: otk bench --models a,b [flags] [prompt]

With a prompt, each model runs it --iterations times. Without one,
each model runs the test suite.

Flags:
  --models LIST        Models to benchmark (default: the configured model)
  --iterations N       Runs per model (default: experiment.iterations)
  --suite NAME         standard or quick (default: standard)
  --kind KIND          Only suite cases of this kind (repeatable)
  --save               Save results to the results database`,
	"ab": `Usage: otk ab --a MODEL --b MODEL [flags] <prompt>...

Each prompt is a separate round. Without prompts the quick suite is used.

Flags:
  --judge NAME         faster (default) or length
  --save               Save results to the results database`,
	"tune": `Usage: otk tune [flags] <prompt>

Flags:
  --min N --max N      Temperature range (default 0.1 to 1.2)
  --steps N            Number of steps (default 5)
  --keywords LIST      Score answers by keyword hits instead of length
  --length N           Target answer length for length scoring (default 500)`,
	"normalize": `Usage: otk normalize [flags] < response.txt

Flags:
  --type T             standard, thinking, code or custom
  --for MODEL          Pick the strategy from a model name instead
  --pattern NAME=RE    Extraction pattern for the custom strategy (repeatable)
  --thinking           Also print reasoning blocks`,
	"catalog": `Usage: otk catalog [tags NAME] [flags]

Without arguments an interactive browser opens. Pick a model, then a tag,
to pull it. On a non-terminal the model list is printed instead.

Flags:
  --pages N            Search pages to read (default: catalog.max_pages)
  --list               Print the list even on a terminal`,
	"results": `Usage: otk results [recent|stats|group ID] [flags]

Flags:
  --model NAME         Only results for this model
  --limit N            Maximum rows (default 20)`,
	"config": `Usage: otk config <show|get|set|path|keys|init|watch>

  show                 Print the effective configuration
  get KEY              Print one value (e.g. ollama.url)
  set KEY VALUE        Change a value and save the file
  path                 Print the config file path
  keys                 List settable keys
  init                 Write the default config file
  watch                Print the config each time the file changes`,
}

// PrintHelp writes general help, or help for topic when known.
func PrintHelp(w io.Writer, topic string) {
	if text, ok := commandHelp[topic]; ok {
		fmt.Fprintln(w, text)
		return
	}
	if topic != "" && topic != "help" {
		fmt.Fprintf(w, "Unknown command: %s\n\n", topic)
	}
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version and build information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "otk %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  built:  %s\n", BuildDate)
	fmt.Fprintf(w, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for otk.
//
// Every command is a method on App, which carries the loaded config,
// the Ollama client, the response resolver and the output streams.
// Main is the whole program: it parses arguments, loads configuration,
// sets up logging and maps the returned error to an exit code.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: global flags plus the raw arguments left for the command
//   - ArgParser: subcommand, flag and positional parsing for one command
//   - App: shared state and command implementations
//   - Renderer: markdown and code highlighting for terminal output
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Main(context.Background(), os.Args[1:]))
//	}
//
// # Commands Overview
//
// Models:
//   - ask, chat: one-shot questions and interactive sessions
//   - models: list, pull, delete and describe installed models
//   - catalog: browse and pull from the online model library
//
// Experiments:
//   - compare, bench, ab, tune: run prompts across models or settings
//   - results: saved experiment history
//
// Utilities:
//   - normalize: post-process a saved response
//   - status, config, version
//
// All commands support --json for machine-readable output.
package cli

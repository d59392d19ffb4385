// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration management.
//
// Examples:
//   otk config show
//   otk config get ollama.url
//   otk config set chat.temperature 0.4
//   otk config watch

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/otk/internal/config"
)

func (a *App) runConfig(ctx context.Context) error {
	p := NewArgParser(a.args.Raw)
	path, err := a.configPath()
	if err != nil {
		return err
	}

	switch sub := p.Subcommand(); sub {
	case "", "show":
		if a.args.JSON {
			return a.printJSON(a.cfg)
		}
		return toml.NewEncoder(a.out).Encode(a.cfg)

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "otk config get ollama.url")
		}
		v, err := a.cfg.Get(key)
		if err != nil {
			return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "otk config keys"}
		}
		if a.args.JSON {
			return a.printJSON(map[string]any{key: v})
		}
		fmt.Fprintln(a.out, toString(v))
		return nil

	case "set":
		key, value := p.Positional(1), JoinPositionalArgs(p, 2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "otk config set chat.temperature 0.4")
		}
		return a.configSet(path, key, value)

	case "path":
		fmt.Fprintln(a.out, path)
		return nil

	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(a.out, k)
		}
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil {
			return NewCommandError("config", "init", path+" already exists", nil)
		}
		if err := config.SaveTo(config.Default(), path); err != nil {
			return err
		}
		fmt.Fprintln(a.out, SuccessStyle.Render("Wrote "+path))
		return nil

	case "watch":
		return a.configWatch(ctx, path)

	default:
		return &ValidationError{Field: "subcommand", Value: sub, Reason: "unknown", Example: "otk config show|get|set|path|keys|init|watch"}
	}
}

func (a *App) configPath() (string, error) {
	if a.args.ConfigPath != "" {
		return a.args.ConfigPath, nil
	}
	return config.Path()
}

// configSet edits the file contents only, so environment overrides in
// effect right now are not written back.
func (a *App) configSet(path, key, value string) error {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: "value", Value: value, Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTo(cfg, path); err != nil {
		return err
	}
	a.logger.Info().Str("key", key).Str("path", path).Msg("config updated")
	if !a.args.Quiet {
		fmt.Fprintf(a.out, "%s = %s\n", key, value)
	}
	return nil
}

// configWatch prints the effective config each time the file changes,
// until interrupted.
func (a *App) configWatch(ctx context.Context, path string) error {
	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			fmt.Fprintln(a.errOut, ErrorStyle.Render("reload failed: ")+err.Error())
			return
		}
		config.SetGlobal(cfg)
		fmt.Fprintln(a.out, RenderSeparator())
		_ = toml.NewEncoder(a.out).Encode(cfg)
	})
	if err != nil {
		return err
	}
	a.infof("Watching %s (Ctrl+C to stop)", path)
	<-ctx.Done()
	return nil
}

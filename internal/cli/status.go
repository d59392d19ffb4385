// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command.
//
// Examples:
//   otk status
//   otk status --json
//
// Sections:
//   Server     Ollama URL and reachability
//   Model      Default model, whether it is installed, response type
//   Config     Config file, results database
//   Terminal   TTY and color support

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/otk/internal/config"
)

// StatusReport is the data shown by the status command.
type StatusReport struct {
	OllamaURL      string `json:"ollama_url"`
	Running        bool   `json:"running"`
	Error          string `json:"error,omitempty"`
	InstalledCount int    `json:"installed_models"`

	Model          string `json:"model"`
	ModelInstalled bool   `json:"model_installed"`
	ModelSize      string `json:"model_size,omitempty"`
	ResponseType   string `json:"response_type"`

	ConfigPath   string `json:"config_path"`
	ConfigExists bool   `json:"config_exists"`
	Database     string `json:"database"`
	SavedResults int    `json:"saved_results"`

	TTY    bool   `json:"tty"`
	Colors string `json:"colors"`
	Width  int    `json:"width"`
}

func (a *App) runStatus(ctx context.Context) error {
	rep := a.collectStatus(ctx)
	if a.args.JSON {
		return a.printJSON(rep)
	}

	fmt.Fprintln(a.out, TitleStyle.Render("otk status"))

	fmt.Fprintln(a.out, SectionStyle.Render("Server"))
	fmt.Fprintln(a.out, RenderKV("URL", rep.OllamaURL))
	if rep.Running {
		fmt.Fprintln(a.out, RenderKV("Ollama", RenderStatus("ok")+" running"))
		fmt.Fprintln(a.out, RenderKV("Installed", fmt.Sprintf("%d models", rep.InstalledCount)))
	} else {
		fmt.Fprintln(a.out, RenderKV("Ollama", RenderStatus("fail")+" "+rep.Error))
	}

	fmt.Fprintln(a.out, SectionStyle.Render("Model"))
	fmt.Fprintln(a.out, RenderKV("Default", rep.Model))
	switch {
	case !rep.Running:
		fmt.Fprintln(a.out, RenderKV("Installed", RenderStatus("unknown")))
	case rep.ModelInstalled:
		fmt.Fprintln(a.out, RenderKV("Installed", RenderStatus("ok")+" "+rep.ModelSize))
	default:
		fmt.Fprintln(a.out, RenderKV("Installed", RenderStatus("warn")+" run: otk models pull "+rep.Model))
	}
	fmt.Fprintln(a.out, RenderKV("Response type", rep.ResponseType))

	fmt.Fprintln(a.out, SectionStyle.Render("Config"))
	cfgState := "defaults (no file)"
	if rep.ConfigExists {
		cfgState = rep.ConfigPath
	}
	fmt.Fprintln(a.out, RenderKV("File", cfgState))
	fmt.Fprintln(a.out, RenderKV("Results", fmt.Sprintf("%s (%d saved)", rep.Database, rep.SavedResults)))

	fmt.Fprintln(a.out, SectionStyle.Render("Terminal"))
	fmt.Fprintln(a.out, RenderKV("TTY", rep.TTY))
	fmt.Fprintln(a.out, RenderKV("Colors", rep.Colors))
	fmt.Fprintln(a.out, RenderKV("Width", rep.Width))
	return nil
}

func (a *App) collectStatus(ctx context.Context) StatusReport {
	caps := GetTerminalCapabilities()
	rep := StatusReport{
		OllamaURL:    a.cfg.Ollama.URL,
		Model:        a.model(),
		ResponseType: string(a.resolver.Resolve(a.model())),
		TTY:          caps.IsStdoutTTY,
		Colors:       profileName(caps.ColorProfile),
		Width:        caps.Width,
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.client.CheckRunning(probeCtx); err != nil {
		rep.Error = err.Error()
	} else {
		rep.Running = true
		mgr := a.manager()
		if list, err := mgr.List(probeCtx); err == nil {
			rep.InstalledCount = len(list)
		}
		rep.ModelSize, rep.ModelInstalled, _ = mgr.Size(probeCtx, rep.Model)
	}

	if path, err := config.Path(); err == nil {
		rep.ConfigPath = path
		if a.args.ConfigPath != "" {
			rep.ConfigPath = a.args.ConfigPath
		}
		_, statErr := os.Stat(rep.ConfigPath)
		rep.ConfigExists = statErr == nil
	}

	if db, err := a.cfg.DatabasePath(); err == nil {
		rep.Database = db
		if _, statErr := os.Stat(db); statErr == nil {
			if store, err := a.openStore(); err == nil {
				if stats, err := store.Stats(ctx); err == nil {
					for _, s := range stats {
						rep.SavedResults += s.Runs
					}
				}
				store.Close()
			}
		}
	}
	return rep
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// catalog_cmd.go - Browse the online model library.
//
// Examples:
//   otk catalog                 Interactive browser
//   otk catalog --list          Print model names
//   otk catalog tags qwen3      Print the tags of one model

package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/otk/internal/catalog"
	"github.com/jeranaias/otk/internal/logging"
	"github.com/jeranaias/otk/internal/ui/browser"
)

func (a *App) runCatalog(ctx context.Context) error {
	p := NewArgParser(a.args.Raw, "list")
	scraper := catalog.New(a.cfg.Catalog.URL, logging.Component("catalog"))
	pages := p.FlagIntOrDefault("pages", a.cfg.Catalog.MaxPages)

	if p.Subcommand() == "tags" {
		name := p.Positional(1)
		if name == "" {
			return ErrMissingArgument("name", "otk catalog tags qwen3")
		}
		tags := scraper.Tags(ctx, name)
		if a.args.JSON {
			return a.printJSON(tags)
		}
		fmt.Fprintln(a.out, strings.Join(tags, "\n"))
		return nil
	}

	if p.BoolFlag("list") || a.args.JSON || !IsTTY() || !IsStdoutTTY() {
		names := scraper.Models(ctx, pages, func(page int, names []string) {
			a.infof("page %d: %d models", page, len(names))
		})
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.args.JSON {
			return a.printJSON(names)
		}
		if len(names) == 0 {
			return NewCommandError("catalog", "list", "no models found at "+scraper.BaseURL, nil)
		}
		fmt.Fprintln(a.out, strings.Join(names, "\n"))
		return nil
	}

	return a.browse(ctx, scraper, pages)
}

func (a *App) browse(ctx context.Context, scraper *catalog.Scraper, pages int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgr := a.manager()
	var installed []string
	if list, err := mgr.List(ctx); err != nil {
		a.logger.Debug().Err(err).Msg("could not list installed models")
	} else {
		for _, m := range list {
			installed = append(installed, m.Name)
		}
	}

	prog := tea.NewProgram(
		browser.New(ctx, scraper, mgr, pages, installed),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	final, err := prog.Run()
	if err != nil {
		return NewCommandError("catalog", "browse", "browser failed", err)
	}

	if bm, ok := final.(browser.Model); ok {
		for _, tag := range bm.Pulled() {
			fmt.Fprintln(a.out, SuccessStyle.Render("Pulled "+tag))
		}
	}
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// results_cmd.go - Saved experiment results.
//
// Examples:
//   otk results
//   otk results --model llama3.2 --limit 50
//   otk results stats
//   otk results group 6f1c...

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/otk/internal/experiment"
	"github.com/jeranaias/otk/internal/storage"
	"github.com/jeranaias/otk/internal/util"
)

func (a *App) runResults(ctx context.Context) error {
	p := NewArgParser(a.args.Raw)
	store, err := a.openStore()
	if err != nil {
		return NewCommandError("results", "open", "could not open results database", err)
	}
	defer store.Close()

	limit := p.FlagIntOrDefault("limit", 20)

	switch sub := p.Subcommand(); sub {
	case "", "recent", "list":
		var recs []storage.Record
		if model := a.args.Model; model != "" {
			recs, err = store.ByModel(ctx, model, limit)
		} else {
			recs, err = store.Recent(ctx, limit)
		}
		if err != nil {
			return err
		}
		return a.printRecords(recs)

	case "group":
		id := p.Positional(1)
		if id == "" {
			return ErrMissingArgument("id", "otk results group <id>")
		}
		recs, err := store.Group(ctx, id)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return ErrNotFound("result group", id)
		}
		return a.printRecords(recs)

	case "stats":
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		if a.args.JSON {
			return a.printJSON(stats)
		}
		rows := make([][]string, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, []string{
				s.Model,
				fmt.Sprintf("%d", s.Runs),
				fmt.Sprintf("%d", s.Failures),
				experiment.FormatDuration(s.AvgTime),
				fmt.Sprintf("%.0f", s.AvgToks),
			})
		}
		writeTable(a.out, []string{"MODEL", "RUNS", "FAILED", "AVG TIME", "AVG TOKENS"}, rows)
		return nil

	default:
		return &ValidationError{Field: "subcommand", Value: sub, Reason: "unknown", Example: "otk results recent|stats|group ID"}
	}
}

func (a *App) printRecords(recs []storage.Record) error {
	if a.args.JSON {
		return a.printJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No saved results. Use --save with compare, bench or ab.")
		return nil
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		status := experiment.FormatDuration(r.Elapsed)
		if r.Failed() {
			status = "failed"
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("01-02 15:04"),
			string(r.Kind),
			r.Model,
			status,
			util.TruncateWidth(r.Prompt, 40),
			util.TruncateRunesNoEllipsis(r.GroupID, 8),
		})
	}
	writeTable(a.out, []string{"WHEN", "KIND", "MODEL", "TIME", "PROMPT", "GROUP"}, rows)
	return nil
}

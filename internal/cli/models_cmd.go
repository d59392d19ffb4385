// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - Installed model management.
//
// Examples:
//   otk models
//   otk models pull qwen3:4b
//   otk models rm llama2
//   otk models show llama3.2

package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/otk/internal/models"
	"github.com/jeranaias/otk/internal/util"
)

func (a *App) runModels(ctx context.Context) error {
	p := NewArgParser(a.args.Raw)
	name := p.Positional(1)

	switch sub := p.Subcommand(); sub {
	case "", "list", "ls":
		return a.modelsList(ctx)
	case "pull":
		if name == "" {
			return ErrMissingArgument("name", "otk models pull llama3.2")
		}
		return a.modelsPull(ctx, name)
	case "rm", "delete", "remove":
		if name == "" {
			return ErrMissingArgument("name", "otk models rm llama3.2")
		}
		return a.modelsDelete(ctx, name)
	case "show", "info":
		if name == "" {
			name = a.model()
		}
		return a.modelsShow(ctx, name)
	case "recommend":
		return a.modelsRecommend()
	default:
		return &ValidationError{Field: "subcommand", Value: sub, Reason: "unknown", Example: "otk models list|pull|rm|show|recommend"}
	}
}

func (a *App) modelsList(ctx context.Context) error {
	list, err := a.manager().List(ctx)
	if err != nil {
		return NewCommandError("models", "list", "could not list models", err)
	}
	if a.args.JSON {
		return a.printJSON(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No models installed. Try: otk models pull "+a.cfg.Ollama.DefaultModel)
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, m := range list {
		rows = append(rows, []string{
			m.Name,
			m.Size,
			m.Details.ParameterSize,
			m.Details.QuantizationLevel,
			string(a.resolver.Resolve(m.Name)),
			m.Modified.Format("2006-01-02"),
		})
	}
	writeTable(a.out, []string{"NAME", "SIZE", "PARAMS", "QUANT", "TYPE", "MODIFIED"}, rows)
	return nil
}

func (a *App) modelsPull(ctx context.Context, name string) error {
	if !util.ValidateModelName(name) {
		return NewValidationError("model", name, "not a valid model name")
	}
	a.infof("Pulling %s", name)

	bar := newProgressLine(a.errOut)
	err := a.manager().Pull(ctx, name, func(pr models.Progress) {
		bar.update(pr.Status, pr.Percent())
	})
	bar.done()
	if err != nil {
		return NewCommandError("models", "pull", name, err)
	}
	if !a.args.Quiet {
		fmt.Fprintln(a.out, SuccessStyle.Render("Pulled "+name))
	}
	return nil
}

func (a *App) modelsDelete(ctx context.Context, name string) error {
	removed, err := a.manager().Delete(ctx, name)
	if err != nil {
		return NewCommandError("models", "rm", name, err)
	}
	if !removed {
		return ErrNotFound("model", name)
	}
	if !a.args.Quiet {
		fmt.Fprintln(a.out, SuccessStyle.Render("Deleted "+name))
	}
	return nil
}

func (a *App) modelsShow(ctx context.Context, name string) error {
	info, err := a.manager().Show(ctx, name)
	if err != nil {
		return NewCommandError("models", "show", name, err)
	}
	if a.args.JSON {
		return a.printJSON(info)
	}

	fmt.Fprintln(a.out, TitleStyle.Render(name))
	fmt.Fprintln(a.out, RenderKV("Family", info.Details.Family))
	fmt.Fprintln(a.out, RenderKV("Parameters", info.Details.ParameterSize))
	fmt.Fprintln(a.out, RenderKV("Quantization", info.Details.QuantizationLevel))
	fmt.Fprintln(a.out, RenderKV("Format", info.Details.Format))
	fmt.Fprintln(a.out, RenderKV("Response type", a.resolver.Resolve(name)))

	if strings.TrimSpace(info.Parameters) != "" {
		fmt.Fprintln(a.out, SectionStyle.Render("Parameters"))
		fmt.Fprintln(a.out, strings.TrimRight(info.Parameters, "\n"))
	}
	if strings.TrimSpace(info.Template) != "" {
		fmt.Fprintln(a.out, SectionStyle.Render("Template"))
		fmt.Fprintln(a.out, strings.TrimRight(a.render.Code(info.Template, "go-text-template"), "\n"))
	}
	return nil
}

func (a *App) modelsRecommend() error {
	recs := models.Recommendations()
	if a.args.JSON {
		return a.printJSON(recs)
	}
	uses := make([]string, 0, len(recs))
	for k := range recs {
		uses = append(uses, k)
	}
	sort.Strings(uses)

	rows := make([][]string, 0, len(uses))
	for _, u := range uses {
		rows = append(rows, []string{strings.ReplaceAll(u, "_", " "), strings.Join(recs[u], ", ")})
	}
	writeTable(a.out, []string{"USE CASE", "MODELS"}, rows)
	return nil
}

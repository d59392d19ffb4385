// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// normalize.go - Run a saved model response through a normalization strategy.
//
// Examples:
//   otk normalize --type thinking < answer.txt
//   otk normalize --for deepseek-r1:7b --thinking < answer.txt
//   otk normalize --type custom --pattern 'answer=Answer: (\w+)' < answer.txt

package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/otk/internal/response"
)

func (a *App) runNormalize() error {
	p := NewArgParser(a.args.Raw, "thinking")

	raw, err := a.readStdin()
	if err != nil {
		return err
	}
	if raw == "" {
		return ErrMissingArgument("stdin", "otk normalize --type thinking < answer.txt")
	}

	patterns, err := parsePatterns(p.FlagAll("pattern"))
	if err != nil {
		return err
	}

	var t response.ModelType
	switch {
	case p.Flag("type") != "":
		if t, err = response.ParseModelType(p.Flag("type")); err != nil {
			return &ValidationError{Field: "type", Value: p.Flag("type"), Reason: "unknown type", Example: "standard, thinking, code or custom"}
		}
	case p.Flag("for") != "":
		t = a.resolver.Resolve(p.Flag("for"))
	case len(patterns) > 0:
		t = response.Custom
	default:
		t = a.resolver.Resolve(a.model())
	}

	pr, err := a.resolver.Normalizer().Normalize(raw, t, patterns)
	if err != nil {
		return NewCommandError("normalize", string(t), "normalization failed", err)
	}
	if a.args.JSON {
		return a.printJSON(pr)
	}

	if p.BoolFlag("thinking") {
		fmt.Fprint(a.out, a.render.Thinking(pr.Thinking))
	}
	switch t {
	case response.Code:
		for i, b := range pr.CodeBlocks() {
			lang := b.Language
			if lang == "" {
				lang = detectLanguage(b.Code)
			}
			fmt.Fprintln(a.out, DimStyle.Render(fmt.Sprintf("--- block %d (%s)", i+1, orDash(lang))))
			fmt.Fprintln(a.out, strings.TrimRight(a.render.Code(b.Code, lang), "\n"))
		}
		if len(pr.CodeBlocks()) == 0 {
			fmt.Fprintln(a.out, pr.Content)
		}
	case response.Custom:
		fields := pr.Extracted()
		names := make([]string, 0, len(fields))
		for k := range fields {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintln(a.out, RenderKV(k, fields[k]))
		}
		fmt.Fprintln(a.out, pr.Content)
	default:
		fmt.Fprintln(a.out, pr.Content)
	}
	return nil
}

// parsePatterns turns NAME=REGEX flags into patterns, keeping order.
func parsePatterns(specs []string) ([]response.Pattern, error) {
	out := make([]response.Pattern, 0, len(specs))
	for _, s := range specs {
		name, expr, ok := strings.Cut(s, "=")
		if !ok || name == "" || expr == "" {
			return nil, &ValidationError{Field: "pattern", Value: s, Reason: "expected NAME=REGEX", Example: `--pattern 'answer=Answer: (\w+)'`}
		}
		out = append(out, response.Pattern{Name: name, Expr: expr})
	}
	return out, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

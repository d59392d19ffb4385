// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown and code rendering for model output.

package cli

import (
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/otk/internal/response"
)

// Renderer formats model output for a writer. Terminals get glamour
// markdown and chroma highlighting; anything else gets the text as is.
type Renderer struct {
	markdown *glamour.TermRenderer
	enabled  bool
}

// NewRenderer builds a Renderer for w. Rendering is off when w is not
// a terminal, colors are disabled, or plain is set.
func NewRenderer(w io.Writer, plain bool) *Renderer {
	r := &Renderer{}
	if plain || !ColorsEnabled() || !isTerminalWriter(w) {
		return r
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(GetTerminalWidth()-4, 100)),
	)
	if err != nil {
		return r
	}
	r.markdown = md
	r.enabled = true
	return r
}

// Enabled reports whether output is styled.
func (r *Renderer) Enabled() bool {
	return r.enabled
}

// Markdown renders text as markdown, falling back to the raw text.
func (r *Renderer) Markdown(text string) string {
	if !r.enabled || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// Code highlights a single code block.
func (r *Renderer) Code(code, language string) string {
	if !r.enabled {
		return code
	}
	return highlightCode(code, language)
}

// Thinking renders reasoning blocks as a dim, labelled section.
func (r *Renderer) Thinking(blocks []string) string {
	if len(blocks) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(ThinkingStyle.Render("thinking> " + strings.TrimSpace(b)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Response renders a normalized response. Reasoning is included only
// when showThinking is set.
func (r *Renderer) Response(pr *response.ProcessedResponse, showThinking bool) string {
	var sb strings.Builder
	if showThinking {
		if t := r.Thinking(pr.Thinking); t != "" {
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	}
	sb.WriteString(r.Markdown(pr.Content))
	return sb.String()
}

// highlightCode applies chroma highlighting for terminal output.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// detectLanguage guesses the language of an unlabelled code block.
func detectLanguage(code string) string {
	if lexer := lexers.Analyse(code); lexer != nil {
		return strings.ToLower(lexer.Config().Name)
	}
	return ""
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/jeranaias/otk/internal/util"
)

// maxCellWidth caps a column so one long prompt cannot push the table
// off screen.
const maxCellWidth = 48

// writeTable prints rows under a bold header, aligning columns by
// display width so CJK model names and prompts line up.
func writeTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = util.StringWidth(h)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], min(util.StringWidth(row[i]), maxCellWidth))
		}
	}

	line := func(cells []string, header bool) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = util.TruncateWidth(cells[i], maxCellWidth)
			}
			if i < len(widths)-1 {
				cell = util.PadRight(cell, widths[i])
			}
			parts[i] = cell
		}
		s := strings.TrimRight(strings.Join(parts, "  "), " ")
		if header {
			return SectionStyle.UnsetMarginTop().Render(s)
		}
		return s
	}

	fmt.Fprintln(w, line(headers, true))
	for _, row := range rows {
		fmt.Fprintln(w, line(row, false))
	}
}

// progressLine renders a one-line download indicator. Terminals get a
// gradient bar, other writers a plain percentage.
type progressLine struct {
	bar     progress.Model
	enabled bool
	w       io.Writer
	last    string
}

func newProgressLine(w io.Writer) *progressLine {
	return &progressLine{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		enabled: isTerminalWriter(w) && ColorsEnabled(),
		w:       w,
	}
}

// update prints status and, when the total is known, percent done.
func (p *progressLine) update(status string, percent float64) {
	if !p.enabled {
		// one line per status change keeps logs readable
		if status != p.last {
			fmt.Fprintln(p.w, status)
			p.last = status
		}
		return
	}
	line := util.PadRight(util.TruncateWidth(status, 28), 28)
	if percent >= 0 {
		line += " " + p.bar.ViewAs(percent/100) + fmt.Sprintf(" %5.1f%%", percent)
	}
	fmt.Fprintf(p.w, "\r%s", line)
}

// done ends the progress line.
func (p *progressLine) done() {
	if p.enabled {
		fmt.Fprintln(p.w)
	}
}

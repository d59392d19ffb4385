// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for otk commands.
//
// Colors are disabled for non-TTY output and honor NO_COLOR and
// FORCE_COLOR (see terminal.go).

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/otk/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan)

	// SectionStyle is used for section headers within a command.
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.TextPrimary).
			MarginTop(1)

	// LabelStyle is used for left-aligned field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(18)

	ValueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// DimStyle is used for hints and secondary information.
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(styles.Overlay)

	// ThinkingStyle renders extracted reasoning blocks.
	ThinkingStyle = lipgloss.NewStyle().
			Foreground(styles.Amber).
			Italic(true)

	// PromptStyle is the chat input prompt.
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule, 60 columns by default.
func RenderSeparator(width ...int) string {
	w := 60
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("-", w))
}

// RenderKV renders one "label value" line.
func RenderKV(label string, value any) string {
	return LabelStyle.Render(label) + ValueStyle.Render(toString(value))
}

// RenderStatus renders a status marker for ok, fail, warn or anything else.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return SuccessStyle.Render(styles.StatusIndicators.Success)
	case "error", "fail", "failed":
		return ErrorStyle.Render(styles.StatusIndicators.Error)
	case "warning", "warn", "pending":
		return WarningStyle.Render(styles.StatusIndicators.Warning)
	default:
		return DimStyle.Render("[" + strings.ToUpper(status) + "]")
	}
}

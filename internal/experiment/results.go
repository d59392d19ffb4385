// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package experiment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/otk/internal/util"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Result is the outcome of one prompt against one model.
type Result struct {
	RunID     string         `json:"run_id"`
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	Response  string         `json:"response"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Tokens    int            `json:"tokens_estimated"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Failed reports whether the run produced an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// TokensPerSecond returns the estimated generation speed.
func (r Result) TokensPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Tokens) / r.Elapsed.Seconds()
}

// Comparison holds one prompt run against several models.
type Comparison struct {
	ID      string   `json:"id"`
	Models  []string `json:"models"`
	Prompt  string   `json:"prompt"`
	Results []Result `json:"results"`

	// Rankings maps each successful model to its elapsed time.
	Rankings map[string]time.Duration `json:"rankings"`

	// Winner is the fastest successful model, empty if all failed.
	Winner string `json:"winner,omitempty"`
}

// Ranking is one entry of Comparison.Ranked.
type Ranking struct {
	Model   string
	Elapsed time.Duration
}

// rank fills Rankings and Winner from Results, ignoring failures.
func (c *Comparison) rank() {
	c.Rankings = make(map[string]time.Duration)
	for _, r := range c.Results {
		if r.Failed() {
			continue
		}
		c.Rankings[r.Model] = r.Elapsed
	}
	c.Winner = ""
	if ranked := c.Ranked(); len(ranked) > 0 {
		c.Winner = ranked[0].Model
	}
}

// Ranked returns successful models from fastest to slowest.
func (c *Comparison) Ranked() []Ranking {
	out := make([]Ranking, 0, len(c.Rankings))
	for model, d := range c.Rankings {
		out = append(out, Ranking{Model: model, Elapsed: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Elapsed == out[j].Elapsed {
			return out[i].Model < out[j].Model
		}
		return out[i].Elapsed < out[j].Elapsed
	})
	return out
}

// Result returns the result for model.
func (c *Comparison) Result(model string) (Result, bool) {
	for _, r := range c.Results {
		if r.Model == model {
			return r, true
		}
	}
	return Result{}, false
}

// Errors returns the failed results.
func (c *Comparison) Errors() []Result {
	var out []Result
	for _, r := range c.Results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// BenchmarkResult summarizes repeated runs of one prompt on one model.
// Statistics cover successful iterations only.
type BenchmarkResult struct {
	Model           string        `json:"model"`
	Iterations      int           `json:"iterations"`
	Succeeded       int           `json:"succeeded"`
	AvgTime         time.Duration `json:"avg_time"`
	MinTime         time.Duration `json:"min_time"`
	MaxTime         time.Duration `json:"max_time"`
	StdDev          time.Duration `json:"std_dev"`
	AvgTokens       float64       `json:"avg_tokens"`
	TokensPerSecond float64       `json:"tokens_per_second"`
	Error           string        `json:"error,omitempty"`
}

// =============================================================================
// FORMATTING
// =============================================================================

// Summary renders a comparison as a plain-text report.
func (c *Comparison) Summary() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 70) + "\n")
	b.WriteString("Model Comparison: " + util.TruncateRunes(c.Prompt, 50) + "\n")
	b.WriteString(strings.Repeat("=", 70) + "\n")

	for _, r := range c.Results {
		b.WriteString("\n" + r.Model + "\n")
		b.WriteString(strings.Repeat("-", 70) + "\n")
		if r.Failed() {
			b.WriteString("Error: " + r.Error + "\n")
			continue
		}
		b.WriteString("Response: " + util.TruncateRunes(r.Response, 200) + "\n")
		fmt.Fprintf(&b, "Time: %s | Tokens: ~%d | Speed: %s\n",
			FormatDuration(r.Elapsed), r.Tokens, FormatTokensPerSec(r.TokensPerSecond()))
	}

	if c.Winner != "" {
		fmt.Fprintf(&b, "\nFastest: %s (%s)\n", c.Winner, FormatDuration(c.Rankings[c.Winner]))
	}
	return b.String()
}

// Summary renders benchmark statistics as a plain-text report.
func (r BenchmarkResult) Summary() string {
	var b strings.Builder
	b.WriteString("Benchmark Results: " + r.Model + "\n")
	if r.Error != "" {
		b.WriteString("Error: " + r.Error + "\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Iterations:    %d/%d\n", r.Succeeded, r.Iterations)
	fmt.Fprintf(&b, "Average Time:  %s\n", FormatDuration(r.AvgTime))
	fmt.Fprintf(&b, "Min Time:      %s\n", FormatDuration(r.MinTime))
	fmt.Fprintf(&b, "Max Time:      %s\n", FormatDuration(r.MaxTime))
	fmt.Fprintf(&b, "Std Dev:       %.2fs\n", r.StdDev.Seconds())
	fmt.Fprintf(&b, "Avg Tokens:    %.0f\n", r.AvgTokens)
	fmt.Fprintf(&b, "Tokens/Second: %s\n", FormatTokensPerSec(r.TokensPerSecond))
	return b.String()
}

// FormatTokensPerSec formats tokens per second for display.
func FormatTokensPerSec(tps float64) string {
	if tps == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f t/s", tps)
}

// FormatDuration formats duration for display.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "N/A"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

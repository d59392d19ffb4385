// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package response

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// StrategyFunc turns raw model output into a ProcessedResponse.
// patterns is only consulted by strategies that need it.
type StrategyFunc func(raw string, patterns []Pattern) (*ProcessedResponse, error)

// ThinkingTags are the reasoning delimiters recognized by the thinking
// strategy. The first is the common one; the others are vendor variants.
var ThinkingTags = []string{"think", "reasoning", "thought"}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	leadingTag     = regexp.MustCompile(`^<[^>]+>\s*`)
	strayThinking  = compileStrayTags(ThinkingTags)
	codeFence      = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)```")
	thinkingRegion = compileTagPatterns(ThinkingTags)
)

func compileTagPatterns(tags []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(tags))
	for _, tag := range tags {
		q := regexp.QuoteMeta(tag)
		out = append(out, regexp.MustCompile(`(?s)<`+q+`>(.*?)</`+q+`>`))
	}
	return out
}

// compileStrayTags matches unpaired reasoning delimiters at the start of the
// text, left behind when a model's output was cut mid-block or the opening
// tag was part of the prompt template.
func compileStrayTags(tags []string) *regexp.Regexp {
	quoted := make([]string, len(tags))
	for i, tag := range tags {
		quoted[i] = regexp.QuoteMeta(tag)
	}
	return regexp.MustCompile(`^(?:</?(?:` + strings.Join(quoted, "|") + `)\b[^>]*>\s*)+`)
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Normalizer dispatches raw text to a strategy by ModelType.
// It is safe for concurrent use.
type Normalizer struct {
	mu         sync.RWMutex
	strategies map[ModelType]StrategyFunc
}

// NewNormalizer returns a Normalizer with the four built-in strategies.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		strategies: map[ModelType]StrategyFunc{
			Standard: normalizeStandard,
			Thinking: normalizeThinking,
			Code:     normalizeCode,
			Custom:   normalizeCustom,
		},
	}
}

// RegisterStrategy adds or replaces the strategy for t.
func (n *Normalizer) RegisterStrategy(t ModelType, fn StrategyFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.strategies[t] = fn
}

// Normalize applies the strategy registered for t. Unknown tags fall back
// to standard. Malformed markup never produces an error; only an invalid
// custom pattern does.
func (n *Normalizer) Normalize(raw string, t ModelType, patterns []Pattern) (*ProcessedResponse, error) {
	n.mu.RLock()
	fn, ok := n.strategies[t]
	if !ok {
		fn = n.strategies[Standard]
	}
	n.mu.RUnlock()
	return fn(raw, patterns)
}

var defaultNormalizer = NewNormalizer()

// Normalize runs the built-in strategy for t.
func Normalize(raw string, t ModelType, patterns []Pattern) (*ProcessedResponse, error) {
	return defaultNormalizer.Normalize(raw, t, patterns)
}

// =============================================================================
// STRATEGIES
// =============================================================================

func normalizeStandard(raw string, _ []Pattern) (*ProcessedResponse, error) {
	return &ProcessedResponse{
		Content:    Cleanup(raw),
		RawContent: raw,
		Metadata:   map[string]any{MetaModelType: Standard},
	}, nil
}

type span struct {
	start, end int
	inner      string
}

func normalizeThinking(raw string, _ []Pattern) (*ProcessedResponse, error) {
	var spans []span
	for _, re := range thinkingRegion {
		for _, m := range re.FindAllStringSubmatchIndex(raw, -1) {
			spans = append(spans, span{start: m[0], end: m[1], inner: raw[m[2]:m[3]]})
		}
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var (
		b        strings.Builder
		thinking []string
		pos      int
	)
	for _, s := range spans {
		// Overlapping regions of different tags: the earlier one wins.
		if s.start < pos {
			continue
		}
		b.WriteString(raw[pos:s.start])
		thinking = append(thinking, strings.TrimSpace(s.inner))
		pos = s.end
	}
	b.WriteString(raw[pos:])

	content := b.String()
	if len(thinking) > 0 {
		// Models that close a reasoning block often open an answer wrapper
		// such as <final> or <answer> right after it.
		content = leadingTag.ReplaceAllString(content, "")
	}
	content = strayThinking.ReplaceAllString(strings.TrimSpace(content), "")
	return &ProcessedResponse{
		Content:    Cleanup(content),
		Thinking:   thinking,
		RawContent: raw,
		Metadata: map[string]any{
			MetaModelType:     Thinking,
			MetaThinkingCount: len(thinking),
		},
	}, nil
}

func normalizeCode(raw string, _ []Pattern) (*ProcessedResponse, error) {
	blocks := ExtractCodeBlocks(raw)
	return &ProcessedResponse{
		Content:    Cleanup(raw),
		RawContent: raw,
		Metadata: map[string]any{
			MetaModelType:      Code,
			MetaCodeBlocks:     blocks,
			MetaCodeBlockCount: len(blocks),
		},
	}, nil
}

func normalizeCustom(raw string, patterns []Pattern) (*ProcessedResponse, error) {
	text := raw
	extracted := make(map[string]any)

	for _, p := range patterns {
		re, err := regexp.Compile("(?s)" + p.Expr)
		if err != nil {
			return nil, fmt.Errorf("custom pattern %q: %w", p.Name, err)
		}
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		extracted[p.Name] = matchValues(matches, re.NumSubexp())
		text = re.ReplaceAllLiteralString(text, "")
	}

	return &ProcessedResponse{
		Content:    Cleanup(text),
		RawContent: raw,
		Metadata: map[string]any{
			MetaModelType: Custom,
			MetaExtracted: extracted,
		},
	}, nil
}

// matchValues shapes matches the way callers expect to read them: the whole
// match without groups, the group with one, every group with several.
func matchValues(matches [][]string, groups int) any {
	switch groups {
	case 0, 1:
		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = m[groups]
		}
		return out
	default:
		out := make([][]string, len(matches))
		for i, m := range matches {
			out[i] = m[1:]
		}
		return out
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Cleanup strips trailing whitespace from every line, collapses runs of
// three or more newlines to two and trims the whole text. Lines holding
// only whitespace count as blank.
func Cleanup(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\f\v")
	}
	text = excessNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// ExtractCodeBlocks returns the fenced code blocks in text. Blocks without a
// language tag are reported as "text".
func ExtractCodeBlocks(text string) []CodeBlock {
	matches := codeFence.FindAllStringSubmatch(text, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		lang := m[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, CodeBlock{Language: lang, Code: strings.TrimSpace(m[2])})
	}
	return blocks
}

// CleanThinkingTags strips reasoning blocks from text and returns them.
func CleanThinkingTags(text string) (string, []string) {
	r, _ := normalizeThinking(text, nil)
	return r.Content, r.Thinking
}

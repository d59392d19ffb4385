// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package customize

import (
	"strings"

	"github.com/jeranaias/otk/internal/util"
)

// Processor transforms a prompt or a response.
type Processor func(string) string

// ErrorHandler turns a generation error into a substitute response.
type ErrorHandler func(error) string

// Chain applies processors left to right.
func Chain(ps ...Processor) Processor {
	return func(s string) string {
		for _, p := range ps {
			s = p(s)
		}
		return s
	}
}

// LengthLimiter cuts text to n characters plus "..." when longer.
func LengthLimiter(n int) Processor {
	return func(s string) string {
		if len([]rune(s)) <= n {
			return s
		}
		return util.TruncateRunesNoEllipsis(s, n) + "..."
	}
}

// KeywordFilter replaces every occurrence of each word with [FILTERED].
func KeywordFilter(words ...string) Processor {
	return func(s string) string {
		for _, w := range words {
			if w != "" {
				s = strings.ReplaceAll(s, w, "[FILTERED]")
			}
		}
		return s
	}
}

// AddPrefix prepends prefix.
func AddPrefix(prefix string) Processor {
	return func(s string) string { return prefix + s }
}

// AddSuffix appends suffix.
func AddSuffix(suffix string) Processor {
	return func(s string) string { return s + suffix }
}

// Uppercase is a post_clean hook that upper-cases the response.
func Uppercase(hc *HookContext) error {
	hc.Response = strings.ToUpper(hc.Response)
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.json")

	require.NoError(t, AtomicWriteFile(path, []byte("hello"), 0o600))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	if string(got) != "hello" {
		t.Errorf("content = %q, want hello", got)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestAtomicWriteFile_OverwritesWithoutTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0o644))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	if string(got) != "second" {
		t.Errorf("content = %q, want second", got)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	if len(entries) != 1 {
		t.Errorf("expected only target file, found %d entries", len(entries))
	}
}

// =============================================================================
// DISPLAY TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"日本語テキスト", 5, "日本..."},
		{"hello", 2, "he"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"日本語テキスト", 7, "日本..."},
		{"日本語", 3, "日"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		got := TruncateWidth(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if StringWidth(got) > tt.max {
			t.Errorf("TruncateWidth(%q, %d) too wide: %d", tt.in, tt.max, StringWidth(got))
		}
	}
}

func TestStringWidthAndPad(t *testing.T) {
	if w := StringWidth("hello世界"); w != 9 {
		t.Errorf("StringWidth = %d, want 9", w)
	}
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadRight("世界", 6); StringWidth(got) != 6 {
		t.Errorf("PadRight CJK width = %d", StringWidth(got))
	}
}

// =============================================================================
// TEXT TESTS
// =============================================================================

func TestFormatResponse(t *testing.T) {
	in := "short line\nthe quick brown fox jumps over the lazy dog"
	got := FormatResponse(in, 15)
	for _, line := range strings.Split(got, "\n") {
		if StringWidth(line) > 15 {
			t.Errorf("line %q exceeds width", line)
		}
	}
	if !strings.HasPrefix(got, "short line\nthe quick brown\n") {
		t.Errorf("unexpected wrap:\n%s", got)
	}
	if strings.Join(strings.Fields(got), " ") != strings.Join(strings.Fields(in), " ") {
		t.Error("wrapping must not lose words")
	}
}

func TestFormatResponse_LongWord(t *testing.T) {
	got := FormatResponse("a supercalifragilistic b", 5)
	want := "a\nsupercalifragilistic\nb"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 || EstimateTokens("abcdefgh") != 2 || EstimateTokens("abc") != 0 {
		t.Error("EstimateTokens should be len/4")
	}
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks := ChunkText(text, 10, 2)
	require.Len(t, chunks, 3)
	if len(chunks[0]) != 10 || len(chunks[1]) != 10 || len(chunks[2]) != 9 {
		t.Errorf("chunk lengths %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	if got := ChunkText("", 10, 2); len(got) != 0 {
		t.Errorf("empty text gave %d chunks", len(got))
	}
	// overlap >= size must terminate
	if got := ChunkText("abcdef", 3, 5); len(got) != 2 {
		t.Errorf("got %v", got)
	}
	// multi-byte characters stay intact
	for _, c := range ChunkText("日本語テキスト", 3, 1) {
		if !strings.ContainsRune("日本語テキスト", []rune(c)[0]) {
			t.Errorf("broken chunk %q", c)
		}
	}
}

func TestFillTemplate(t *testing.T) {
	got := FillTemplate("Hi {name}, you are {age}. {unknown}", map[string]any{"name": "Ada", "age": 36})
	if got != "Hi Ada, you are 36. {unknown}" {
		t.Errorf("got %q", got)
	}
}

func TestCreateSystemPrompt(t *testing.T) {
	got := CreateSystemPrompt("Python expert", "legacy code", "Be concise", "Show examples")
	want := "You are a Python expert.\n\nContext: legacy code\n\nPlease follow these guidelines:\n1. Be concise\n2. Show examples"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	if CreateSystemPrompt("bot", "") != "You are a bot." {
		t.Error("bare role prompt")
	}
}

func TestValidateModelName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"llama3.2", true},
		{"qwen2.5:7b", true},
		{"deepseek-r1:1.5b", true},
		{"user/model:latest", true},
		{"", false},
		{"bad name", false},
		{"model:tag:extra", false},
		{"model:", false},
	}
	for _, tt := range tests {
		if got := ValidateModelName(tt.name); got != tt.want {
			t.Errorf("ValidateModelName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBatchProcess(t *testing.T) {
	var batches []int
	got := BatchProcess([]int{1, 2, 3, 4, 5}, 2, func(i int) int { return i * i }, func(b, total int) {
		batches = append(batches, b)
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})
	want := []int{1, 4, 9, 16, 25}
	require.Equal(t, want, got)
	require.Equal(t, []int{1, 2, 3}, batches)
}

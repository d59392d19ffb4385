// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 4 << 20

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
// Ollama streams newline-delimited JSON objects for chat, generate and pull.
type StreamReader struct {
	reader  *bufio.Reader
	model   string
	skipped int
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReaderSize(r, 64<<10)}
}

// Next decodes the next non-empty, well-formed line into v.
// It returns false at end of stream. Malformed lines are skipped.
func (s *StreamReader) Next(v any) (bool, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > maxLineSize {
			return false, &ClientError{Type: ErrTypeInvalidResponse, Message: "stream line too long"}
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if jerr := json.Unmarshal(line, v); jerr == nil {
				return true, nil
			}
			s.skipped++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
		}
	}
}

// streamLine covers both the chat (message.content) and generate (response)
// streaming shapes.
type streamLine struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	DoneReason         string `json:"done_reason,omitempty"`
	Error              string `json:"error,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream is complete, the callback fails, or the context
// is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
		}

		chunk, ok, err := s.readChunk()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if callback != nil {
			if err := callback(*chunk); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
}

// readChunk reads and converts a single line from the stream.
func (s *StreamReader) readChunk() (*StreamChunk, bool, error) {
	var line streamLine
	ok, err := s.Next(&line)
	if err != nil || !ok {
		return nil, ok, err
	}
	if line.Error != "" {
		return nil, false, &ClientError{Type: ErrTypeInvalidResponse, Message: line.Error}
	}

	if line.Model != "" {
		s.model = line.Model
	}

	content := line.Message.Content
	if content == "" {
		content = line.Response
	}

	chunk := &StreamChunk{
		Content:    content,
		Done:       line.Done,
		DoneReason: line.DoneReason,
		Model:      s.model,
	}

	if line.Done {
		chunk.TotalDuration = time.Duration(line.TotalDuration)
		chunk.LoadDuration = time.Duration(line.LoadDuration)
		chunk.PromptEvalDuration = time.Duration(line.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(line.EvalDuration)
		chunk.PromptTokens = line.PromptEvalCount
		chunk.CompletionTokens = line.EvalCount
	}

	return chunk, true, nil
}

// Skipped returns the number of malformed lines ignored so far.
func (s *StreamReader) Skipped() int {
	return s.skipped
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats times a streamed reply as the caller sees it. Ollama sends
// about one token per chunk, so fragments are counted as tokens.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	CompletionTokens int

	TTFT            time.Duration // Time to first token
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{StartTime: time.Now()}
}

// Observe records one received fragment. Empty fragments are ignored.
func (s *StreamStats) Observe(fragment string) {
	if fragment == "" {
		return
	}
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
	s.CompletionTokens++
}

// Finalize stops the clock and computes the rate.
func (s *StreamStats) Finalize() {
	s.finalizeAt(time.Now())
}

// finalizeAt measures the rate from the first token, so model load time
// does not drag it down.
func (s *StreamStats) finalizeAt(end time.Time) {
	s.EndTime = end
	s.TotalDuration = end.Sub(s.StartTime)
	s.TokensPerSecond = 0
	if s.FirstTokenTime.IsZero() {
		return
	}
	if gen := end.Sub(s.FirstTokenTime); gen > 0 {
		s.TokensPerSecond = float64(s.CompletionTokens) / gen.Seconds()
	}
}

// Format returns a one-line summary such as "2.4s | 120 tokens | 50.0 tok/s | TTFT 310ms".
func (s *StreamStats) Format() string {
	total := s.TotalDuration
	dur := fmt.Sprintf("%.1fs", total.Seconds())
	if total < time.Second {
		dur = fmt.Sprintf("%dms", total.Milliseconds())
	}
	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms",
		dur, s.CompletionTokens, s.TokensPerSecond, s.TTFT.Milliseconds())
}

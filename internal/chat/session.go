// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/otk/internal/ollama"
	"github.com/jeranaias/otk/internal/response"
)

const (
	// DefaultTemperature is the sampling temperature for new sessions.
	DefaultTemperature = 0.7

	// DefaultMaxHistory is the message budget for new sessions.
	DefaultMaxHistory = 50

	// minHistory leaves room for a system message and the pending user turn.
	minHistory = 2
)

// errStreamAbandoned marks a stream the consumer stopped reading.
var errStreamAbandoned = errors.New("stream abandoned by consumer")

// Session is one conversation with one model.
type Session struct {
	id          string
	runtime     Runtime
	model       string
	temperature float64
	maxHistory  int
	autoProcess bool
	resolver    *response.Resolver
	options     *ollama.Options
	logger      zerolog.Logger

	messages []ollama.Message
	last     *response.ProcessedResponse
	created  time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithSystemMessage starts the history with a system message.
func WithSystemMessage(content string) Option {
	return func(s *Session) {
		if content != "" {
			s.SetSystemMessage(content)
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Session) { s.temperature = t }
}

// WithMaxHistory sets how many messages are kept, system message included.
// Values below 2 are raised to 2.
func WithMaxHistory(n int) Option {
	return func(s *Session) {
		if n < minHistory {
			n = minHistory
		}
		s.maxHistory = n
	}
}

// WithAutoProcess toggles normalization of replies.
func WithAutoProcess(on bool) Option {
	return func(s *Session) { s.autoProcess = on }
}

// WithResolver sets the resolver used to normalize replies.
func WithResolver(r *response.Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithOptions sets extra sampling options. The session temperature always
// overrides opts.Temperature.
func WithOptions(opts *ollama.Options) Option {
	return func(s *Session) { s.options = opts }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session for model.
func NewSession(rt Runtime, model string, opts ...Option) *Session {
	s := &Session{
		id:          uuid.New().String(),
		runtime:     rt,
		model:       model,
		temperature: DefaultTemperature,
		maxHistory:  DefaultMaxHistory,
		autoProcess: true,
		logger:      zerolog.Nop(),
		created:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.autoProcess && s.resolver == nil {
		s.resolver = response.NewResolver(response.DefaultEntries()...)
	}
	s.logger = s.logger.With().Str("session", s.id).Str("model", s.model).Logger()
	return s
}

// =============================================================================
// TURNS
// =============================================================================

// Send appends text as a user turn, asks the model and returns the
// (normalized) reply. On runtime failure the error is returned and the user
// turn stays in the history.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.appendUser(text)

	start := time.Now()
	raw, err := s.runtime.Chat(ctx, s.model, s.History(), s.requestOptions())
	if err != nil {
		s.logger.Warn().Err(err).Msg("chat request failed")
		return "", err
	}

	final := raw
	s.last = nil
	if s.autoProcess && s.resolver != nil {
		processed, err := s.resolver.Process(raw, s.model)
		if err != nil {
			return "", err
		}
		s.last = processed
		final = processed.Content
	}

	s.appendAssistant(final)
	s.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("history", len(s.messages)).
		Msg("turn complete")
	return final, nil
}

// SendStream appends text as a user turn and streams the reply. Each
// fragment is handed to the loop body before the next one is read from
// the runtime. The assistant turn, the raw concatenation of fragments, is
// recorded only when the stream ends normally; breaking out of the loop
// or a runtime error leaves it unrecorded. Streamed replies are not
// normalized.
func (s *Session) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.appendUser(text)

		var b strings.Builder
		err := s.runtime.ChatStream(ctx, s.model, s.History(), s.requestOptions(), func(frag string) error {
			b.WriteString(frag)
			if !yield(frag, nil) {
				return errStreamAbandoned
			}
			return nil
		})

		switch {
		case errors.Is(err, errStreamAbandoned):
			s.logger.Debug().Msg("stream abandoned, assistant turn not recorded")
			return
		case err != nil:
			s.logger.Warn().Err(err).Msg("chat stream failed")
			yield("", err)
			return
		}

		s.appendAssistant(b.String())
	}
}

func (s *Session) appendUser(text string) {
	s.messages = append(s.messages, ollama.NewUserMessage(text))
	s.trim()
}

func (s *Session) appendAssistant(text string) {
	s.messages = append(s.messages, ollama.NewAssistantMessage(text))
	s.trim()
}

func (s *Session) requestOptions() *ollama.Options {
	opts := ollama.Options{}
	if s.options != nil {
		opts = *s.options
	}
	opts.Temperature = s.temperature
	return &opts
}

// trim drops the oldest non-system messages until the history fits the
// budget. A system message at position 0 always survives.
func (s *Session) trim() {
	if len(s.messages) <= s.maxHistory {
		return
	}
	if s.hasSystem() {
		keep := s.messages[len(s.messages)-(s.maxHistory-1):]
		s.messages = append([]ollama.Message{s.messages[0]}, keep...)
		return
	}
	s.messages = append([]ollama.Message(nil), s.messages[len(s.messages)-s.maxHistory:]...)
}

func (s *Session) hasSystem() bool {
	return len(s.messages) > 0 && s.messages[0].Role == ollama.RoleSystem
}

// =============================================================================
// HISTORY
// =============================================================================

// Clear empties the history. With keepSystem the system message survives.
func (s *Session) Clear(keepSystem bool) {
	if keepSystem && s.hasSystem() {
		s.messages = []ollama.Message{s.messages[0]}
	} else {
		s.messages = nil
	}
	s.last = nil
}

// History returns a copy of the messages.
func (s *Session) History() []ollama.Message {
	out := make([]ollama.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Session) Len() int {
	return len(s.messages)
}

// SetSystemMessage replaces the system message, or inserts one at position 0.
func (s *Session) SetSystemMessage(content string) {
	msg := ollama.NewSystemMessage(content)
	if s.hasSystem() {
		s.messages[0] = msg
		return
	}
	s.messages = append([]ollama.Message{msg}, s.messages...)
}

// SystemMessage returns the current system message, if any.
func (s *Session) SystemMessage() (string, bool) {
	if !s.hasSystem() {
		return "", false
	}
	return s.messages[0].Content, true
}

// LastThinking returns the reasoning blocks of the last normalized reply,
// or nil.
func (s *Session) LastThinking() []string {
	if s.last == nil {
		return nil
	}
	return s.last.Thinking
}

// LastMetadata returns the metadata of the last normalized reply, or nil.
func (s *Session) LastMetadata() map[string]any {
	if s.last == nil {
		return nil
	}
	return s.last.Metadata
}

// LastResponse returns the last normalized reply, or nil.
func (s *Session) LastResponse() *response.ProcessedResponse {
	return s.last
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the model name.
func (s *Session) Model() string { return s.model }

// SetModel switches the model for subsequent turns.
func (s *Session) SetModel(model string) { s.model = model }

// Temperature returns the sampling temperature.
func (s *Session) Temperature() float64 { return s.temperature }

// SetTemperature changes the sampling temperature for subsequent turns.
func (s *Session) SetTemperature(t float64) { s.temperature = t }

// MaxHistory returns the message budget.
func (s *Session) MaxHistory() int { return s.maxHistory }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.created }

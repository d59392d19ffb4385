// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/otk/internal/ollama"
	"github.com/jeranaias/otk/internal/util"
)

// Format is a history serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks a format from a file extension; unknown extensions
// use JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Transcript is the persisted form of a session.
type Transcript struct {
	Model       string           `json:"model" yaml:"model"`
	Temperature float64          `json:"temperature" yaml:"temperature"`
	Messages    []ollama.Message `json:"messages" yaml:"messages"`
}

// Validate checks roles and that a system message, if any, comes first.
func (t *Transcript) Validate() error {
	for i, m := range t.Messages {
		if !ollama.ValidRole(m.Role) {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
		if m.Role == ollama.RoleSystem && i != 0 {
			return fmt.Errorf("message %d: system message must be first", i)
		}
	}
	return nil
}

// Transcript snapshots the session.
func (s *Session) Transcript() Transcript {
	return Transcript{Model: s.model, Temperature: s.temperature, Messages: s.History()}
}

// Export writes the session to w.
func (s *Session) Export(w io.Writer, format Format) error {
	t := s.Transcript()
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

// Import replaces the history, model and temperature with the contents of
// r. Fields missing from the document keep their current values. The
// session is left untouched if the document is invalid.
func (s *Session) Import(r io.Reader, format Format) error {
	var doc struct {
		Model       *string          `json:"model" yaml:"model"`
		Temperature *float64         `json:"temperature" yaml:"temperature"`
		Messages    []ollama.Message `json:"messages" yaml:"messages"`
	}

	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	}

	t := Transcript{Messages: doc.Messages}
	if err := t.Validate(); err != nil {
		return err
	}

	if doc.Model != nil {
		s.model = *doc.Model
	}
	if doc.Temperature != nil {
		s.temperature = *doc.Temperature
	}
	s.messages = t.Messages
	s.last = nil
	s.logger = s.logger.With().Str("model", s.model).Logger()
	return nil
}

// SaveFile exports the session to path, choosing the format by extension.
func (s *Session) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := s.Export(&buf, FormatForPath(path)); err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	s.logger.Debug().Str("path", path).Int("messages", len(s.messages)).Msg("history saved")
	return nil
}

// LoadFile imports the session from path, choosing the format by extension.
func (s *Session) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	defer f.Close()
	return s.Import(f, FormatForPath(path))
}

// FormatHistory renders messages as "Role: content" paragraphs.
func FormatHistory(messages []ollama.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		role := m.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

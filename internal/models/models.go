// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models is a thin management facade over the local model store:
// list, pull, delete, describe, plus a curated recommendation table.
package models

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/otk/internal/ollama"
)

// Registry is the subset of the runtime API the Manager needs.
// *ollama.Client satisfies it.
type Registry interface {
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
	Pull(ctx context.Context, name string, callback ollama.PullCallback) error
	Delete(ctx context.Context, name string) error
	Show(ctx context.Context, name string) (*ollama.ShowModelResponse, error)
}

// Model describes an installed model.
type Model struct {
	Name      string              `json:"name"`
	Size      string              `json:"size"`
	SizeBytes int64               `json:"size_bytes"`
	Modified  time.Time           `json:"modified"`
	Details   ollama.ModelDetails `json:"details"`
}

// Info is the description returned by Show.
type Info struct {
	Modelfile  string              `json:"modelfile"`
	Parameters string              `json:"parameters"`
	Template   string              `json:"template"`
	Details    ollama.ModelDetails `json:"details"`
}

// Progress is a pull progress event.
type Progress = ollama.PullProgress

// Manager manages locally installed models.
type Manager struct {
	registry Registry
	logger   zerolog.Logger
}

// NewManager creates a Manager over registry.
func NewManager(registry Registry, logger zerolog.Logger) *Manager {
	return &Manager{registry: registry, logger: logger.With().Str("component", "models").Logger()}
}

// List returns the installed models sorted by name.
func (m *Manager) List(ctx context.Context) ([]Model, error) {
	infos, err := m.registry.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Model, 0, len(infos))
	for _, info := range infos {
		out = append(out, Model{
			Name:      info.Name,
			Size:      ollama.FormatBytes(info.Size),
			SizeBytes: info.Size,
			Modified:  info.ModifiedAt,
			Details:   info.Details,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Pull downloads name, reporting progress to onProgress when non-nil.
func (m *Manager) Pull(ctx context.Context, name string, onProgress func(Progress)) error {
	m.logger.Info().Str("model", name).Msg("pulling model")
	var cb ollama.PullCallback
	if onProgress != nil {
		cb = ollama.PullCallback(onProgress)
	}
	if err := m.registry.Pull(ctx, name, cb); err != nil {
		m.logger.Warn().Err(err).Str("model", name).Msg("pull failed")
		return err
	}
	return nil
}

// Delete removes name. It reports false without error when the model was
// not installed.
func (m *Manager) Delete(ctx context.Context, name string) (bool, error) {
	if err := m.registry.Delete(ctx, name); err != nil {
		if ollama.IsModelNotFound(err) {
			return false, nil
		}
		m.logger.Warn().Err(err).Str("model", name).Msg("delete failed")
		return false, err
	}
	m.logger.Info().Str("model", name).Msg("model deleted")
	return true, nil
}

// Show describes name.
func (m *Manager) Show(ctx context.Context, name string) (*Info, error) {
	resp, err := m.registry.Show(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Info{
		Modelfile:  resp.Modelfile,
		Parameters: resp.Parameters,
		Template:   resp.Template,
		Details:    resp.Details,
	}, nil
}

// Find returns the installed model matching name. A name without a tag
// matches its ":latest" variant.
func (m *Manager) Find(ctx context.Context, name string) (Model, bool, error) {
	list, err := m.List(ctx)
	if err != nil {
		return Model{}, false, err
	}
	for _, model := range list {
		if SameModel(model.Name, name) {
			return model, true, nil
		}
	}
	return Model{}, false, nil
}

// Exists reports whether name is installed.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	_, ok, err := m.Find(ctx, name)
	return ok, err
}

// Size returns the formatted size of name.
func (m *Manager) Size(ctx context.Context, name string) (string, bool, error) {
	model, ok, err := m.Find(ctx, name)
	return model.Size, ok, err
}

// SameModel compares model references, treating a missing tag as ":latest".
func SameModel(a, b string) bool {
	return withTag(a) == withTag(b)
}

func withTag(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return name + ":latest"
}

// Recommendations maps use cases to model names worth trying.
func Recommendations() map[string][]string {
	return map[string][]string{
		"general_chat": {"llama3.2", "mistral", "gemma2"},
		"coding":       {"codellama", "deepseek-coder", "starcoder2", "qwen2.5-coder"},
		"fast_small":   {"phi3", "tinyllama", "qwen2:0.5b"},
		"reasoning":    {"deepseek-r1", "qwq"},
		"powerful":     {"llama3.1:70b", "mixtral", "qwen2.5:72b"},
		"embeddings":   {"nomic-embed-text", "all-minilm", "mxbai-embed-large"},
	}
}

// FindEmbeddingModel returns the first model whose name mentions "embed".
func FindEmbeddingModel(list []Model) (string, bool) {
	for _, model := range list {
		if strings.Contains(strings.ToLower(model.Name), "embed") {
			return model.Name, true
		}
	}
	return "", false
}

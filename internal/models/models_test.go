// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/otk/internal/ollama"
)

type fakeRegistry struct {
	models    []ollama.ModelInfo
	listErr   error
	deleteErr error
	deleted   []string
	events    []ollama.PullProgress
}

func (f *fakeRegistry) ListModels(context.Context) ([]ollama.ModelInfo, error) {
	return f.models, f.listErr
}

func (f *fakeRegistry) Pull(_ context.Context, _ string, cb ollama.PullCallback) error {
	for _, e := range f.events {
		if cb != nil {
			cb(e)
		}
	}
	return nil
}

func (f *fakeRegistry) Delete(_ context.Context, name string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeRegistry) Show(_ context.Context, name string) (*ollama.ShowModelResponse, error) {
	if name == "missing" {
		return nil, ollama.ErrModelNotFound
	}
	return &ollama.ShowModelResponse{Modelfile: "FROM " + name, Parameters: "temperature 0.7"}, nil
}

func newManager(reg *fakeRegistry) *Manager {
	return NewManager(reg, zerolog.Nop())
}

func TestList(t *testing.T) {
	reg := &fakeRegistry{models: []ollama.ModelInfo{
		{Name: "mistral:latest", Size: 4109865159},
		{Name: "llama3.2:latest", Size: 2019393189, Details: ollama.ModelDetails{Family: "llama"}},
	}}
	list, err := newManager(reg).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	if list[0].Name != "llama3.2:latest" {
		t.Errorf("List not sorted: %v", list[0].Name)
	}
	if list[0].Size != "1.88 GB" || list[0].SizeBytes != 2019393189 {
		t.Errorf("size = %q / %d", list[0].Size, list[0].SizeBytes)
	}
	if list[0].Details.Family != "llama" {
		t.Errorf("details lost")
	}
}

func TestExistsAndSize(t *testing.T) {
	reg := &fakeRegistry{models: []ollama.ModelInfo{{Name: "llama3.2:latest", Size: 1024}}}
	m := newManager(reg)
	ctx := context.Background()

	tests := []struct {
		name string
		want bool
	}{
		{"llama3.2:latest", true},
		{"llama3.2", true},
		{"llama3.2:1b", false},
		{"mistral", false},
	}
	for _, tc := range tests {
		ok, err := m.Exists(ctx, tc.name)
		require.NoError(t, err)
		if ok != tc.want {
			t.Errorf("Exists(%q) = %v, want %v", tc.name, ok, tc.want)
		}
	}

	size, ok, err := m.Size(ctx, "llama3.2")
	require.NoError(t, err)
	if !ok || size != "1.00 KB" {
		t.Errorf("Size() = %q, %v", size, ok)
	}
}

func TestExists_ListError(t *testing.T) {
	m := newManager(&fakeRegistry{listErr: ollama.ErrNotRunning})
	if _, err := m.Exists(context.Background(), "x"); !ollama.IsNotRunning(err) {
		t.Errorf("Exists() error = %v", err)
	}
}

func TestDelete(t *testing.T) {
	reg := &fakeRegistry{}
	ok, err := newManager(reg).Delete(context.Background(), "llama3.2")
	require.NoError(t, err)
	if !ok || len(reg.deleted) != 1 {
		t.Errorf("Delete() = %v, deleted %v", ok, reg.deleted)
	}

	ok, err = newManager(&fakeRegistry{deleteErr: ollama.ErrModelNotFound}).Delete(context.Background(), "nope")
	if ok || err != nil {
		t.Errorf("Delete(missing) = %v, %v; want false, nil", ok, err)
	}

	boom := errors.New("disk busy")
	ok, err = newManager(&fakeRegistry{deleteErr: boom}).Delete(context.Background(), "x")
	if ok || !errors.Is(err, boom) {
		t.Errorf("Delete() = %v, %v", ok, err)
	}
}

func TestPull(t *testing.T) {
	reg := &fakeRegistry{events: []ollama.PullProgress{
		{Status: "pulling manifest"},
		{Status: "downloading", Total: 10, Completed: 5},
		{Status: "success"},
	}}
	var got []Progress
	require.NoError(t, newManager(reg).Pull(context.Background(), "tiny", func(p Progress) { got = append(got, p) }))
	require.Len(t, got, 3)
	if got[1].Percent() != 50 {
		t.Errorf("Percent = %v", got[1].Percent())
	}
	require.NoError(t, newManager(reg).Pull(context.Background(), "tiny", nil))
}

func TestShow(t *testing.T) {
	m := newManager(&fakeRegistry{})
	info, err := m.Show(context.Background(), "llama3.2")
	require.NoError(t, err)
	if info.Modelfile != "FROM llama3.2" || info.Parameters != "temperature 0.7" {
		t.Errorf("Show() = %+v", info)
	}
	if _, err := m.Show(context.Background(), "missing"); !ollama.IsModelNotFound(err) {
		t.Errorf("Show(missing) error = %v", err)
	}
}

func TestRecommendations(t *testing.T) {
	recs := Recommendations()
	for _, key := range []string{"general_chat", "coding", "fast_small", "embeddings"} {
		if len(recs[key]) == 0 {
			t.Errorf("no recommendations for %s", key)
		}
	}
}

func TestFindEmbeddingModel(t *testing.T) {
	name, ok := FindEmbeddingModel([]Model{{Name: "llama3"}, {Name: "nomic-embed-text:latest"}})
	if !ok || name != "nomic-embed-text:latest" {
		t.Errorf("FindEmbeddingModel() = %q, %v", name, ok)
	}
	if _, ok := FindEmbeddingModel([]Model{{Name: "llama3"}}); ok {
		t.Error("FindEmbeddingModel() should fail without embed models")
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package response

import (
	"strings"
	"sync"
)

// Entry maps a model-name substring to a strategy.
type Entry struct {
	Pattern string    `toml:"pattern" json:"pattern"`
	Type    ModelType `toml:"type" json:"type"`
}

// DefaultEntries returns the built-in registry, in match order.
func DefaultEntries() []Entry {
	return []Entry{
		{Pattern: "deepseek-r1", Type: Thinking},
		{Pattern: "qwen", Type: Thinking},
		{Pattern: "codellama", Type: Code},
		{Pattern: "starcoder", Type: Code},
		{Pattern: "phind-codellama", Type: Code},
	}
}

// Processor is a normalizer bound to one model.
type Processor struct {
	ModelID    string
	Type       ModelType
	normalizer *Normalizer
}

// Process normalizes raw output from the bound model.
func (p *Processor) Process(raw string) (*ProcessedResponse, error) {
	return p.normalizer.Normalize(raw, p.Type, nil)
}

// ProcessWithPatterns normalizes raw output, passing patterns to the
// strategy. Only the custom strategy reads them.
func (p *Processor) ProcessWithPatterns(raw string, patterns []Pattern) (*ProcessedResponse, error) {
	return p.normalizer.Normalize(raw, p.Type, patterns)
}

// Resolver maps model names to strategies and caches the resulting
// Processors. Matching is case-insensitive substring, first entry wins,
// and unmatched names resolve to Standard.
//
// A Resolver is safe for concurrent use. Register clears the cache; a Get
// racing with Register may compute a binding from the old registry once.
type Resolver struct {
	mu         sync.RWMutex
	entries    []Entry
	cache      map[string]*Processor
	normalizer *Normalizer
}

// NewResolver creates a resolver with the given entries. Pass
// DefaultEntries() for the built-in families.
func NewResolver(entries ...Entry) *Resolver {
	r := &Resolver{
		cache:      make(map[string]*Processor),
		normalizer: NewNormalizer(),
	}
	for _, e := range entries {
		r.upsert(e.Pattern, e.Type)
	}
	return r
}

// WithNormalizer swaps the normalizer used by Processors created from now on.
func (r *Resolver) WithNormalizer(n *Normalizer) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalizer = n
	r.cache = make(map[string]*Processor)
	return r
}

// Normalizer returns the normalizer Processors dispatch to.
func (r *Resolver) Normalizer() *Normalizer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.normalizer
}

// Resolve returns the strategy for modelID.
func (r *Resolver) Resolve(modelID string) ModelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(modelID)
}

func (r *Resolver) resolveLocked(modelID string) ModelType {
	name := strings.ToLower(modelID)
	for _, e := range r.entries {
		if strings.Contains(name, e.Pattern) {
			return e.Type
		}
	}
	return Standard
}

// Get returns the cached Processor for modelID, creating it on first use.
// The same modelID yields the same *Processor until the next Register.
func (r *Resolver) Get(modelID string) *Processor {
	r.mu.RLock()
	p, ok := r.cache[modelID]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache[modelID]; ok {
		return p
	}
	p = &Processor{ModelID: modelID, Type: r.resolveLocked(modelID), normalizer: r.normalizer}
	r.cache[modelID] = p
	return p
}

// Process resolves modelID and normalizes raw in one step.
func (r *Resolver) Process(raw, modelID string) (*ProcessedResponse, error) {
	return r.Get(modelID).Process(raw)
}

// Register adds pattern, or retypes it in place if already present, and
// invalidates every cached binding.
func (r *Resolver) Register(pattern string, t ModelType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsert(pattern, t)
	r.cache = make(map[string]*Processor)
}

func (r *Resolver) upsert(pattern string, t ModelType) {
	pattern = strings.ToLower(pattern)
	for i := range r.entries {
		if r.entries[i].Pattern == pattern {
			r.entries[i].Type = t
			return
		}
	}
	r.entries = append(r.entries, Entry{Pattern: pattern, Type: t})
}

// Entries returns a copy of the registry in match order.
func (r *Resolver) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// AutoClean normalizes text with the strategy the default registry picks
// for modelName and returns only the content.
func AutoClean(text, modelName string) string {
	r, err := NewResolver(DefaultEntries()...).Process(text, modelName)
	if err != nil {
		return Cleanup(text)
	}
	return r.Content
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package customize

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// HookType names a point in the generation pipeline.
type HookType string

const (
	PreProcess  HookType = "pre_process"
	PostProcess HookType = "post_process"
	PreClean    HookType = "pre_clean"
	PostClean   HookType = "post_clean"
	OnError     HookType = "error"
	StreamChunk HookType = "stream_chunk"
)

// HookTypes lists every hook point.
var HookTypes = []HookType{PreProcess, PostProcess, PreClean, PostClean, OnError, StreamChunk}

// ParseHookType maps a name to a HookType.
func ParseHookType(s string) (HookType, error) {
	for _, h := range HookTypes {
		if string(h) == s {
			return h, nil
		}
	}
	return "", fmt.Errorf("unknown hook type %q", s)
}

// HookContext is passed to every hook.
type HookContext struct {
	Model    string
	Prompt   string
	Response string
	Metadata map[string]any
	Err      error
}

// Hook observes or rewrites a HookContext.
type Hook func(*HookContext) error

// Hooks is an ordered, concurrency-safe hook registry.
type Hooks struct {
	mu     sync.RWMutex
	hooks  map[HookType][]Hook
	logger zerolog.Logger
}

// NewHooks creates an empty registry that logs hook failures to logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{hooks: make(map[HookType][]Hook), logger: logger}
}

// Add registers h to run after the hooks already registered for t.
func (h *Hooks) Add(t HookType, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[t] = append(h.hooks[t], hook)
}

// Remove drops all hooks of type t.
func (h *Hooks) Remove(t HookType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hooks, t)
}

// Reset drops every hook.
func (h *Hooks) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = make(map[HookType][]Hook)
}

// Len returns the number of hooks of type t.
func (h *Hooks) Len(t HookType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hooks[t])
}

// Run invokes the hooks of type t in registration order. A failing or
// panicking hook is logged and the remaining hooks still run.
func (h *Hooks) Run(t HookType, hc *HookContext) {
	h.mu.RLock()
	list := append([]Hook(nil), h.hooks[t]...)
	h.mu.RUnlock()

	for i, hook := range list {
		if err := safeCall(hook, hc); err != nil {
			h.logger.Warn().Err(err).Str("hook", string(t)).Int("index", i).Msg("hook failed")
		}
	}
}

func safeCall(hook Hook, hc *HookContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(hc)
}

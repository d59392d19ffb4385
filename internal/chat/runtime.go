// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/jeranaias/otk/internal/ollama"
)

// Runtime is the part of the model server a Session talks to.
type Runtime interface {
	// Chat returns the complete assistant reply.
	Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error)

	// ChatStream calls onFragment for each piece of the reply in order.
	// An error from onFragment stops the stream and is returned.
	ChatStream(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options, onFragment func(string) error) error
}

// OllamaRuntime adapts *ollama.Client to Runtime.
type OllamaRuntime struct {
	client *ollama.Client
}

// NewOllamaRuntime wraps client.
func NewOllamaRuntime(client *ollama.Client) *OllamaRuntime {
	return &OllamaRuntime{client: client}
}

// Chat implements Runtime.
func (r *OllamaRuntime) Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error) {
	resp, err := r.client.ChatWithOptions(ctx, model, messages, opts)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ChatStream implements Runtime.
func (r *OllamaRuntime) ChatStream(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options, onFragment func(string) error) error {
	return r.client.ChatStream(ctx, model, messages, opts, func(chunk ollama.StreamChunk) error {
		if chunk.Content == "" {
			return nil
		}
		return onFragment(chunk.Content)
	})
}

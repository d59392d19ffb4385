// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// It covers the endpoints the rest of otk needs: chat and generate (blocking
// and streaming), embeddings, and the model lifecycle (tags, pull, show,
// delete), plus a cheap health probe.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - Message: Chat message with role and content
//   - Options: Sampling parameters (temperature, top_p, num_predict, ...)
//   - StreamReader: NDJSON reader shared by chat, generate and pull streams
//   - ClientError: Typed error with sentinels for errors.Is checks
//
// # Usage
//
//	client := ollama.NewClient()
//	resp, err := client.Chat(ctx, "llama3.2", []ollama.Message{
//	    ollama.NewUserMessage("Hello"),
//	})
//
// For streaming responses:
//
//	err := client.ChatStream(ctx, "llama3.2", msgs, nil, func(c ollama.StreamChunk) error {
//	    fmt.Print(c.Content)
//	    return nil
//	})
package ollama

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat keeps the message history of one conversation and drives
// request/response turns against the runtime.
//
// A Session appends the user turn, trims history to its budget, calls the
// runtime, normalizes the reply through a response.Resolver and records the
// assistant turn. Streaming turns are exposed as a range-over-func
// iterator; the assistant turn is recorded only once the stream is fully
// consumed and is stored unnormalized.
//
// A Session is not safe for concurrent use.
//
// # Usage
//
//	s := chat.NewSession(chat.NewOllamaRuntime(client), "deepseek-r1:8b",
//	    chat.WithSystemMessage("You are terse."))
//	answer, err := s.Send(ctx, "Why is the sky blue?")
//	fmt.Println(answer, s.LastThinking())
//
//	for frag, err := range s.SendStream(ctx, "And sunsets?") {
//	    if err != nil { ... }
//	    fmt.Print(frag)
//	}
package chat

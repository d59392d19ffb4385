// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package response normalizes raw model output into a structured result.
//
// Different model families format their output differently: reasoning
// models wrap intermediate thoughts in <think> blocks, code models answer
// with fenced code, and callers sometimes want to pull their own fields out
// with regular expressions. A Normalizer applies one strategy per ModelType;
// a Resolver picks the ModelType for a model name.
//
// # Strategies
//
//   - standard: generic cleanup only
//   - thinking: extract <think>, <reasoning> and <thought> regions
//   - code: inventory fenced code blocks in metadata
//   - custom: extract caller-supplied patterns in order
//
// # Usage
//
//	resolver := response.NewResolver(response.DefaultEntries()...)
//	p := resolver.Get("deepseek-r1:8b")
//	out, _ := p.Process(raw)
//	fmt.Println(out.Content, out.Thinking)
package response

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides text and file helpers shared across otk.
//
// # Key Functions
//
// Text:
//   - FormatResponse: word wrap by display width
//   - ChunkText: overlapping rune chunks
//   - FillTemplate, CreateSystemPrompt: prompt construction
//   - EstimateTokens: rough token count (4 bytes per token)
//
// Display:
//   - TruncateRunes, TruncateWidth, PadRight: UTF-8 and CJK safe truncation
//
// Files:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	wrapped := util.FormatResponse(answer, 80)
//	err := util.AtomicWriteFile(path, data, 0o600)
package util

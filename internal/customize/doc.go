// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package customize wraps generation with hooks, processors and tuned
// sampling presets.
//
// A Model runs, in order: pre_process hooks, pre-processors, the
// runtime call, pre_clean hooks, post-processors, post_clean hooks and
// post_process hooks. Hooks may rewrite HookContext.Prompt and
// HookContext.Response; hook errors are logged and never abort a call.
//
//	m := customize.NewBuilder("llama3.2").
//		Preset("factual").
//		PostProcessor(customize.LengthLimiter(500)).
//		Build(customize.NewOllamaRuntime(client))
//	answer, err := m.Generate(ctx, "What is TCP?")
package customize

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package experiment runs prompts against models and reports timing.
//
// Every request failure is captured in the Result it belongs to rather
// than returned, so comparisons and batches survive partial failure and
// callers inspect Result.Error instead of handling errors per model.
//
// # Key Types
//
//   - Runner: single runs, batches, multi-model comparison, benchmarks
//   - Comparison: per-model results plus rankings by elapsed time
//   - BenchmarkResult: timing statistics over repeated runs
//   - ABTest: head-to-head over a prompt set with a judge function
//   - Playground: sweeps over temperature, prompt wording and system prompt
//
// CompareModels can fan out one goroutine per model; results arrive in
// completion order and are tagged with their model name.
package experiment

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists experiment results in a local SQLite
// database (pure Go driver, no cgo).
//
// # Usage
//
//	store, err := storage.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	err = store.SaveComparison(ctx, cmp)
//	recent, err := store.Recent(ctx, 20)
package storage

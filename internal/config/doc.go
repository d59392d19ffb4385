// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for otk.
//
// # Configuration Precedence
//
// Configuration is loaded from (highest first):
//   - Environment variables (OTK_*, OLLAMA_HOST), including those set in ./.env
//   - ~/.otk/config.toml (OTK_HOME moves the directory)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL: cfg.Ollama.URL,
//	    Timeout: cfg.Ollama.Timeout.Duration,
//	})
//
// Values can be read and written by dot key:
//
//	_ = cfg.Set("chat.temperature", "0.3")
//	v, _ := cfg.Get("ollama.url")
package config

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/otk/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete otk configuration.
type Config struct {
	LogLevel string `toml:"log_level"`

	Ollama     OllamaConfig     `toml:"ollama"`
	Chat       ChatConfig       `toml:"chat"`
	Experiment ExperimentConfig `toml:"experiment"`
	Catalog    CatalogConfig    `toml:"catalog"`
}

// OllamaConfig configures the model server connection.
type OllamaConfig struct {
	URL          string   `toml:"url"`
	Timeout      Duration `toml:"timeout"`
	DefaultModel string   `toml:"default_model"`
}

// ChatConfig configures interactive sessions.
type ChatConfig struct {
	Temperature  float64 `toml:"temperature"`
	MaxHistory   int     `toml:"max_history"`
	AutoProcess  bool    `toml:"auto_process"`
	SystemPrompt string  `toml:"system_prompt"`
}

// ExperimentConfig configures compare and bench.
type ExperimentConfig struct {
	Iterations  int    `toml:"iterations"`
	Parallel    bool   `toml:"parallel"`
	SaveResults bool   `toml:"save_results"`
	Database    string `toml:"database"`
}

// CatalogConfig configures the model library scraper.
type CatalogConfig struct {
	URL      string `toml:"url"`
	MaxPages int    `toml:"max_pages"`
}

// Duration is a time.Duration written as a string such as "2m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "warn",
		Ollama: OllamaConfig{
			URL:          "http://127.0.0.1:11434",
			Timeout:      Duration{120 * time.Second},
			DefaultModel: "llama3.2",
		},
		Chat: ChatConfig{
			Temperature: 0.7,
			MaxHistory:  50,
			AutoProcess: true,
		},
		Experiment: ExperimentConfig{
			Iterations: 3,
			Parallel:   true,
		},
		Catalog: CatalogConfig{
			URL:      "https://ollama.com",
			MaxPages: 5,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the otk configuration directory. OTK_HOME overrides it.
func Dir() (string, error) {
	if dir := os.Getenv("OTK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".otk"), nil
}

// Path returns the path of the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DatabasePath returns the experiment database path, honoring
// experiment.database when set.
func (c *Config) DatabasePath() (string, error) {
	if c.Experiment.Database != "" {
		return c.Experiment.Database, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "experiments.db"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads .env from the working directory (if present), then the
// config file (if present), then applies environment overrides and
// validates. A missing file is not an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load with an explicit config file path.
func LoadFromPath(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes the config file at path over the defaults without
// applying environment overrides or validating. A missing file yields
// the defaults. It is what "config set" edits, so overrides never leak
// into the saved file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}
	return cfg, nil
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes cfg as TOML to path with mode 0600.
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# otk configuration file\n")
	buf.WriteString("# Environment variables OTK_MODEL, OTK_OLLAMA_URL, OTK_LOG_LEVEL and OLLAMA_HOST override it.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

// Validate checks every field and returns ValidateErrors when any is
// invalid.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("log_level", "invalid level '%s', must be one of: trace, debug, info, warn, error, disabled", c.LogLevel)
	}
	if u, err := url.Parse(c.Ollama.URL); err != nil || u.Scheme == "" || u.Host == "" {
		add("ollama.url", "invalid URL '%s'", c.Ollama.URL)
	}
	if c.Ollama.Timeout.Duration < 0 {
		add("ollama.timeout", "must not be negative")
	}
	if c.Ollama.DefaultModel != "" && !util.ValidateModelName(c.Ollama.DefaultModel) {
		add("ollama.default_model", "invalid model name '%s'", c.Ollama.DefaultModel)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		add("chat.temperature", "must be between 0.0 and 2.0, got %v", c.Chat.Temperature)
	}
	if c.Chat.MaxHistory < 2 {
		add("chat.max_history", "must be at least 2, got %d", c.Chat.MaxHistory)
	}
	if c.Experiment.Iterations < 1 || c.Experiment.Iterations > 1000 {
		add("experiment.iterations", "must be between 1 and 1000, got %d", c.Experiment.Iterations)
	}
	if c.Catalog.MaxPages < 1 {
		add("catalog.max_pages", "must be positive, got %d", c.Catalog.MaxPages)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values a config file may have left unset.
func (c *Config) SetDefaults() {
	d := Default()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = d.Ollama.URL
	}
	if c.Ollama.Timeout.Duration == 0 {
		c.Ollama.Timeout = d.Ollama.Timeout
	}
	if c.Chat.MaxHistory == 0 {
		c.Chat.MaxHistory = d.Chat.MaxHistory
	}
	if c.Experiment.Iterations == 0 {
		c.Experiment.Iterations = d.Experiment.Iterations
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = d.Catalog.URL
	}
	if c.Catalog.MaxPages == 0 {
		c.Catalog.MaxPages = d.Catalog.MaxPages
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variables:
//   - OLLAMA_HOST: ollama.url (a bare host:port gets http://)
//   - OTK_OLLAMA_URL: ollama.url, wins over OLLAMA_HOST
//   - OTK_MODEL: ollama.default_model
//   - OTK_LOG_LEVEL: log_level
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		c.Ollama.URL = host
	}
	if u := os.Getenv("OTK_OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}
	if model := os.Getenv("OTK_MODEL"); model != "" {
		c.Ollama.DefaultModel = model
	}
	if level := os.Getenv("OTK_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get returns the value at a dot-separated key such as "chat.temperature".
func (c *Config) Get(key string) (any, error) {
	field, err := c.field(key)
	if err != nil {
		return nil, err
	}
	if d, ok := field.Interface().(Duration); ok {
		return d.String(), nil
	}
	return field.Interface(), nil
}

// Set parses value into the field at key.
func (c *Config) Set(key, value string) error {
	field, err := c.field(key)
	if err != nil {
		return err
	}
	if field.Type() == reflect.TypeOf(Duration{}) {
		var d Duration
		if err := d.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: cannot convert %q to int", key, value)
		}
		field.SetInt(v)
	case reflect.Float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: cannot convert %q to float", key, value)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: cannot convert %q to bool", key, value)
		}
		field.SetBool(v)
	default:
		return fmt.Errorf("%s: unsupported field type %s", key, field.Kind())
	}
	return nil
}

// field resolves a dot key by matching toml tags.
func (c *Config) field(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	v := reflect.ValueOf(c).Elem()
	parts := strings.Split(key, ".")
	for i, part := range parts {
		f, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return f, nil
		}
		if f.Kind() != reflect.Struct || f.Type() == reflect.TypeOf(Duration{}) {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = f
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Keys lists every settable dot key.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + f.Tag.Get("toml")
			if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(Duration{}) {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide config, loading it on first use. A
// load failure falls back to defaults with a warning on stderr.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide config.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ReloadGlobal reloads the process-wide config from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// ResetGlobalForTesting clears the process-wide config.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}

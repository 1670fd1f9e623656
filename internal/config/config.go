// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and saves obsidian-assistant settings.
//
// Settings live in a single TOML file, ~/.obsidian-assistant/config.toml by
// default. A missing file means built-in defaults. Environment variables are
// applied on top of whatever was loaded.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
	"github.com/jeranaias/obsidian-assistant/internal/util"
)

// Environment variables read by ApplyEnvOverrides.
const (
	EnvHome      = "OBSIDIAN_ASSISTANT_HOME"
	EnvProvider  = "API_PROVIDER"
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvHFKey     = "HF_API_KEY"
	EnvModel     = "OBSIDIAN_ASSISTANT_MODEL"
	EnvLogLevel  = "OBSIDIAN_ASSISTANT_LOG_LEVEL"
	EnvDeep      = "OBSIDIAN_ASSISTANT_DEEP"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete settings file.
type Config struct {
	Provider ProviderConfig `toml:"provider" json:"provider"`
	Research ResearchConfig `toml:"research" json:"research"`
	Session  SessionConfig  `toml:"session" json:"session"`
	Server   ServerConfig   `toml:"server" json:"server"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
}

// ProviderConfig selects the backend and holds its credentials.
type ProviderConfig struct {
	// Kind is "openai" or "huggingface".
	Kind string `toml:"kind" json:"kind"`

	OpenAIModel      string `toml:"openai_model" json:"openai_model"`
	HuggingFaceModel string `toml:"huggingface_model" json:"huggingface_model"`

	OpenAIKey string `toml:"openai_api_key" json:"openai_api_key"`
	HFKey     string `toml:"hf_api_key" json:"hf_api_key"`

	// Base URLs are for proxies and tests. Empty means the public endpoint.
	OpenAIBaseURL      string `toml:"openai_base_url" json:"openai_base_url"`
	HuggingFaceBaseURL string `toml:"huggingface_base_url" json:"huggingface_base_url"`

	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// ResearchConfig controls deep research mode.
type ResearchConfig struct {
	// DeepDefault starts new sessions with deep research on.
	DeepDefault bool `toml:"deep_default" json:"deep_default"`

	StrongestOpenAI      string `toml:"strongest_openai" json:"strongest_openai"`
	StrongestHuggingFace string `toml:"strongest_huggingface" json:"strongest_huggingface"`
}

// SessionConfig controls how much context each request carries.
type SessionConfig struct {
	// HistoryWindow is the number of prior messages sent with each request.
	HistoryWindow int `toml:"history_window" json:"history_window"`

	// KnowledgeContext prepends the built-in Obsidian reference to the
	// system prompt.
	KnowledgeContext bool `toml:"knowledge_context" json:"knowledge_context"`

	// KnowledgeFile replaces the built-in reference with a YAML file.
	KnowledgeFile string `toml:"knowledge_file" json:"knowledge_file"`
}

// ServerConfig configures `obsidian-assistant serve`.
type ServerConfig struct {
	Addr            string `toml:"addr" json:"addr"`
	IdleTimeoutSecs int    `toml:"idle_timeout_secs" json:"idle_timeout_secs"`
	MaxSessions     int    `toml:"max_sessions" json:"max_sessions"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	JSON  bool   `toml:"json" json:"json"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Kind:             string(provider.KindCommercial),
			OpenAIModel:      "gpt-3.5-turbo",
			HuggingFaceModel: "microsoft/DialoGPT-medium",
			TimeoutSecs:      int(provider.DefaultTimeout / time.Second),
		},
		Research: ResearchConfig{
			DeepDefault:          false,
			StrongestOpenAI:      "gpt-4",
			StrongestHuggingFace: "meta-llama/Llama-2-7b-chat-hf",
		},
		Session: SessionConfig{
			HistoryWindow:    10,
			KnowledgeContext: true,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8765",
			IdleTimeoutSecs: 1800,
			MaxSessions:     64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// fillDefaults restores defaults for string and numeric fields the file
// set to their zero value.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = d.Provider.Kind
	}
	if cfg.Provider.OpenAIModel == "" {
		cfg.Provider.OpenAIModel = d.Provider.OpenAIModel
	}
	if cfg.Provider.HuggingFaceModel == "" {
		cfg.Provider.HuggingFaceModel = d.Provider.HuggingFaceModel
	}
	if cfg.Provider.TimeoutSecs == 0 {
		cfg.Provider.TimeoutSecs = d.Provider.TimeoutSecs
	}

	if cfg.Research.StrongestOpenAI == "" {
		cfg.Research.StrongestOpenAI = d.Research.StrongestOpenAI
	}
	if cfg.Research.StrongestHuggingFace == "" {
		cfg.Research.StrongestHuggingFace = d.Research.StrongestHuggingFace
	}

	if cfg.Session.HistoryWindow == 0 {
		cfg.Session.HistoryWindow = d.Session.HistoryWindow
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.IdleTimeoutSecs == 0 {
		cfg.Server.IdleTimeoutSecs = d.Server.IdleTimeoutSecs
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = d.Server.MaxSessions
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the settings directory. OBSIDIAN_ASSISTANT_HOME overrides
// the default of ~/.obsidian-assistant.
func Dir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".obsidian-assistant"), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the default config file. A missing file yields defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, failure.Wrap(failure.KindConfigError, "config.load", "no config directory", err)
	}
	return LoadFromPath(path)
}

// LoadFromPath reads path, applies environment overrides and validates the
// result. A missing file yields defaults; a malformed one is a ConfigError.
func LoadFromPath(path string) (*Config, error) {
	const op = "config.load"

	cfg, err := LoadFileOnly(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, failure.Wrap(failure.KindConfigError, op, "invalid config", err)
	}
	return cfg, nil
}

// LoadFileOnly reads path without environment overrides or validation.
// `config set` edits this view so env values never reach the file.
func LoadFileOnly(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, failure.Wrap(failure.KindConfigError, "config.load",
				fmt.Sprintf("failed to parse %s", path), err)
		}
	}
	fillDefaults(cfg)
	return cfg, nil
}

// Save writes cfg to the default path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes cfg to path atomically with 0600 permissions, since the
// file may hold API keys.
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# obsidian-assistant configuration\n")
	buf.WriteString("# API keys may also come from OPENAI_API_KEY and HF_API_KEY.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid field.
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
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks field ranges and formats. It does not check credentials;
// see RequireCredentials.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, err := provider.ParseKind(c.Provider.Kind); err != nil {
		errs = append(errs, ValidationError{
			Field:   "provider.kind",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, huggingface", c.Provider.Kind),
		})
	}
	if c.Provider.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "provider.timeout_secs", Message: "must not be negative"})
	}
	for field, raw := range map[string]string{
		"provider.openai_base_url":      c.Provider.OpenAIBaseURL,
		"provider.huggingface_base_url": c.Provider.HuggingFaceBaseURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid URL '%s'", raw)})
		}
	}

	if c.Session.HistoryWindow < 0 {
		errs = append(errs, ValidationError{Field: "session.history_window", Message: "must not be negative"})
	}

	if c.Server.MaxSessions < 0 {
		errs = append(errs, ValidationError{Field: "server.max_sessions", Message: "must not be negative"})
	}
	if c.Server.IdleTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "server.idle_timeout_secs", Message: "must not be negative"})
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequireCredentials reports a ConfigError when the selected provider has
// no API key.
func (c *Config) RequireCredentials() error {
	kind, err := c.Kind()
	if err != nil {
		return err
	}
	if c.APIKey(kind) == "" {
		env := EnvOpenAIKey
		if kind == provider.KindCommunity {
			env = EnvHFKey
		}
		return failure.Newf(failure.KindConfigError, "config.credentials",
			"no API key for %s; set %s or add it to the config file", kind.DisplayName(), env)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variables on top of file values:
//   - API_PROVIDER: overrides provider.kind
//   - OPENAI_API_KEY: overrides provider.openai_api_key
//   - HF_API_KEY: overrides provider.hf_api_key
//   - OBSIDIAN_ASSISTANT_MODEL: overrides the model of the selected provider
//   - OBSIDIAN_ASSISTANT_LOG_LEVEL: overrides logging.level
//   - OBSIDIAN_ASSISTANT_DEEP: overrides research.deep_default
func (c *Config) ApplyEnvOverrides() {
	if kind := os.Getenv(EnvProvider); kind != "" {
		c.Provider.Kind = strings.ToLower(strings.TrimSpace(kind))
	}
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		c.Provider.OpenAIKey = key
	}
	if key := os.Getenv(EnvHFKey); key != "" {
		c.Provider.HFKey = key
	}
	if m := os.Getenv(EnvModel); m != "" {
		if kind, err := c.Kind(); err == nil {
			c.SetModel(kind, m)
		}
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if deep := os.Getenv(EnvDeep); deep != "" {
		c.Research.DeepDefault = deep == "1" || strings.EqualFold(deep, "true")
	}
}

// =============================================================================
// PROVIDER ACCESSORS
// =============================================================================

// Kind parses provider.kind.
func (c *Config) Kind() (provider.Kind, error) {
	return provider.ParseKind(c.Provider.Kind)
}

// Model returns the configured model for kind.
func (c *Config) Model(kind provider.Kind) string {
	if kind == provider.KindCommunity {
		return c.Provider.HuggingFaceModel
	}
	return c.Provider.OpenAIModel
}

// SetModel sets the configured model for kind.
func (c *Config) SetModel(kind provider.Kind, model string) {
	if kind == provider.KindCommunity {
		c.Provider.HuggingFaceModel = model
		return
	}
	c.Provider.OpenAIModel = model
}

// APIKey returns the credential for kind.
func (c *Config) APIKey(kind provider.Kind) string {
	if kind == provider.KindCommunity {
		return c.Provider.HFKey
	}
	return c.Provider.OpenAIKey
}

// BaseURL returns the endpoint override for kind, or "".
func (c *Config) BaseURL(kind provider.Kind) string {
	if kind == provider.KindCommunity {
		return c.Provider.HuggingFaceBaseURL
	}
	return c.Provider.OpenAIBaseURL
}

// ProviderConfig returns the selected (kind, model) pair.
func (c *Config) ProviderConfig() (provider.Config, error) {
	kind, err := c.Kind()
	if err != nil {
		return provider.Config{}, err
	}
	return provider.Config{Kind: kind, Model: c.Model(kind)}, nil
}

// Strongest returns the deep research model table.
func (c *Config) Strongest() map[provider.Kind]string {
	return map[provider.Kind]string{
		provider.KindCommercial: c.Research.StrongestOpenAI,
		provider.KindCommunity:  c.Research.StrongestHuggingFace,
	}
}

// Timeout returns the per-request upstream timeout.
func (c *Config) Timeout() time.Duration {
	if c.Provider.TimeoutSecs <= 0 {
		return provider.DefaultTimeout
	}
	return time.Duration(c.Provider.TimeoutSecs) * time.Second
}

// IdleTimeout returns how long an unused server session is kept.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Server.IdleTimeoutSecs) * time.Second
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using dot notation (e.g., "session.history_window").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value using dot notation. String values are converted to
// the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks key through the struct, matching each part against toml tags.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a field", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]; tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a dynamic value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every settable key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// =============================================================================
// COPY / DISPLAY
// =============================================================================

// Clone returns a copy of c. Config holds no reference types.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy with API keys masked.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Provider.OpenAIKey != "" {
		safe.Provider.OpenAIKey = "[REDACTED]"
	}
	if safe.Provider.HFKey != "" {
		safe.Provider.HFKey = "[REDACTED]"
	}
	return safe
}

// String renders the config as JSON with keys redacted.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

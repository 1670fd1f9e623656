// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
)

// clearEnv blanks every variable ApplyEnvOverrides reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvProvider, EnvOpenAIKey, EnvHFKey, EnvModel, EnvLogLevel, EnvDeep} {
		t.Setenv(k, "")
	}
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "openai", cfg.Provider.Kind)
	assert.Equal(t, 10, cfg.Session.HistoryWindow)
	assert.True(t, cfg.Session.KnowledgeContext)
	assert.False(t, cfg.Research.DeepDefault)

	pc, err := cfg.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, provider.Config{Kind: provider.KindCommercial, Model: "gpt-3.5-turbo"}, pc)
	assert.NoError(t, provider.DefaultCatalog().Validate(pc.Kind, pc.Model))

	for kind, m := range cfg.Strongest() {
		assert.True(t, provider.DefaultCatalog().Valid(kind, m), "%s/%s", kind, m)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"unknown provider", func(c *Config) { c.Provider.Kind = "cohere" }, "provider.kind"},
		{"negative timeout", func(c *Config) { c.Provider.TimeoutSecs = -1 }, "provider.timeout_secs"},
		{"bad base url", func(c *Config) { c.Provider.OpenAIBaseURL = "ftp://x" }, "provider.openai_base_url"},
		{"negative window", func(c *Config) { c.Session.HistoryWindow = -2 }, "session.history_window"},
		{"negative sessions", func(c *Config) { c.Server.MaxSessions = -1 }, "server.max_sessions"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)

			err := c.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromPath_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[provider]
kind = "huggingface"
huggingface_model = "gpt2"
hf_api_key = "hf_file"

[session]
knowledge_context = false
history_window = 4

[logging]
level = ""
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "huggingface", cfg.Provider.Kind)
	assert.Equal(t, "gpt2", cfg.Model(provider.KindCommunity))
	assert.Equal(t, "hf_file", cfg.APIKey(provider.KindCommunity))
	assert.False(t, cfg.Session.KnowledgeContext)
	assert.Equal(t, 4, cfg.Session.HistoryWindow)
	assert.Equal(t, "info", cfg.Logging.Level, "empty values fall back to defaults")
	assert.Equal(t, "gpt-3.5-turbo", cfg.Provider.OpenAIModel)
}

func TestLoadFromPath_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[provider\nkind="), 0600))
	_, err := LoadFromPath(bad)
	assert.True(t, failure.IsConfig(err))

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("[provider]\nkind = \"local\"\n"), 0600))
	_, err = LoadFromPath(invalid)
	assert.True(t, failure.IsConfig(err))
	var verrs ValidateErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProvider, "HuggingFace")
	t.Setenv(EnvHFKey, "hf_env")
	t.Setenv(EnvOpenAIKey, "sk-env")
	t.Setenv(EnvModel, "gpt2")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvDeep, "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "huggingface", cfg.Provider.Kind)
	assert.Equal(t, "gpt2", cfg.Provider.HuggingFaceModel)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Provider.OpenAIModel, "model override targets the selected provider")
	assert.Equal(t, "hf_env", cfg.Provider.HFKey)
	assert.Equal(t, "sk-env", cfg.Provider.OpenAIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Research.DeepDefault)
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.RequireCredentials()
	assert.True(t, failure.IsConfig(err))
	assert.Contains(t, err.Error(), EnvOpenAIKey)

	cfg.Provider.OpenAIKey = "sk-test"
	assert.NoError(t, cfg.RequireCredentials())

	cfg.Provider.Kind = "huggingface"
	err = cfg.RequireCredentials()
	assert.Contains(t, err.Error(), EnvHFKey)
}

func TestSaveAndReload(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Provider.OpenAIKey = "sk-saved"
	cfg.Research.DeepDefault = true
	require.NoError(t, SaveTo(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDir_HomeOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, home, dir)

	p, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml"), p)
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("session.history_window")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	require.NoError(t, cfg.Set("session.history_window", "6"))
	assert.Equal(t, 6, cfg.Session.HistoryWindow)

	require.NoError(t, cfg.Set("research.deep-default", "true"))
	assert.True(t, cfg.Research.DeepDefault)

	require.NoError(t, cfg.Set("provider.openai_model", "gpt-4"))
	assert.Equal(t, "gpt-4", cfg.Provider.OpenAIModel)

	assert.Error(t, cfg.Set("session.history_window", "many"))
	assert.Error(t, cfg.Set("research.deep_default", "maybe"))
	_, err = cfg.Get("provider")
	assert.Error(t, err)
	_, err = cfg.Get("nope.key")
	assert.Error(t, err)
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "provider.kind")
	assert.Contains(t, keys, "session.knowledge_file")
	assert.Contains(t, keys, "logging.json")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestConfig_RedactedString(t *testing.T) {
	cfg := Default()
	cfg.Provider.OpenAIKey = "sk-secret"
	cfg.Provider.HFKey = "hf_secret"

	s := cfg.String()
	assert.NotContains(t, s, "sk-secret")
	assert.NotContains(t, s, "hf_secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "sk-secret", cfg.Provider.OpenAIKey, "redaction works on a copy")
}

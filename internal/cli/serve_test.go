// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jeranaias/obsidian-assistant/internal/config"
	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/server"
)

// startServe runs `serve` in the background on a random port.
func startServe(t *testing.T, h *harness, watch bool) (base string, stop func() error) {
	t.Helper()

	a := newApp(BuildInfo{})
	a.stdout = &bytes.Buffer{}
	a.logger = zaptest.NewLogger(t)
	cfg, err := a.loadConfig()
	require.NoError(t, err)
	a.cfg = cfg

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.runServe(ctx, ln, watch) }()

	return "http://" + ln.Addr().String(), func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
			return nil
		}
	}
}

func createSession(t *testing.T, base string) server.SessionResponse {
	t.Helper()
	resp, err := http.Post(base+"/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out server.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServe_RunsUntilCanceled(t *testing.T) {
	h := newHarness(t)
	base, stop := startServe(t, h, false)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	sess := createSession(t, base)
	assert.Equal(t, "gpt-3.5-turbo", sess.Status.Provider.Model)
	assert.True(t, sess.Status.Knowledge)

	assert.NoError(t, stop())

	_, err := http.Get(base + "/health")
	assert.Error(t, err, "listener is closed after shutdown")
}

func TestServe_WatchConfigAppliesToNewSessions(t *testing.T) {
	h := newHarness(t)
	base, stop := startServe(t, h, true)
	defer func() { assert.NoError(t, stop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	before := createSession(t, base)

	update := func(cfg *config.Config) {
		cfg.Provider.OpenAIKey = "sk-test"
		cfg.Provider.OpenAIModel = "gpt-4o-mini"
	}

	// The watcher starts asynchronously, so the file is rewritten until a
	// new session reports the new model. The poll interval exceeds the
	// reload debounce.
	require.Eventually(t, func() bool {
		resp, err := http.Post(base+"/v1/sessions", "application/json", nil)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var sess server.SessionResponse
		if json.NewDecoder(resp.Body).Decode(&sess) != nil {
			return false
		}
		if sess.Status.Provider.Model == "gpt-4o-mini" {
			return true
		}
		h.writeConfig(update)
		return false
	}, 10*time.Second, 2*reloadDebounce)

	// Sessions created earlier keep their settings.
	resp, err := http.Get(base + "/v1/sessions/" + before.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var got server.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "gpt-3.5-turbo", got.Status.Provider.Model)
}

func TestServe_InvalidReloadKeepsPrevious(t *testing.T) {
	h := newHarness(t)
	a := newApp(BuildInfo{})
	a.logger = zaptest.NewLogger(t)

	h.writeConfig(func(cfg *config.Config) {
		cfg.Session.HistoryWindow = -3
	})
	_, err := a.reload()
	assert.Error(t, err)

	// A reload that drops the key is rejected too.
	h.writeConfig(func(*config.Config) {})
	_, err = a.reload()
	assert.True(t, failure.IsConfig(err), "got %v", err)

	h.writeConfig(func(cfg *config.Config) { cfg.Provider.OpenAIKey = "sk-test" })
	parts, err := a.reload()
	require.NoError(t, err)
	assert.NotNil(t, parts.providers)
}

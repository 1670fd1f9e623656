// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Runs the local HTTP API.
//
// The server, the idle-session sweeper and the optional config watcher run
// in one errgroup; SIGINT or SIGTERM stops all of them.

package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/server"
	"github.com/jeranaias/obsidian-assistant/internal/session"
)

const (
	// shutdownTimeout bounds the graceful drain of in-flight requests.
	shutdownTimeout = 10 * time.Second

	// reloadDebounce coalesces the burst of events an editor save produces.
	reloadDebounce = 250 * time.Millisecond
)

type serveOptions struct {
	addr  string
	watch bool
}

func newServeCommand(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over a local JSON HTTP API",
		Long: `serve exposes assistant sessions on a local HTTP API. Each session has its
own projects, provider and research mode, and expires after sitting idle.

With --watch-config, edits to the config file apply to sessions created
after the change. Existing sessions keep their settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireCredentials(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := opts.addr
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return failure.Wrap(failure.KindConfigError, "serve", "cannot listen on "+addr, err)
			}
			return a.runServe(ctx, ln, opts.watch)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, 127.0.0.1:8765)")
	cmd.Flags().BoolVar(&opts.watch, "watch-config", false, "reload the config file when it changes")
	return cmd
}

// runServe serves on ln until ctx is done.
func (a *app) runServe(ctx context.Context, ln net.Listener, watch bool) error {
	parts, err := a.components()
	if err != nil {
		ln.Close()
		return err
	}

	var current atomic.Pointer[components]
	current.Store(parts)

	sessions := session.NewRegistry(func() *session.Controller {
		return current.Load().newController()
	}, session.RegistryConfig{
		IdleTimeout: a.cfg.IdleTimeout(),
		MaxSessions: a.cfg.Server.MaxSessions,
	}, a.logger)

	srv := server.NewServer(sessions).
		WithCatalog(parts.providers.Catalog()).
		WithLogger(a.logger)

	fmt.Fprintf(a.stdout, "%s Listening on http://%s\n", SuccessStyle.Render("[OK]"), ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		return sessions.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if watch {
		g.Go(func() error {
			return a.watchConfig(gctx, func() {
				next, err := a.reload()
				if err != nil {
					a.logger.Warn("config reload rejected; keeping previous settings", zap.Error(err))
					return
				}
				current.Store(next)
				a.logger.Info("config reloaded",
					zap.String("provider", next.defaults.Kind.String()),
					zap.String("model", next.defaults.Model))
			})
		})
	}

	return g.Wait()
}

// reload re-reads the config file and rebuilds the shared components.
func (a *app) reload() (*components, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	return buildComponents(cfg, a.logger)
}

// watchConfig calls onChange after the config file is written, until ctx is
// done. The directory is watched rather than the file, since atomic saves
// replace the file.
func (a *app) watchConfig(ctx context.Context, onChange func()) error {
	path := a.resolvedConfigPath()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return failure.Wrap(failure.KindConfigError, "serve.watch", "cannot create watcher", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return failure.Wrap(failure.KindConfigError, "serve.watch", "cannot create config directory", err)
	}
	if err := watcher.Add(dir); err != nil {
		return failure.Wrap(failure.KindConfigError, "serve.watch", "cannot watch "+dir, err)
	}
	a.logger.Info("watching config", zap.String("path", path))

	name := filepath.Base(path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("config watcher error", zap.Error(err))
		case <-timer.C:
			onChange()
		}
	}
}

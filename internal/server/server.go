// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes assistant sessions over a local JSON HTTP API.
//
// Each session owns its own projects, provider selection and research mode.
// Sessions are created with POST /v1/sessions and expire after sitting idle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/logging"
	"github.com/jeranaias/obsidian-assistant/internal/model"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
	"github.com/jeranaias/obsidian-assistant/internal/session"
	"github.com/jeranaias/obsidian-assistant/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = "127.0.0.1:8765"

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats counts server activity since start.
type Stats struct {
	start        time.Time
	requests     atomic.Int64
	messages     atomic.Int64
	deepMessages atomic.Int64
	failures     atomic.Int64
}

// StatsResponse is the GET /stats body.
type StatsResponse struct {
	Uptime       string `json:"uptime"`
	Requests     int64  `json:"requests"`
	Messages     int64  `json:"messages"`
	DeepMessages int64  `json:"deep_messages"`
	Failures     int64  `json:"failures"`
	Sessions     int    `json:"sessions"`
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the session HTTP API.
type Server struct {
	addr     string
	maxBody  int64
	router   *http.ServeMux
	sessions *session.Registry
	catalog  *provider.Catalog
	logger   *zap.Logger
	stats    *Stats

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	closed   bool
}

// NewServer creates a server backed by sessions.
func NewServer(sessions *session.Registry) *Server {
	s := &Server{
		addr:     DefaultAddr,
		maxBody:  DefaultMaxBodyBytes,
		router:   http.NewServeMux(),
		sessions: sessions,
		catalog:  provider.DefaultCatalog(),
		logger:   zap.NewNop(),
		stats:    &Stats{start: time.Now()},
	}
	s.setupRoutes()
	return s
}

// WithAddr sets the listen address.
func (s *Server) WithAddr(addr string) *Server {
	if addr != "" {
		s.addr = addr
	}
	return s
}

// WithCatalog sets the catalog served by GET /v1/models.
func (s *Server) WithCatalog(c *provider.Catalog) *Server {
	if c != nil {
		s.catalog = c
	}
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(logger *zap.Logger) *Server {
	s.logger = logging.OrNop(logger).Named("server")
	return s
}

// WithMaxBody sets the request body limit.
func (s *Server) WithMaxBody(n int64) *Server {
	if n > 0 {
		s.maxBody = n
	}
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.router.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.router.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	s.router.HandleFunc("PUT /v1/sessions/{id}/settings", s.handleSettings)

	s.router.HandleFunc("GET /v1/sessions/{id}/projects", s.handleListProjects)
	s.router.HandleFunc("POST /v1/sessions/{id}/projects", s.handleCreateProject)
	s.router.HandleFunc("PATCH /v1/sessions/{id}/projects/{pid}", s.handleRenameProject)
	s.router.HandleFunc("DELETE /v1/sessions/{id}/projects/{pid}", s.handleDeleteProject)
	s.router.HandleFunc("POST /v1/sessions/{id}/projects/{pid}/activate", s.handleActivateProject)
	s.router.HandleFunc("GET /v1/sessions/{id}/projects/{pid}/messages", s.handleProjectMessages)

	s.router.HandleFunc("POST /v1/sessions/{id}/messages", s.handleMessage)

	s.router.HandleFunc("GET /v1/models", s.handleModels)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		s.countRequests,
		BodyLimitMiddleware(s.maxBody),
	)(s.router)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.stats.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// SESSION HANDLERS
// ============================================================================

// SettingsRequest changes session settings. Nil fields are left alone.
// A provider without a model switches to that provider's default model.
type SettingsRequest struct {
	Provider *string `json:"provider,omitempty"`
	Model    *string `json:"model,omitempty"`
	Deep     *bool   `json:"deep,omitempty"`
}

// SessionResponse describes one session.
type SessionResponse struct {
	ID     string         `json:"id"`
	Status session.Status `json:"status"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}

	id, ctrl, err := s.sessions.Create()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := applySettings(ctrl, req); err != nil {
		_ = s.sessions.Remove(id)
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{ID: id, Status: ctrl.Status()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: id, Status: ctrl.Status()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Remove(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var req SettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := applySettings(ctrl, req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: id, Status: ctrl.Status()})
}

func applySettings(ctrl *session.Controller, req SettingsRequest) error {
	if req.Provider != nil {
		kind, err := provider.ParseKind(*req.Provider)
		if err != nil {
			return err
		}
		if req.Model != nil {
			if err := ctrl.Configure(provider.Config{Kind: kind, Model: *req.Model}); err != nil {
				return err
			}
		} else if err := ctrl.UseProvider(kind); err != nil {
			return err
		}
	} else if req.Model != nil {
		if err := ctrl.SetModel(*req.Model); err != nil {
			return err
		}
	}
	if req.Deep != nil {
		ctrl.SetResearchMode(*req.Deep)
	}
	return nil
}

// ============================================================================
// PROJECT HANDLERS
// ============================================================================

// CreateProjectRequest is the POST /projects body.
type CreateProjectRequest struct {
	Name string `json:"name"`

	// Activate makes the new project active even when another one is.
	Activate bool `json:"activate,omitempty"`
}

// RenameProjectRequest is the PATCH /projects/{pid} body.
type RenameProjectRequest struct {
	Name string `json:"name"`
}

// ProjectsResponse lists a session's projects.
type ProjectsResponse struct {
	Projects []store.Summary `json:"projects"`
}

// MessagesResponse is one project's history.
type MessagesResponse struct {
	Project  store.Summary   `json:"project"`
	Messages []model.Message `json:"messages"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	sums := ctrl.Store().Summaries()
	if sums == nil {
		sums = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, ProjectsResponse{Projects: sums})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	st := ctrl.Store()
	pid, err := st.CreateProject(req.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.Activate {
		if err := st.Activate(pid); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	ctrl.Touch()

	sum, err := st.Get(pid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var req RenameProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	pid := store.ProjectID(r.PathValue("pid"))
	if err := ctrl.Store().Rename(pid, req.Name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	ctrl.Touch()
	s.writeSummary(w, ctrl, pid)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := ctrl.Store().Delete(store.ProjectID(r.PathValue("pid"))); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	ctrl.Touch()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateProject(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	pid := store.ProjectID(r.PathValue("pid"))
	if err := ctrl.Store().Activate(pid); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	ctrl.Touch()
	s.writeSummary(w, ctrl, pid)
}

// handleProjectMessages returns the history as JSON, or as a markdown
// document when ?format=markdown is given.
func (s *Server) handleProjectMessages(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	pid := store.ProjectID(r.PathValue("pid"))
	st := ctrl.Store()

	if f := r.URL.Query().Get("format"); f != "" && f != "json" {
		format, err := store.ParseFormat(f)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if _, err := st.Get(pid); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		if err := st.Export(w, pid, format); err != nil {
			s.logger.Warn("export failed", zap.Error(err))
		}
		return
	}

	sum, err := st.Get(pid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	history, err := st.History(pid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if history == nil {
		history = []model.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Project: sum, Messages: history})
}

func (s *Server) writeSummary(w http.ResponseWriter, ctrl *session.Controller, pid store.ProjectID) {
	sum, err := ctrl.Store().Get(pid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ============================================================================
// MESSAGE HANDLER
// ============================================================================

// MessageRequest is the POST /messages body.
type MessageRequest struct {
	Content string `json:"content"`
}

// MessageResponse carries the assistant reply.
type MessageResponse struct {
	Message model.Message `json:"message"`
	Deep    bool          `json:"deep"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	deep := ctrl.ResearchMode()
	s.stats.messages.Add(1)
	if deep {
		s.stats.deepMessages.Add(1)
	}

	// The request context is cancelled when the client disconnects, which
	// makes the controller drop a reply nobody is waiting for.
	reply, err := ctrl.HandleUserMessage(r.Context(), req.Content)
	if err != nil {
		s.stats.failures.Add(1)
		s.logger.Info("message failed",
			zap.String("session", id),
			zap.Stringer("kind", failure.KindOf(err)),
			zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: reply, Deep: deep})
}

// ============================================================================
// MODELS / HEALTH / STATS
// ============================================================================

// ModelsResponse lists every model the server accepts.
type ModelsResponse struct {
	Models []provider.ModelInfo `json:"models"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	resp := ModelsResponse{Models: []provider.ModelInfo{}}
	for _, kind := range s.catalog.Kinds() {
		resp.Models = append(resp.Models, s.catalog.Models(kind)...)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: s.sessions.Len(),
		Uptime:   session.FormatDuration(time.Since(s.stats.start)),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() StatsResponse {
	return StatsResponse{
		Uptime:       session.FormatDuration(time.Since(s.stats.start)),
		Requests:     s.stats.requests.Load(),
		Messages:     s.stats.messages.Load(),
		DeepMessages: s.stats.deepMessages.Load(),
		Failures:     s.stats.failures.Load(),
		Sessions:     s.sessions.Len(),
	}
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ln.Close()
	}
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server started", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once serving, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server. A Serve call that has not started
// yet returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *session.Controller, bool) {
	id := r.PathValue("id")
	ctrl, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return "", nil, false
	}
	return id, ctrl, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return failure.Wrap(failure.KindInvalidInput, "server.decode", "request body too large", err)
		}
		return failure.Wrap(failure.KindInvalidInput, "server.decode", "invalid JSON body", err)
	}
	return nil
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.KindAuthFailure:
		return http.StatusUnauthorized
	case failure.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case failure.KindUpstreamMalformed:
		return http.StatusBadGateway
	case failure.KindNetworkFailure:
		return http.StatusGatewayTimeout
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindNoActiveProject:
		return http.StatusConflict
	case failure.KindConfigError, failure.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure kind and its message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Kind:    failure.KindOf(err).String(),
		Message: err.Error(),
	}})
}

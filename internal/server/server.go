// Package server exposes the chat endpoint and the workspace API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aira/internal/config"
	"aira/internal/editor"
	"aira/internal/llm"
	"aira/internal/logging"
	"aira/internal/tooling"
	"aira/internal/workspace"
)

// Options wires a Server.
type Options struct {
	Config config.Config
	Client llm.Client
	Store  *workspace.Store
	// Editors, when set, guards content writes to files that are open in a live editor.
	Editors *editor.Manager
	Engines editor.Engines
	Retry   llm.RetryPolicy
	Logger  *log.Logger
}

type Server struct {
	cfg     config.Config
	client  llm.Client
	store   *workspace.Store
	editors *editor.Manager
	engines editor.Engines
	tools   *tooling.Registry
	retry   llm.RetryPolicy
	logger  *log.Logger
	router  chi.Router
}

func New(opts Options) *Server {
	if opts.Engines == nil {
		opts.Engines = editor.DefaultEngines()
	}
	s := &Server{
		cfg:     opts.Config,
		client:  opts.Client,
		store:   opts.Store,
		editors: opts.Editors,
		engines: opts.Engines,
		tools:   tooling.NewEditRegistry(),
		retry:   opts.Retry,
		logger:  logging.OrDiscard(opts.Logger),
	}
	if s.retry.Logger == nil {
		s.retry.Logger = s.logger
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/chat", s.handleChat)

	r.Get("/api/workspace", s.handleWorkspace)
	r.Post("/api/files", s.handleCreateFile)
	r.Get("/api/files/{id}", s.handleGetFile)
	r.Delete("/api/files/{id}", s.handleDeleteFile)
	r.Put("/api/files/{id}/content", s.handleUpdateContent)
	r.Put("/api/files/{id}/parent", s.handleUpdateParent)
	r.Post("/api/folders", s.handleCreateFolder)
	r.Delete("/api/folders/{id}", s.handleDeleteFolder)
	r.Put("/api/tabs/active", s.handleSetActiveTab)
	r.Post("/api/tabs/{id}", s.handleOpenTab)
	r.Delete("/api/tabs/{id}", s.handleCloseTab)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr and serves until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	clean := strings.TrimSpace(addr)
	if clean == "" {
		clean = config.DefaultListenAddr
	}
	listener, err := net.Listen("tcp", clean)
	if err != nil {
		return err
	}
	fmt.Printf("aira listening at http://%s\n", listener.Addr().String())
	return s.Serve(ctx, listener)
}

// Serve serves on an existing listener and shuts down gracefully when ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("http server listening on http://%s", listener.Addr().String())
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("[%s] %s %s (%s)", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) logRequestError(r *http.Request, status int, message string) {
	s.logger.Printf("[HTTP] error status=%d method=%s path=%s remote=%s: %s",
		status, r.Method, r.URL.Path, r.RemoteAddr, message)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.logRequestError(r, status, message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logRequestError(r, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok", "model": s.cfg.Model}
	if s.store != nil {
		payload["files"] = len(s.store.Files())
	}
	s.writeJSON(w, r, http.StatusOK, payload)
}

// Package api is the HTTP boundary: repository CRUD, request submission
// and polling, queue status, and registry enumeration, implemented exactly
// against the engine's queue and result model rather than owning any
// orchestration logic itself, following the teacher's server/routes/
// middleware layering.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"levelup/internal/compiler"
	"levelup/internal/engine"
	"levelup/internal/logging"
	"levelup/internal/mod"
	"levelup/internal/queue"
	"levelup/internal/repository"
	"levelup/internal/validator"
)

// Server is the HTTP API server. It holds no state of its own beyond what
// it needs to translate requests into calls against the repository
// catalogue, the queue, and the read-only registries.
type Server struct {
	router *http.ServeMux
	server *http.Server
	addr   string
	logger *logging.Logger

	workspaceRoot string
	repos         *repository.Store
	queue         *queue.Queue
	compilers     *compiler.Registry
	validators    *validator.Registry
	mods          *mod.Registry
}

// NewServer wires a Server against its dependencies and registers routes.
func NewServer(addr, workspaceRoot string, repos *repository.Store, q *queue.Queue, compilers *compiler.Registry, validators *validator.Registry, mods *mod.Registry, logger *logging.Logger) *Server {
	s := &Server{
		addr:          addr,
		logger:        logger,
		workspaceRoot: workspaceRoot,
		repos:         repos,
		queue:         q,
		compilers:     compilers,
		validators:    validators,
		mods:          mods,
		router:        http.NewServeMux(),
	}

	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{"addr": s.addr})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler, primarily for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}

// RepoConfigFor builds the engine.RepoConfig a request against repo needs,
// rooted at the server's workspace.
func RepoConfigFor(repo repository.Repository) engine.RepoConfig {
	return engine.RepoConfig{
		RemoteURL:    repo.URL,
		LocalPath:    repo.LocalPath,
		PostCheckout: repo.PostCheckout,
		CompilerID:   repo.CompilerID,
	}
}

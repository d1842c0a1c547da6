package api

import (
	"net/http"

	"levelup/internal/version"
)

// registerRoutes registers every endpoint §6 of the engine's external
// interfaces names, plus health/readiness and the cancellation endpoint
// supplementing the submit/poll pair.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/ready", s.handleReady)

	s.router.HandleFunc("/api/repos", s.handleRepos)     // GET list, POST create
	s.router.HandleFunc("/api/repos/", s.handleRepoByID) // PUT update, DELETE remove

	s.router.HandleFunc("/api/mods", s.handleSubmitMod) // POST submit
	s.router.HandleFunc("/api/mods/", s.handleModRoutes) // GET /:id/status, POST /:id/cancel

	s.router.HandleFunc("/api/queue/status", s.handleQueueStatus)

	s.router.HandleFunc("/api/available/mods", s.handleAvailableMods)
	s.router.HandleFunc("/api/available/validators", s.handleAvailableValidators)
	s.router.HandleFunc("/api/available/compilers", s.handleAvailableCompilers)

	s.router.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	WriteJSON(w, map[string]interface{}{
		"name":    "LevelUp HTTP API",
		"version": version.Version,
		"endpoints": []string{
			"GET /health",
			"GET /ready",
			"GET /api/repos",
			"POST /api/repos",
			"PUT /api/repos/{id}",
			"DELETE /api/repos/{id}",
			"POST /api/mods",
			"GET /api/mods/{id}/status",
			"POST /api/mods/{id}/cancel",
			"GET /api/queue/status",
			"GET /api/available/mods",
			"GET /api/available/validators",
			"GET /api/available/compilers",
		},
	}, http.StatusOK)
}

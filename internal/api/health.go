package api

import (
	"net/http"
	"os"
	"time"

	"levelup/internal/version"
)

// HealthResponse is the liveness probe response: the process is up and
// serving, regardless of whether its dependencies are ready.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ReadyResponse is the readiness probe response: whether the workspace and
// queue are in a state that can actually accept and process requests.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]bool   `json:"checks"`
	Details   map[string]string `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   version.Version,
	}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{}
	details := map[string]string{}

	if info, err := os.Stat(s.workspaceRoot); err != nil || !info.IsDir() {
		checks["workspace"] = false
		details["workspace"] = "workspace root is not accessible: " + s.workspaceRoot
	} else {
		checks["workspace"] = true
	}

	checks["queue"] = s.queue != nil

	status := "ready"
	httpStatus := http.StatusOK
	for _, ok := range checks {
		if !ok {
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	WriteJSON(w, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Details:   details,
	}, httpStatus)
}

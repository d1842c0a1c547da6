package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"levelup/internal/engine"
	levelerrors "levelup/internal/errors"
	"levelup/internal/repository"
	"levelup/internal/request"
)

// ---- /api/repos ----

type repoCreateRequest struct {
	URL             string `json:"url"`
	PostCheckout    string `json:"post_checkout,omitempty"`
	BuildCommand    string `json:"build_command,omitempty"`
	SingleTUCommand string `json:"single_tu_command,omitempty"`
}

type repoUpdateRequest struct {
	PostCheckout    *string `json:"post_checkout,omitempty"`
	BuildCommand    *string `json:"build_command,omitempty"`
	SingleTUCommand *string `json:"single_tu_command,omitempty"`
	CompilerID      *string `json:"compiler_id,omitempty"`
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, s.repos.List(), http.StatusOK)
	case http.MethodPost:
		var body repoCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			BadRequest(w, "invalid request body: "+err.Error())
			return
		}
		if body.URL == "" {
			BadRequest(w, "url is required")
			return
		}
		repo, err := s.repos.Create(uuid.New().String(), s.workspaceRoot, body.URL, body.PostCheckout, body.BuildCommand, body.SingleTUCommand)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, repo, http.StatusCreated)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRepoByID(w http.ResponseWriter, r *http.Request) {
	id := PathParam(r.URL.Path, "/api/repos/")
	if id == "" {
		BadRequest(w, "repository id is required")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var body repoUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			BadRequest(w, "invalid request body: "+err.Error())
			return
		}
		repo, err := s.repos.Update(id, body.PostCheckout, body.BuildCommand, body.SingleTUCommand, body.CompilerID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, repo, http.StatusOK)
	case http.MethodDelete:
		if err := s.repos.Delete(id); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- /api/mods ----

type modSubmitRequest struct {
	Type        string `json:"type"`
	RepoName    string `json:"repo_name"`
	RepoURL     string `json:"repo_url"`
	ModType     string `json:"mod_type,omitempty"`
	CommitHash  string `json:"commit_hash,omitempty"`
	Description string `json:"description,omitempty"`
}

type modSubmitResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleSubmitMod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body modSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if body.RepoURL == "" {
		BadRequest(w, "repo_url is required")
		return
	}

	req := request.ModRequest{
		ID:          uuid.New().String(),
		RepoURL:     body.RepoURL,
		RepoName:    body.RepoName,
		Description: body.Description,
		CreatedAt:   time.Now(),
	}

	switch body.Type {
	case "builtin":
		if body.ModType == "" {
			BadRequest(w, "mod_type is required for type=builtin")
			return
		}
		req.Source = request.SourceBuiltin
		req.ModID = body.ModType
	case "commit":
		if body.CommitHash == "" {
			BadRequest(w, "commit_hash is required for type=commit")
			return
		}
		req.Source = request.SourceCommit
		req.CommitHash = body.CommitHash
	default:
		BadRequest(w, `type must be "builtin" or "commit"`)
		return
	}

	repoConfig := s.resolveRepoConfig(body.RepoURL, body.RepoName)
	if err := s.queue.Submit(req, repoConfig); err != nil {
		InternalError(w, "failed to submit request", err)
		return
	}

	WriteJSON(w, modSubmitResponse{ID: req.ID}, http.StatusAccepted)
}

// resolveRepoConfig looks up repoURL in the catalogue for its operational
// hooks; a repository submitted without first being registered still gets
// a derived local clone path, consistent with Store.Create's naming.
func (s *Server) resolveRepoConfig(repoURL, repoName string) engine.RepoConfig {
	for _, repo := range s.repos.List() {
		if repo.URL == repoURL {
			return RepoConfigFor(repo)
		}
	}
	name := repoName
	if name == "" {
		name = repository.NameFromURL(repoURL)
	}
	return engine.RepoConfig{
		RemoteURL: repoURL,
		LocalPath: filepath.Join(s.workspaceRoot, "repos", name),
	}
}

type statusResponse struct {
	RequestID         string                 `json:"request_id"`
	Status            request.Status         `json:"status"`
	Message           string                 `json:"message"`
	ValidationResults []validationResultJSON `json:"validation_results"`
	AcceptedCommits   []string               `json:"accepted_commits"`
	RejectedCommits   []string               `json:"rejected_commits"`
	Timestamp         time.Time              `json:"timestamp"`
}

type validationResultJSON struct {
	FilePath string `json:"file_path"`
	Passed   bool   `json:"passed"`
}

func toStatusResponse(r *request.Result) statusResponse {
	validationResults := make([]validationResultJSON, 0, len(r.ValidationResults))
	for _, vr := range r.ValidationResults {
		validationResults = append(validationResults, validationResultJSON{FilePath: vr.FilePath, Passed: vr.Passed})
	}
	return statusResponse{
		RequestID:         r.RequestID,
		Status:            r.Status,
		Message:           r.Message,
		ValidationResults: validationResults,
		AcceptedCommits:   r.AcceptedCommits,
		RejectedCommits:   r.RejectedCommits,
		Timestamp:         r.Timestamp,
	}
}

// handleModRoutes dispatches /api/mods/{id}/status and /api/mods/{id}/cancel.
func (s *Server) handleModRoutes(w http.ResponseWriter, r *http.Request) {
	id, rest := SplitTrailingSegment(r.URL.Path, "/api/mods/")
	if id == "" {
		BadRequest(w, "request id is required")
		return
	}

	switch {
	case rest == "/status" && r.Method == http.MethodGet:
		result, ok := s.queue.Status(id)
		if !ok {
			NotFound(w, "unknown request: "+id)
			return
		}
		WriteJSON(w, toStatusResponse(result), http.StatusOK)
	case rest == "/cancel" && r.Method == http.MethodPost:
		if err := s.queue.Cancel(id); err != nil {
			NotFound(w, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

// ---- /api/queue/status ----

type queueStatusResponse struct {
	QueueSize int              `json:"queue_size"`
	Results   []statusResponse `json:"results"`
	Timestamp time.Time        `json:"timestamp"`
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.queue.Snapshot()
	results := make([]statusResponse, 0, len(snap.Results))
	for _, res := range snap.Results {
		results = append(results, toStatusResponse(res))
	}
	WriteJSON(w, queueStatusResponse{
		QueueSize: snap.QueueSize,
		Results:   results,
		Timestamp: snap.Timestamp,
	}, http.StatusOK)
}

// ---- /api/available/{mods,validators,compilers} ----

type availableEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleAvailableMods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := make([]availableEntry, 0)
	for _, m := range s.mods.List() {
		entries = append(entries, availableEntry{ID: m.ID, Name: m.Name})
	}
	WriteJSON(w, entries, http.StatusOK)
}

func (s *Server) handleAvailableValidators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := make([]availableEntry, 0)
	for _, v := range s.validators.List() {
		entries = append(entries, availableEntry{ID: v.ID, Name: v.ID})
	}
	WriteJSON(w, entries, http.StatusOK)
}

func (s *Server) handleAvailableCompilers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := make([]availableEntry, 0)
	for _, c := range s.compilers.List() {
		entries = append(entries, availableEntry{ID: c.ID, Name: c.Name})
	}
	WriteJSON(w, entries, http.StatusOK)
}

// writeEngineError writes err with the status its LevelUpError code implies,
// falling back to 500 for anything else.
func writeEngineError(w http.ResponseWriter, err error) {
	if lue, ok := err.(*levelerrors.LevelUpError); ok {
		WriteLevelUpError(w, lue)
		return
	}
	InternalError(w, "internal error", err)
}

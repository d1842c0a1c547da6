// Package repository is the repository catalogue: the set of configured
// source repositories the engine can operate against, persisted as a flat
// JSON file of record rather than a database, per spec §3/§6.
package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	levelerrors "levelup/internal/errors"
)

// Repository is one configured source repository's identity and optional
// operational hooks.
type Repository struct {
	ID               string `json:"id"`
	URL              string `json:"url"`
	Name             string `json:"name"`
	LocalPath        string `json:"localPath"`
	PostCheckout     string `json:"postCheckout,omitempty"`
	BuildCommand     string `json:"buildCommand,omitempty"`
	SingleTUCommand  string `json:"singleTuCommand,omitempty"`
	CompilerID       string `json:"compilerId,omitempty"`
}

var nameFromURLRe = regexp.MustCompile(`[^/]+$`)

// NameFromURL derives a repository's display name from its remote URL: the
// last path segment with a trailing ".git" suffix stripped.
func NameFromURL(url string) string {
	segment := nameFromURLRe.FindString(strings.TrimRight(url, "/"))
	return strings.TrimSuffix(segment, ".git")
}

// Store is a JSON-file-backed CRUD store for the repository catalogue,
// guarded by a mutex so concurrent HTTP handlers never interleave a
// read-modify-write cycle.
type Store struct {
	path string

	mu    sync.Mutex
	repos map[string]Repository
}

// NewStore opens (or prepares to create) the catalogue file at
// {workspaceRoot}/repos.json.
func NewStore(workspaceRoot string) *Store {
	return &Store{
		path:  filepath.Join(workspaceRoot, "repos.json"),
		repos: make(map[string]Repository),
	}
}

// Load reads the catalogue file, replacing in-memory state. A missing file
// is treated as an empty catalogue, not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.repos = make(map[string]Repository)
			return nil
		}
		return levelerrors.New(levelerrors.InternalError, "failed to read repository catalogue", err)
	}

	var list []Repository
	if err := json.Unmarshal(data, &list); err != nil {
		return levelerrors.New(levelerrors.InternalError, "failed to parse repository catalogue", err)
	}

	s.repos = make(map[string]Repository, len(list))
	for _, r := range list {
		s.repos[r.ID] = r
	}
	return nil
}

// saveLocked writes the current in-memory catalogue to disk. Callers must
// hold s.mu.
func (s *Store) saveLocked() error {
	list := make([]Repository, 0, len(s.repos))
	for _, r := range s.repos {
		list = append(list, r)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return levelerrors.New(levelerrors.InternalError, "failed to marshal repository catalogue", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return levelerrors.New(levelerrors.InternalError, "failed to create workspace directory", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return levelerrors.New(levelerrors.InternalError, "failed to write repository catalogue", err)
	}
	return nil
}

// List returns every configured repository, in no particular order.
func (s *Store) List() []Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Repository, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	return out
}

// Get looks up a repository by id.
func (s *Store) Get(id string) (Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return Repository{}, levelerrors.New(levelerrors.NotFound, "unknown repository: "+id, nil)
	}
	return r, nil
}

// Create adds a new repository, deriving its name and local clone path
// from the URL, and persists the catalogue.
func (s *Store) Create(id, workspaceRoot, url, postCheckout, buildCommand, singleTUCommand string) (Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := NameFromURL(url)
	r := Repository{
		ID:              id,
		URL:             url,
		Name:            name,
		LocalPath:       filepath.Join(workspaceRoot, "repos", name),
		PostCheckout:    postCheckout,
		BuildCommand:    buildCommand,
		SingleTUCommand: singleTUCommand,
	}
	s.repos[id] = r
	if err := s.saveLocked(); err != nil {
		return Repository{}, err
	}
	return r, nil
}

// Update applies non-empty optional fields to an existing repository and
// persists the catalogue.
func (s *Store) Update(id string, postCheckout, buildCommand, singleTUCommand, compilerID *string) (Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.repos[id]
	if !ok {
		return Repository{}, levelerrors.New(levelerrors.NotFound, "unknown repository: "+id, nil)
	}
	if postCheckout != nil {
		r.PostCheckout = *postCheckout
	}
	if buildCommand != nil {
		r.BuildCommand = *buildCommand
	}
	if singleTUCommand != nil {
		r.SingleTUCommand = *singleTUCommand
	}
	if compilerID != nil {
		r.CompilerID = *compilerID
	}
	s.repos[id] = r
	if err := s.saveLocked(); err != nil {
		return Repository{}, err
	}
	return r, nil
}

// Delete removes a repository from the catalogue (the clone on disk is
// left untouched; deletion only removes administrative record-keeping).
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[id]; !ok {
		return levelerrors.New(levelerrors.NotFound, "unknown repository: "+id, nil)
	}
	delete(s.repos, id)
	return s.saveLocked()
}

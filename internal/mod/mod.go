// Package mod defines high-level modernization planners. A Mod inspects a
// symbol index and returns the full list of (refactoring id, arguments)
// steps at once; it never mutates files itself — mutation is the
// refactoring's job.
package mod

import (
	"context"

	levelerrors "levelup/internal/errors"
	"levelup/internal/symbols"
)

// Step is one planner-emitted instruction: apply the refactoring named by
// RefactoringID with these arguments.
type Step struct {
	RefactoringID string
	Args          map[string]string
}

// Mod is the planner contract. Generate returns every step up front rather
// than a true lazy iterator — Go has no generator syntax, and the engine
// consumes the whole stream sequentially regardless, so a slice is the
// idiomatic stand-in the spec's "lazy sequence" compiles down to here.
type Mod interface {
	// ID is the stable identifier used at the external API boundary.
	ID() string
	// Name is a human-readable display name.
	Name() string
	// Generate inspects table (auto-refreshing) and returns the ordered
	// steps this Mod wants applied.
	Generate(ctx context.Context, table *symbols.Table) ([]Step, error)
}

// Registry holds the closed set of configured Mods, keyed by id.
type Registry struct {
	mods map[string]Mod
}

// NewRegistry builds a Registry from a list of Mods.
func NewRegistry(mods ...Mod) *Registry {
	r := &Registry{mods: make(map[string]Mod, len(mods))}
	for _, m := range mods {
		r.mods[m.ID()] = m
	}
	return r
}

// Get looks up a Mod by id.
func (r *Registry) Get(id string) (Mod, error) {
	m, ok := r.mods[id]
	if !ok {
		return nil, levelerrors.New(levelerrors.NotFound, "unknown mod: "+id, nil)
	}
	return m, nil
}

// List returns every registered Mod's (id, name) pair for the "available
// mods" API endpoint.
func (r *Registry) List() []struct{ ID, Name string } {
	out := make([]struct{ ID, Name string }, 0, len(r.mods))
	for _, m := range r.mods {
		out = append(out, struct{ ID, Name string }{ID: m.ID(), Name: m.Name()})
	}
	return out
}

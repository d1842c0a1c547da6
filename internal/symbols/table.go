package symbols

import (
	"context"
	"sync"

	levelerrors "levelup/internal/errors"
)

// Table is a queryable, mutable index of the symbols in one repository
// snapshot. It is safe for concurrent use.
//
// A Table tracks which files have been touched since the last extractor
// run in a dirty set. Any query made with autoRefresh=true first drains
// that set, re-running the extractor and reloading the affected symbols
// before answering, so a caller never observes a symbol whose source file
// has since changed on disk.
type Table struct {
	extractor *Extractor
	repoPath  string

	mu        sync.RWMutex
	byName    map[string]Symbol   // qualified name -> symbol
	byFile    map[string]map[string]struct{} // repo-relative path -> set of qualified names
	dirty     map[string]struct{}            // repo-relative paths pending re-extraction
}

// NewTable creates an empty Table bound to a repository path and the
// extractor used to (re)populate it.
func NewTable(repoPath string, extractor *Extractor) *Table {
	return &Table{
		extractor: extractor,
		repoPath:  repoPath,
		byName:    make(map[string]Symbol),
		byFile:    make(map[string]map[string]struct{}),
		dirty:     make(map[string]struct{}),
	}
}

// LoadFromDoxygen runs the extractor (if its output is stale) and (re)builds
// the table from its XML output, discarding any prior contents.
func (t *Table) LoadFromDoxygen(ctx context.Context) error {
	if err := t.extractor.EnsureFresh(ctx, t.repoPath); err != nil {
		return err
	}
	syms, err := ParseDirectory(t.repoPath)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.byName = make(map[string]Symbol, len(syms))
	t.byFile = make(map[string]map[string]struct{})
	t.dirty = make(map[string]struct{})
	for _, s := range syms {
		t.indexLocked(s)
	}
	return nil
}

// indexLocked inserts sym into byName/byFile. Callers must hold t.mu.
func (t *Table) indexLocked(sym Symbol) {
	t.byName[sym.QualifiedName] = sym
	if sym.FilePath == "" {
		return
	}
	set, ok := t.byFile[sym.FilePath]
	if !ok {
		set = make(map[string]struct{})
		t.byFile[sym.FilePath] = set
	}
	set[sym.QualifiedName] = struct{}{}
}

// LoadSymbolsForTest replaces the table's contents with syms directly,
// bypassing the extractor. It exists so packages that consume a Table
// (refactor, mod, engine) can exercise their logic in tests without
// shelling out to Doxygen.
func (t *Table) LoadSymbolsForTest(syms []Symbol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byName = make(map[string]Symbol, len(syms))
	t.byFile = make(map[string]map[string]struct{})
	t.dirty = make(map[string]struct{})
	for _, s := range syms {
		t.indexLocked(s)
	}
}

// InvalidateFile marks path as dirty: its symbols are stale and must be
// re-extracted before the next auto-refreshing query.
func (t *Table) InvalidateFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty[path] = struct{}{}
}

// RefreshDirtyFiles re-runs the extractor over the whole repository and
// reloads the symbols belonging to every currently dirty file, then clears
// the dirty set. Doxygen has no incremental mode, so a refresh always
// re-parses the full XML output. The table entries for dirty files, and the
// entries with no file path (the extractor records none for classes,
// structs and namespaces), are replaced; entries of other files are kept.
func (t *Table) RefreshDirtyFiles(ctx context.Context) error {
	t.mu.RLock()
	if len(t.dirty) == 0 {
		t.mu.RUnlock()
		return nil
	}
	dirty := make(map[string]struct{}, len(t.dirty))
	for k := range t.dirty {
		dirty[k] = struct{}{}
	}
	t.mu.RUnlock()

	if err := t.extractor.Run(ctx, t.repoPath); err != nil {
		return err
	}
	syms, err := ParseDirectory(t.repoPath)
	if err != nil {
		return err
	}

	byFile := make(map[string][]Symbol)
	for _, s := range syms {
		byFile[s.FilePath] = append(byFile[s.FilePath], s)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Entries with no file path belong to no dirty file; replace all of
	// them from the fresh parse so none outlives its source.
	for name, s := range t.byName {
		if s.FilePath == "" {
			delete(t.byName, name)
		}
	}
	for _, s := range byFile[""] {
		t.indexLocked(s)
	}
	for path := range dirty {
		if oldNames, ok := t.byFile[path]; ok {
			for name := range oldNames {
				delete(t.byName, name)
			}
		}
		delete(t.byFile, path)
		for _, s := range byFile[path] {
			t.indexLocked(s)
		}
		delete(t.dirty, path)
	}
	return nil
}

// ensureFresh refreshes dirty files when autoRefresh is requested.
func (t *Table) ensureFresh(ctx context.Context, autoRefresh bool) error {
	if !autoRefresh {
		return nil
	}
	return t.RefreshDirtyFiles(ctx)
}

// GetSymbol looks up a symbol by its qualified name.
func (t *Table) GetSymbol(ctx context.Context, qualifiedName string, autoRefresh bool) (*Symbol, error) {
	if err := t.ensureFresh(ctx, autoRefresh); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	sym, ok := t.byName[qualifiedName]
	if !ok {
		return nil, levelerrors.New(levelerrors.NotFound, "symbol not found: "+qualifiedName, nil)
	}
	return &sym, nil
}

// GetSymbolsInFile returns every symbol whose FilePath equals path.
func (t *Table) GetSymbolsInFile(ctx context.Context, path string, autoRefresh bool) ([]Symbol, error) {
	if err := t.ensureFresh(ctx, autoRefresh); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := t.byFile[path]
	out := make([]Symbol, 0, len(names))
	for name := range names {
		out = append(out, t.byName[name])
	}
	return out, nil
}

// GetAllSymbols returns every symbol currently indexed.
func (t *Table) GetAllSymbols(ctx context.Context, autoRefresh bool) ([]Symbol, error) {
	if err := t.ensureFresh(ctx, autoRefresh); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Symbol, 0, len(t.byName))
	for _, s := range t.byName {
		out = append(out, s)
	}
	return out, nil
}

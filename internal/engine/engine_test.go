package engine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"levelup/internal/cache"
	"levelup/internal/compiler"
	"levelup/internal/logging"
	"levelup/internal/mod"
	"levelup/internal/refactor"
	"levelup/internal/request"
	"levelup/internal/symbols"
	"levelup/internal/validator"
	"levelup/internal/worktree"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: &bytes.Buffer{}})
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

// initFixtureRepo creates a standalone repository with one header file,
// committed on "main".
func initFixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@levelup.dev")
	runGit(t, dir, "config", "user.name", "LevelUp Test")

	if err := os.WriteFile(filepath.Join(dir, "widget.h"), []byte("struct Widget {\n\tint size();\n};\n"), 0o644); err != nil {
		t.Fatalf("write fixture header: %v", err)
	}
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

// fakeRefactoring commits a trivial change (or skips) without touching
// astedit, so these tests exercise the engine's accept/reject/rollback
// bookkeeping without requiring a cgo-enabled tree-sitter build.
type fakeRefactoring struct {
	id            string
	validatorName string
	commit        bool
}

func (f *fakeRefactoring) ID() string { return f.id }

func (f *fakeRefactoring) Apply(ctx context.Context, wt *worktree.Worktree, repoPath string, table *symbols.Table, args map[string]string) (*refactor.GitCommit, error) {
	if !f.commit {
		return nil, nil
	}
	path := filepath.Join(repoPath, "widget.h")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, append(content, []byte("// touched by "+f.id+"\n")...), 0o644); err != nil {
		return nil, err
	}
	committed, err := wt.Commit(ctx, "fake change: "+f.id)
	if err != nil {
		return nil, err
	}
	if !committed {
		return nil, nil
	}
	hash, err := wt.GetCommitHash(ctx, "HEAD")
	if err != nil {
		return nil, err
	}
	return &refactor.GitCommit{
		Worktree:           wt,
		Message:            "fake change: " + f.id,
		Hash:               hash,
		ValidatorName:      f.validatorName,
		FilePath:           "widget.h",
		AffectedSymbols:    []string{"Widget::size"},
		SuccessProbability: 1.0,
	}, nil
}

type fakeMod struct{ steps []mod.Step }

func (f *fakeMod) ID() string   { return "fake" }
func (f *fakeMod) Name() string { return "Fake" }
func (f *fakeMod) Generate(ctx context.Context, table *symbols.Table) ([]mod.Step, error) {
	return f.steps, nil
}

type fakeCompiler struct{ asm string }

func (f *fakeCompiler) ID() string   { return "fake" }
func (f *fakeCompiler) Name() string { return "Fake Compiler" }
func (f *fakeCompiler) CompileFile(ctx context.Context, source string, level int) (*compiler.Output, error) {
	return &compiler.Output{SourcePath: source, AsmText: f.asm}, nil
}
func (f *fakeCompiler) GetOptimizationFlags(level int) []string { return nil }

type countingCompiler struct {
	id    string
	asm   string
	calls int
}

func (f *countingCompiler) ID() string   { return f.id }
func (f *countingCompiler) Name() string { return "Counting Compiler" }
func (f *countingCompiler) CompileFile(ctx context.Context, source string, level int) (*compiler.Output, error) {
	f.calls++
	return &compiler.Output{SourcePath: source, AsmText: f.asm}, nil
}
func (f *countingCompiler) GetOptimizationFlags(level int) []string { return nil }

type fakeValidator struct {
	id    string
	level int
	pass  bool
}

func (f *fakeValidator) ID() string             { return f.id }
func (f *fakeValidator) OptimizationLevel() int { return f.level }
func (f *fakeValidator) Validate(original, modified string, symbolNames []string) bool {
	return f.pass
}

func tableWithWidgetSymbol(t *testing.T, repoPath string) *symbols.Table {
	t.Helper()
	table := symbols.NewTable(repoPath, symbols.NewExtractor("unused", testLogger()))
	table.LoadSymbolsForTest([]symbols.Symbol{
		{
			Kind:          symbols.KindFunction,
			Name:          "size",
			QualifiedName: "Widget::size",
			FilePath:      "widget.h",
			StartLine:     2,
		},
	})
	return table
}

func newTestEngine(rf refactor.Refactoring, m mod.Mod, cv compiler.Variant, v validator.Validator) *Engine {
	return &Engine{
		Compilers:    compiler.NewRegistry(cv),
		Validators:   validator.NewRegistry(v),
		Refactorings: refactor.NewRegistry(rf),
		Mods:         mod.NewRegistry(m),
		Logger:       testLogger(),
	}
}

func TestRunBuiltin_AcceptsPassingCommit(t *testing.T) {
	dir := initFixtureRepo(t)
	wt := worktree.New(dir, dir, testLogger())
	ctx := context.Background()
	if err := wt.PrepareWorkBranch(ctx, ""); err != nil {
		t.Fatalf("PrepareWorkBranch() error = %v", err)
	}
	table := tableWithWidgetSymbol(t, dir)

	rf := &fakeRefactoring{id: "fake_refactoring", validatorName: "fake_validator", commit: true}
	m := &fakeMod{steps: []mod.Step{{RefactoringID: "fake_refactoring", Args: map[string]string{}}}}
	cv := &fakeCompiler{asm: "Widget_size PROC\n\tret\nWidget_size ENDP\n"}
	v := &fakeValidator{id: "fake_validator", level: 0, pass: true}
	e := newTestEngine(rf, m, cv, v)

	req := request.ModRequest{ID: "req-1", Source: request.SourceBuiltin, ModID: "fake"}
	out, err := e.runBuiltin(ctx, req, wt, table, cv)
	if err != nil {
		t.Fatalf("runBuiltin() error = %v", err)
	}
	if len(out.accepted) != 1 {
		t.Fatalf("accepted = %v, want 1 entry", out.accepted)
	}
	if len(out.rejected) != 0 {
		t.Fatalf("rejected = %v, want 0 entries", out.rejected)
	}
}

func TestRunBuiltin_RollsBackFailingCommit(t *testing.T) {
	dir := initFixtureRepo(t)
	wt := worktree.New(dir, dir, testLogger())
	ctx := context.Background()
	if err := wt.PrepareWorkBranch(ctx, ""); err != nil {
		t.Fatalf("PrepareWorkBranch() error = %v", err)
	}
	table := tableWithWidgetSymbol(t, dir)

	rf := &fakeRefactoring{id: "fake_refactoring", validatorName: "fake_validator", commit: true}
	m := &fakeMod{steps: []mod.Step{{RefactoringID: "fake_refactoring", Args: map[string]string{}}}}
	cv := &fakeCompiler{asm: "Widget_size PROC\n\tret\nWidget_size ENDP\n"}
	v := &fakeValidator{id: "fake_validator", level: 0, pass: false}
	e := newTestEngine(rf, m, cv, v)

	req := request.ModRequest{ID: "req-2", Source: request.SourceBuiltin, ModID: "fake"}
	out, err := e.runBuiltin(ctx, req, wt, table, cv)
	if err != nil {
		t.Fatalf("runBuiltin() error = %v", err)
	}
	if len(out.accepted) != 0 {
		t.Fatalf("accepted = %v, want 0 entries", out.accepted)
	}
	if len(out.rejected) != 1 {
		t.Fatalf("rejected = %v, want 1 entry", out.rejected)
	}

	content, err := os.ReadFile(filepath.Join(dir, "widget.h"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if strings.Contains(string(content), "touched by") {
		t.Errorf("content = %q, want the rejected change rolled back", content)
	}
}

func TestRunBuiltin_SkipsPreconditionMismatch(t *testing.T) {
	dir := initFixtureRepo(t)
	wt := worktree.New(dir, dir, testLogger())
	ctx := context.Background()
	if err := wt.PrepareWorkBranch(ctx, ""); err != nil {
		t.Fatalf("PrepareWorkBranch() error = %v", err)
	}
	table := tableWithWidgetSymbol(t, dir)

	rf := &fakeRefactoring{id: "fake_refactoring", validatorName: "fake_validator", commit: false}
	m := &fakeMod{steps: []mod.Step{{RefactoringID: "fake_refactoring", Args: map[string]string{}}}}
	cv := &fakeCompiler{}
	v := &fakeValidator{id: "fake_validator"}
	e := newTestEngine(rf, m, cv, v)

	req := request.ModRequest{ID: "req-3", Source: request.SourceBuiltin, ModID: "fake"}
	out, err := e.runBuiltin(ctx, req, wt, table, cv)
	if err != nil {
		t.Fatalf("runBuiltin() error = %v", err)
	}
	if out.attempted {
		t.Error("attempted = true, want false for an all-skip run")
	}
	if len(out.accepted)+len(out.rejected) != 0 {
		t.Errorf("accepted/rejected non-empty for a precondition-mismatch skip")
	}
}

func TestFinalize_AcceptedSquashesOntoWorkBranch(t *testing.T) {
	dir := initFixtureRepo(t)
	wt := worktree.New(dir, dir, testLogger())
	ctx := context.Background()
	if err := wt.PrepareWorkBranch(ctx, ""); err != nil {
		t.Fatalf("PrepareWorkBranch() error = %v", err)
	}

	atomicBranch := worktree.AtomicBranchName("req-4")
	if err := wt.CreateAtomicBranch(ctx, worktree.WorkBranch, atomicBranch); err != nil {
		t.Fatalf("CreateAtomicBranch() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "widget.h"), []byte("struct Widget {\n\tint size() const;\n};\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := wt.Commit(ctx, "add const"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	e := &Engine{Logger: testLogger()}
	if err := e.finalize(ctx, wt, atomicBranch, outcome{accepted: []string{"add const"}}); err != nil {
		t.Fatalf("finalize() error = %v", err)
	}

	branch, err := wt.GetCurrentBranch(ctx)
	if err != nil {
		t.Fatalf("GetCurrentBranch() error = %v", err)
	}
	if branch != worktree.WorkBranch {
		t.Errorf("current branch = %q, want %q", branch, worktree.WorkBranch)
	}

	content, err := os.ReadFile(filepath.Join(dir, "widget.h"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if !strings.Contains(string(content), "const") {
		t.Error("work branch missing squashed change after finalize")
	}
}

func TestFinalize_NothingAcceptedDeletesAtomicBranch(t *testing.T) {
	dir := initFixtureRepo(t)
	wt := worktree.New(dir, dir, testLogger())
	ctx := context.Background()
	if err := wt.PrepareWorkBranch(ctx, ""); err != nil {
		t.Fatalf("PrepareWorkBranch() error = %v", err)
	}

	atomicBranch := worktree.AtomicBranchName("req-5")
	if err := wt.CreateAtomicBranch(ctx, worktree.WorkBranch, atomicBranch); err != nil {
		t.Fatalf("CreateAtomicBranch() error = %v", err)
	}

	e := &Engine{Logger: testLogger()}
	if err := e.finalize(ctx, wt, atomicBranch, outcome{}); err != nil {
		t.Fatalf("finalize() error = %v", err)
	}

	branch, err := wt.GetCurrentBranch(ctx)
	if err != nil {
		t.Fatalf("GetCurrentBranch() error = %v", err)
	}
	if branch != worktree.WorkBranch {
		t.Errorf("current branch = %q, want %q", branch, worktree.WorkBranch)
	}
}

func TestBuildResult(t *testing.T) {
	e := &Engine{}
	cases := []struct {
		name string
		out  outcome
		want request.Status
	}{
		{"all accepted", outcome{accepted: []string{"a"}, attempted: true}, request.StatusSuccess},
		{"mixed", outcome{accepted: []string{"a"}, rejected: []string{"b"}, attempted: true}, request.StatusPartial},
		{"all rejected", outcome{rejected: []string{"b"}, attempted: true}, request.StatusFailed},
		{"nothing attempted", outcome{}, request.StatusFailed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result := e.buildResult("req", c.out)
			if result.Status != c.want {
				t.Errorf("Status = %v, want %v", result.Status, c.want)
			}
		})
	}
}

func TestCompilerFor_DefaultsToClang(t *testing.T) {
	clang := &fakeCompiler{}
	e := &Engine{Compilers: compiler.NewRegistry(fakeNamedCompiler{fakeCompiler: clang, id: "clang"})}
	v, err := e.compilerFor(RepoConfig{})
	if err != nil {
		t.Fatalf("compilerFor() error = %v", err)
	}
	if v.ID() != "clang" {
		t.Errorf("ID() = %q, want %q", v.ID(), "clang")
	}
}

func TestCompilerFor_RespectsExplicitChoice(t *testing.T) {
	e := &Engine{Compilers: compiler.NewRegistry(
		fakeNamedCompiler{fakeCompiler: &fakeCompiler{}, id: "clang"},
		fakeNamedCompiler{fakeCompiler: &fakeCompiler{}, id: "msvc"},
	)}
	v, err := e.compilerFor(RepoConfig{CompilerID: "msvc"})
	if err != nil {
		t.Fatalf("compilerFor() error = %v", err)
	}
	if v.ID() != "msvc" {
		t.Errorf("ID() = %q, want %q", v.ID(), "msvc")
	}
}

func TestCompileCached_SkipsRecompilationOnHit(t *testing.T) {
	dir := t.TempDir()
	db, err := cache.Open(dir, testLogger())
	if err != nil {
		t.Fatalf("cache.Open() error = %v", err)
	}
	defer db.Close()
	asmCache, err := cache.NewAssemblyCache(db)
	if err != nil {
		t.Fatalf("cache.NewAssemblyCache() error = %v", err)
	}
	defer asmCache.Close()

	cv := &countingCompiler{id: "clang", asm: "widget PROC\n\tret\nwidget ENDP\n"}
	e := &Engine{Cache: asmCache, Logger: testLogger()}
	src := filepath.Join(dir, "widget.h")

	asm1, err := e.compileCached(context.Background(), cv, 0, "struct Widget {};\n", src)
	if err != nil {
		t.Fatalf("compileCached() error = %v", err)
	}
	asm2, err := e.compileCached(context.Background(), cv, 0, "struct Widget {};\n", src)
	if err != nil {
		t.Fatalf("compileCached() error = %v", err)
	}
	if asm1 != asm2 {
		t.Errorf("asm1 = %q, asm2 = %q, want equal", asm1, asm2)
	}
	if cv.calls != 1 {
		t.Errorf("CompileFile called %d times, want 1 (second lookup should hit the cache)", cv.calls)
	}
}

func TestCompileCached_DifferentContentMisses(t *testing.T) {
	dir := t.TempDir()
	db, err := cache.Open(dir, testLogger())
	if err != nil {
		t.Fatalf("cache.Open() error = %v", err)
	}
	defer db.Close()
	asmCache, err := cache.NewAssemblyCache(db)
	if err != nil {
		t.Fatalf("cache.NewAssemblyCache() error = %v", err)
	}
	defer asmCache.Close()

	cv := &countingCompiler{id: "clang", asm: "widget PROC\n\tret\nwidget ENDP\n"}
	e := &Engine{Cache: asmCache, Logger: testLogger()}
	src := filepath.Join(dir, "widget.h")

	if _, err := e.compileCached(context.Background(), cv, 0, "version one", src); err != nil {
		t.Fatalf("compileCached() error = %v", err)
	}
	if _, err := e.compileCached(context.Background(), cv, 0, "version two", src); err != nil {
		t.Fatalf("compileCached() error = %v", err)
	}
	if cv.calls != 2 {
		t.Errorf("CompileFile called %d times, want 2 (different content hashes must not collide)", cv.calls)
	}
}

func TestCompileCached_NilCacheAlwaysCompiles(t *testing.T) {
	cv := &countingCompiler{id: "clang", asm: "widget PROC\n\tret\nwidget ENDP\n"}
	e := &Engine{Logger: testLogger()}

	if _, err := e.compileCached(context.Background(), cv, 0, "content", "/tmp/widget.h"); err != nil {
		t.Fatalf("compileCached() error = %v", err)
	}
	if _, err := e.compileCached(context.Background(), cv, 0, "content", "/tmp/widget.h"); err != nil {
		t.Fatalf("compileCached() error = %v", err)
	}
	if cv.calls != 2 {
		t.Errorf("CompileFile called %d times, want 2 (no cache means no memoization)", cv.calls)
	}
}

// fakeNamedCompiler lets the compilerFor tests register more than one
// distinctly-identified fakeCompiler.
type fakeNamedCompiler struct {
	*fakeCompiler
	id string
}

func (f fakeNamedCompiler) ID() string { return f.id }

func TestRunCommit_RejectsOnFailedValidation(t *testing.T) {
	dir := initFixtureRepo(t)
	wt := worktree.New(dir, dir, testLogger())
	ctx := context.Background()
	if err := wt.PrepareWorkBranch(ctx, ""); err != nil {
		t.Fatalf("PrepareWorkBranch() error = %v", err)
	}

	base, err := wt.GetCommitHash(ctx, "HEAD")
	if err != nil {
		t.Fatalf("GetCommitHash() error = %v", err)
	}

	// Build the candidate commit on a side branch so it can be
	// cherry-picked back onto the work branch, mirroring how a real
	// COMMIT-sourced request is submitted.
	runGit(t, dir, "checkout", "-b", "side")
	if err := os.WriteFile(filepath.Join(dir, "widget.h"), []byte("struct Widget {\n\tint size() const;\n};\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := wt.Commit(ctx, "add const on side"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	sideHash, err := wt.GetCommitHash(ctx, "HEAD")
	if err != nil {
		t.Fatalf("GetCommitHash() error = %v", err)
	}
	runGit(t, dir, "checkout", worktree.WorkBranch)

	table := tableWithWidgetSymbol(t, dir)
	cv := &fakeCompiler{asm: "Widget_size PROC\n\tret\nWidget_size ENDP\n"}
	v := &fakeValidator{id: "asm_o0", level: 0, pass: false}
	e := newTestEngine(&fakeRefactoring{}, &fakeMod{}, cv, v)

	req := request.ModRequest{ID: "req-6", Source: request.SourceCommit, CommitHash: sideHash}
	out, err := e.runCommit(ctx, req, wt, table, cv)
	if err != nil {
		t.Fatalf("runCommit() error = %v", err)
	}
	if len(out.accepted) != 0 {
		t.Fatalf("accepted = %v, want 0 entries", out.accepted)
	}
	if len(out.rejected) != 1 {
		t.Fatalf("rejected = %v, want 1 entry", out.rejected)
	}

	head, err := wt.GetCommitHash(ctx, "HEAD")
	if err != nil {
		t.Fatalf("GetCommitHash() error = %v", err)
	}
	if head != base {
		t.Errorf("HEAD = %s, want reset back to %s after rejected cherry-pick", head, base)
	}
}

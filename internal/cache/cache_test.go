package cache

import (
	"bytes"
	"testing"

	"levelup/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: &bytes.Buffer{}})
}

func TestAssemblyCache_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ac, err := NewAssemblyCache(db)
	if err != nil {
		t.Fatalf("NewAssemblyCache() error = %v", err)
	}
	defer ac.Close()

	hash := SourceHash("int main() { return 0; }")
	if err := ac.Put(hash, 0, "clang", "main:\n  ret\n", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	asm, ok, err := ac.Get(hash, 0, "clang")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if asm != "main:\n  ret\n" {
		t.Errorf("Get() = %q, want preserved assembly text", asm)
	}
}

func TestAssemblyCache_GetMissReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ac, err := NewAssemblyCache(db)
	if err != nil {
		t.Fatalf("NewAssemblyCache() error = %v", err)
	}
	defer ac.Close()

	_, ok, err := ac.Get("nonexistent", 0, "clang")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for missing key, want false")
	}
}

func TestAssemblyCache_KeyIncludesOptimizationLevelAndCompiler(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ac, err := NewAssemblyCache(db)
	if err != nil {
		t.Fatalf("NewAssemblyCache() error = %v", err)
	}
	defer ac.Close()

	hash := SourceHash("int f();")
	if err := ac.Put(hash, 0, "clang", "O0 clang asm", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := ac.Put(hash, 3, "clang", "O3 clang asm", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := ac.Put(hash, 0, "msvc", "O0 msvc asm", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, _, _ := ac.Get(hash, 0, "clang")
	if got != "O0 clang asm" {
		t.Errorf("Get(0, clang) = %q", got)
	}
	got, _, _ = ac.Get(hash, 3, "clang")
	if got != "O3 clang asm" {
		t.Errorf("Get(3, clang) = %q", got)
	}
	got, _, _ = ac.Get(hash, 0, "msvc")
	if got != "O0 msvc asm" {
		t.Errorf("Get(0, msvc) = %q", got)
	}
}

func TestAssemblyCache_InvalidateRemovesOnlyThatCompiler(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ac, err := NewAssemblyCache(db)
	if err != nil {
		t.Fatalf("NewAssemblyCache() error = %v", err)
	}
	defer ac.Close()

	hash := SourceHash("int g();")
	ac.Put(hash, 0, "clang", "clang asm", "2026-01-01T00:00:00Z")
	ac.Put(hash, 0, "msvc", "msvc asm", "2026-01-01T00:00:00Z")

	if err := ac.Invalidate("clang"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	if _, ok, _ := ac.Get(hash, 0, "clang"); ok {
		t.Error("Get(clang) after Invalidate(clang) ok = true, want false")
	}
	if _, ok, _ := ac.Get(hash, 0, "msvc"); !ok {
		t.Error("Get(msvc) after Invalidate(clang) ok = false, want true")
	}
}

func TestAssemblyCache_Stats(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ac, err := NewAssemblyCache(db)
	if err != nil {
		t.Fatalf("NewAssemblyCache() error = %v", err)
	}
	defer ac.Close()

	entries, _, err := ac.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if entries != 0 {
		t.Errorf("Stats() entries = %d, want 0 for an empty cache", entries)
	}

	ac.Put(SourceHash("x"), 0, "clang", "asm", "2026-01-01T00:00:00Z")
	entries, sizeBytes, err := ac.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if entries != 1 {
		t.Errorf("Stats() entries = %d, want 1", entries)
	}
	if sizeBytes <= 0 {
		t.Errorf("Stats() sizeBytes = %d, want > 0", sizeBytes)
	}
}

package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// fakeClang writes a shell script that stands in for clang++: it finds the
// "-o" argument and writes canned assembly there, unless the source file's
// content contains the sentinel "FORCE_FAIL", in which case it exits 1.
func fakeClang(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-clang.sh")
	content := `#!/bin/sh
out=""
src=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then
    out="$a"
  fi
  case "$a" in
    *.cpp|*.c) src="$a" ;;
  esac
  prev="$a"
done
if grep -q FORCE_FAIL "$src" 2>/dev/null; then
  echo "error: forced failure" >&2
  exit 1
fi
echo "widget PROC" > "$out"
echo "  mov eax, 1" >> "$out"
echo "widget ENDP" >> "$out"
exit 0
`
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write fake clang script: %v", err)
	}
	return script
}

func TestClang_CompileFile_Success(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "widget.cpp")
	if err := os.WriteFile(source, []byte("int widget() { return 1; }\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	c := NewClang(fakeClang(t), nil)
	out, err := c.CompileFile(context.Background(), source, 0)
	if err != nil {
		t.Fatalf("CompileFile() error = %v", err)
	}
	if out.AsmText == "" {
		t.Fatal("CompileFile() returned empty AsmText on success")
	}
	if out.SourcePath != source {
		t.Errorf("SourcePath = %q, want %q", out.SourcePath, source)
	}
}

func TestClang_CompileFile_CompileError(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "widget.cpp")
	if err := os.WriteFile(source, []byte("FORCE_FAIL int widget() { return 1 }\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	c := NewClang(fakeClang(t), nil)
	out, err := c.CompileFile(context.Background(), source, 0)
	if err != nil {
		t.Fatalf("CompileFile() should not return a Go error for a compile failure, got %v", err)
	}
	if out.AsmText != "" {
		t.Error("CompileFile() AsmText should be empty on compile failure")
	}
	if out.Diagnostics == "" {
		t.Error("CompileFile() Diagnostics should be populated on compile failure")
	}
}

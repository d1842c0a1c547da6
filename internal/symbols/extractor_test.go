package symbols

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const widgetClassXML = `<?xml version="1.0"?>
<doxygen>
  <compounddef kind="class">
    <compoundname>Widget</compoundname>
    <sectiondef>
      <memberdef kind="function" static="no" const="yes" virt="non-virtual">
        <name>size</name>
        <definition>int Widget::size</definition>
        <argsstring>() const</argsstring>
        <location file="%s" line="12" bodystart="12" bodyend="14"/>
      </memberdef>
      <memberdef kind="function" static="yes" const="no" virt="non-virtual">
        <name>defaultWidget</name>
        <definition>Widget Widget::defaultWidget</definition>
        <argsstring>()</argsstring>
        <location file="%s" line="20" bodystart="20" bodyend="22"/>
      </memberdef>
    </sectiondef>
  </compounddef>
</doxygen>`

func writeFixtureXML(t *testing.T, repoPath, sourceFile string) {
	t.Helper()
	dir := outputDir(repoPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := []byte(fmt.Sprintf(widgetClassXML, sourceFile, sourceFile))
	if err := os.WriteFile(filepath.Join(dir, "classWidget.xml"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestParseDirectory(t *testing.T) {
	repoPath := t.TempDir()
	sourceFile := filepath.Join(repoPath, "widget.cpp")
	writeFixtureXML(t, repoPath, sourceFile)

	syms, err := ParseDirectory(repoPath)
	if err != nil {
		t.Fatalf("ParseDirectory() error = %v", err)
	}

	var class, size, defaultWidget *Symbol
	for i := range syms {
		switch syms[i].QualifiedName {
		case "Widget":
			class = &syms[i]
		case "Widget::size":
			size = &syms[i]
		case "Widget::defaultWidget":
			defaultWidget = &syms[i]
		}
	}

	if class == nil || class.Kind != KindClass {
		t.Fatalf("expected a KindClass symbol named Widget, got %+v", syms)
	}
	if size == nil {
		t.Fatalf("expected Widget::size symbol, got %+v", syms)
	}
	if !size.HasQualifier("const") {
		t.Errorf("Widget::size qualifiers = %v, want const", size.Qualifiers)
	}
	if !size.IsMember {
		t.Error("Widget::size.IsMember = false, want true")
	}
	if defaultWidget == nil {
		t.Fatalf("expected Widget::defaultWidget symbol, got %+v", syms)
	}
	if !defaultWidget.HasQualifier("static") {
		t.Errorf("Widget::defaultWidget qualifiers = %v, want static", defaultWidget.Qualifiers)
	}
	if size.FilePath != "widget.cpp" {
		t.Errorf("Widget::size.FilePath = %q, want %q", size.FilePath, "widget.cpp")
	}
}

func TestIsStale(t *testing.T) {
	repoPath := t.TempDir()
	if !IsStale(repoPath) {
		t.Error("IsStale() = false for a repo with no extractor output, want true")
	}

	writeFixtureXML(t, repoPath, filepath.Join(repoPath, "widget.cpp"))
	if IsStale(repoPath) {
		t.Error("IsStale() = true after writing extractor output, want false")
	}
}

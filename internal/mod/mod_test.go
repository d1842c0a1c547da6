package mod

import (
	"bytes"
	"context"
	"testing"

	"levelup/internal/logging"
	"levelup/internal/symbols"
)

func testTable() *symbols.Table {
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: &bytes.Buffer{}})
	table := symbols.NewTable("", symbols.NewExtractor("unused", logger))
	table.LoadSymbolsForTest([]symbols.Symbol{
		{Kind: symbols.KindFunction, QualifiedName: "g", Qualifiers: []string{"inline"}},
		{Kind: symbols.KindFunction, QualifiedName: "h"},
		{Kind: symbols.KindFunction, QualifiedName: "B::f", IsMember: true, Qualifiers: []string{"virtual"}},
		{Kind: symbols.KindFunction, QualifiedName: "D::f", IsMember: true, Qualifiers: []string{"virtual", "override"}},
	})
	return table
}

func TestRemoveInline_Generate(t *testing.T) {
	steps, err := RemoveInline{}.Generate(context.Background(), testTable())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("Generate() returned %d steps, want 1", len(steps))
	}
	if steps[0].Args["symbol"] != "g" {
		t.Errorf("steps[0].Args[\"symbol\"] = %q, want %q", steps[0].Args["symbol"], "g")
	}
	if steps[0].RefactoringID != "remove_function_qualifier" {
		t.Errorf("RefactoringID = %q, want %q", steps[0].RefactoringID, "remove_function_qualifier")
	}
}

func TestAddOverride_Generate(t *testing.T) {
	steps, err := AddOverride{}.Generate(context.Background(), testTable())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("Generate() returned %d steps, want 1", len(steps))
	}
	if steps[0].Args["symbol"] != "B::f" {
		t.Errorf("steps[0].Args[\"symbol\"] = %q, want %q", steps[0].Args["symbol"], "B::f")
	}
}

func TestRegistry_GetAndList(t *testing.T) {
	reg := NewRegistry(RemoveInline{}, AddOverride{})
	if _, err := reg.Get("remove_inline"); err != nil {
		t.Fatalf("Get(\"remove_inline\") error = %v", err)
	}
	if _, err := reg.Get("nonexistent"); err == nil {
		t.Fatal("Get(\"nonexistent\") expected error")
	}
	if len(reg.List()) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(reg.List()))
	}
}

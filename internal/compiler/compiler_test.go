package compiler

import "testing"

func TestRegistry_GetAndList(t *testing.T) {
	clang := NewClang("clang++", nil)
	msvc := NewMSVC("cl.exe", nil)
	reg := NewRegistry(clang, msvc)

	got, err := reg.Get("clang")
	if err != nil {
		t.Fatalf("Get(\"clang\") error = %v", err)
	}
	if got.ID() != "clang" {
		t.Errorf("Get(\"clang\").ID() = %q, want %q", got.ID(), "clang")
	}

	if _, err := reg.Get("gcc"); err == nil {
		t.Fatal("Get(\"gcc\") expected error for unknown variant")
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d variants, want 2", len(list))
	}
}

func TestClang_GetOptimizationFlags(t *testing.T) {
	c := NewClang("clang++", nil)
	tests := map[int]string{0: "-O0", 1: "-O1", 2: "-O2", 3: "-O3", 9: "-O3"}
	for level, want := range tests {
		got := c.GetOptimizationFlags(level)
		if len(got) != 1 || got[0] != want {
			t.Errorf("GetOptimizationFlags(%d) = %v, want [%q]", level, got, want)
		}
	}
}

func TestGenericVariant_IDAndOptimizationFlags(t *testing.T) {
	g := NewGenericVariant("clang-18", "/opt/clang-18/bin/clang++", []string{"-stdlib=libc++"}, nil)
	if g.ID() != "clang-18" {
		t.Errorf("ID() = %q, want %q", g.ID(), "clang-18")
	}
	tests := map[int]string{0: "-O0", 1: "-O1", 2: "-O2", 3: "-O3", 9: "-O3"}
	for level, want := range tests {
		got := g.GetOptimizationFlags(level)
		if len(got) != 1 || got[0] != want {
			t.Errorf("GetOptimizationFlags(%d) = %v, want [%q]", level, got, want)
		}
	}
}

func TestRegistry_RegistersManifestVariantAlongsideBuiltins(t *testing.T) {
	reg := NewRegistry(
		NewClang("clang++", nil),
		NewMSVC("cl.exe", nil),
		NewGenericVariant("clang-18", "/opt/clang-18/bin/clang++", nil, nil),
	)
	if _, err := reg.Get("clang-18"); err != nil {
		t.Fatalf("Get(\"clang-18\") error = %v", err)
	}
	if len(reg.List()) != 3 {
		t.Errorf("List() returned %d variants, want 3", len(reg.List()))
	}
}

func TestMSVC_GetOptimizationFlags(t *testing.T) {
	m := NewMSVC("cl.exe", nil)
	tests := map[int]string{0: "/Od", 1: "/O2", 2: "/O2", 3: "/Ox"}
	for level, want := range tests {
		got := m.GetOptimizationFlags(level)
		if len(got) != 1 || got[0] != want {
			t.Errorf("GetOptimizationFlags(%d) = %v, want [%q]", level, got, want)
		}
	}
}

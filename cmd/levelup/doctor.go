package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured toolchain is reachable",
	Long: `Verifies that the configured compiler, git, and doxygen executables
can actually be resolved, and that the workspace path exists and is a directory.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "error")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	healthy := true
	check := func(label, path string) {
		resolved, err := exec.LookPath(path)
		if err != nil {
			fmt.Printf("[FAIL] %-12s %q: %v\n", label, path, err)
			healthy = false
			return
		}
		fmt.Printf("[ OK ] %-12s %s\n", label, resolved)
	}

	check("clang", s.cfg.Compilers.ClangPath)
	check("msvc", s.cfg.Compilers.MSVCPath)
	check("git", s.cfg.Compilers.GitPath)
	check("doxygen", s.cfg.Compilers.DoxygenPath)

	if info, err := os.Stat(workspaceRoot); err != nil || !info.IsDir() {
		fmt.Printf("[FAIL] %-12s %s is not accessible: %v\n", "workspace", workspaceRoot, err)
		healthy = false
	} else {
		fmt.Printf("[ OK ] %-12s %s\n", "workspace", workspaceRoot)
	}

	entries, sizeBytes, err := s.asmCache.Stats()
	if err != nil {
		fmt.Printf("[FAIL] %-12s %v\n", "cache", err)
		healthy = false
	} else {
		fmt.Printf("[ OK ] %-12s %d entries, %d bytes\n", "cache", entries, sizeBytes)
	}

	if !healthy {
		return fmt.Errorf("one or more checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

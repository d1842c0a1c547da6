package main

import (
	"fmt"
	"os"
	"path/filepath"

	"levelup/internal/config"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a LevelUp workspace",
	Long: `Creates a .levelup/ directory in the workspace root for the assembly
cache and other process-local state. levelup.yaml is optional — an operator
can author one by hand to override the defaults in internal/config; running
without one is a supported, fully-functional mode.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "reinitialize even if .levelup already exists")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	workspaceRoot := mustGetWorkspaceRoot()
	levelupDir := filepath.Join(workspaceRoot, ".levelup")

	if _, err := os.Stat(levelupDir); err == nil && !initForce {
		fmt.Println("LevelUp workspace already initialized.")
		fmt.Printf("State directory: %s\n", levelupDir)
		fmt.Println("\nRun 'levelup init --force' to reinitialize.")
		return nil
	}

	if err := os.MkdirAll(levelupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create .levelup directory: %w", err)
	}

	cfg := config.DefaultConfig()
	fmt.Printf("Initialized LevelUp workspace at %s\n", workspaceRoot)
	fmt.Printf("State directory: %s\n", levelupDir)
	fmt.Printf("Default compiler: %s (override in levelup.yaml or GIT_PATH/MSVC_PATH/CLANG_PATH)\n", cfg.Compilers.Default)
	return nil
}

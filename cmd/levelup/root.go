package main

import (
	"levelup/internal/version"

	"github.com/spf13/cobra"
)

var workspaceFlag string

var rootCmd = &cobra.Command{
	Use:     "levelup",
	Short:   "LevelUp - validated C/C++ refactoring engine",
	Long:    `LevelUp modernizes legacy C/C++ repositories through atomic, compiler-verified code transformations.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("levelup version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", ".", "workspace root directory")
}

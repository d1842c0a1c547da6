package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	repoAddPostCheckout    string
	repoAddBuildCommand    string
	repoAddSingleTUCommand string
	repoListJSON           bool
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the repository catalogue",
	Long:  `Add, list, and remove the source repositories the engine operates against.`,
}

var repoAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoAdd,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE:  runRepoList,
}

var repoRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Unregister a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoRemove,
}

func init() {
	repoAddCmd.Flags().StringVar(&repoAddPostCheckout, "post-checkout", "", "command to run after checkout")
	repoAddCmd.Flags().StringVar(&repoAddBuildCommand, "build-command", "", "command to build the repository")
	repoAddCmd.Flags().StringVar(&repoAddSingleTUCommand, "single-tu-command", "", "command to build a single translation unit")
	repoListCmd.Flags().BoolVar(&repoListJSON, "json", false, "output as JSON")

	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	rootCmd.AddCommand(repoCmd)
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	repo, err := s.repos.Create(uuid.New().String(), workspaceRoot, args[0], repoAddPostCheckout, repoAddBuildCommand, repoAddSingleTUCommand)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s (%s)\n", repo.Name, repo.ID)
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	repos := s.repos.List()
	if repoListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(repos)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tCOMPILER")
	for _, r := range repos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.URL, r.CompilerID)
	}
	return w.Flush()
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	if err := s.repos.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"levelup/internal/api"
	"levelup/internal/engine"
	"levelup/internal/repository"
	"levelup/internal/request"
)

var (
	modSubmitRepoURL    string
	modSubmitRepoName   string
	modSubmitType       string
	modSubmitModID      string
	modSubmitCommitHash string
	modSubmitDesc       string
)

var modCmd = &cobra.Command{
	Use:   "mod",
	Short: "Submit and track modernization requests",
}

var modSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a modernization request",
	RunE:  runModSubmit,
}

var modStatusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Get the status of a submitted request",
	Args:  cobra.ExactArgs(1),
	RunE:  runModStatus,
}

var modCancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel a queued or in-flight request",
	Args:  cobra.ExactArgs(1),
	RunE:  runModCancel,
}

func init() {
	modSubmitCmd.Flags().StringVar(&modSubmitRepoURL, "repo-url", "", "remote repository URL (required)")
	modSubmitCmd.Flags().StringVar(&modSubmitRepoName, "repo-name", "", "repository display name")
	modSubmitCmd.Flags().StringVar(&modSubmitType, "type", "builtin", `request source: "builtin" or "commit"`)
	modSubmitCmd.Flags().StringVar(&modSubmitModID, "mod", "", "registered mod id (required for type=builtin)")
	modSubmitCmd.Flags().StringVar(&modSubmitCommitHash, "commit", "", "commit hash to cherry-pick (required for type=commit)")
	modSubmitCmd.Flags().StringVar(&modSubmitDesc, "description", "", "human-readable description")

	modCmd.AddCommand(modSubmitCmd)
	modCmd.AddCommand(modStatusCmd)
	modCmd.AddCommand(modCancelCmd)
	rootCmd.AddCommand(modCmd)
}

func runModSubmit(cmd *cobra.Command, args []string) error {
	if modSubmitRepoURL == "" {
		return fmt.Errorf("--repo-url is required")
	}

	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	req := request.ModRequest{
		ID:          uuid.New().String(),
		RepoURL:     modSubmitRepoURL,
		RepoName:    modSubmitRepoName,
		Description: modSubmitDesc,
		CreatedAt:   time.Now(),
	}

	switch modSubmitType {
	case "builtin":
		if modSubmitModID == "" {
			return fmt.Errorf("--mod is required for type=builtin")
		}
		req.Source = request.SourceBuiltin
		req.ModID = modSubmitModID
	case "commit":
		if modSubmitCommitHash == "" {
			return fmt.Errorf("--commit is required for type=commit")
		}
		req.Source = request.SourceCommit
		req.CommitHash = modSubmitCommitHash
	default:
		return fmt.Errorf(`--type must be "builtin" or "commit"`)
	}

	repoConfig := resolveRepoConfig(s, modSubmitRepoURL, modSubmitRepoName)
	s.queue.Start()
	if err := s.queue.Submit(req, repoConfig); err != nil {
		return err
	}
	fmt.Println(req.ID)
	return nil
}

// resolveRepoConfig mirrors the HTTP boundary's lookup: prefer a
// catalogued repository's operational hooks, falling back to a derived
// clone path for an uncatalogued URL.
func resolveRepoConfig(s *stack, repoURL, repoName string) engine.RepoConfig {
	for _, repo := range s.repos.List() {
		if repo.URL == repoURL {
			return api.RepoConfigFor(repo)
		}
	}
	name := repoName
	if name == "" {
		name = repository.NameFromURL(repoURL)
	}
	return engine.RepoConfig{RemoteURL: repoURL, LocalPath: filepath.Join(s.workspaceRoot, "repos", name)}
}

func runModStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	result, ok := s.queue.Status(args[0])
	if !ok {
		return fmt.Errorf("unknown request: %s", args[0])
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runModCancel(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	if err := s.queue.Cancel(args[0]); err != nil {
		return err
	}
	fmt.Printf("Cancelled %s\n", args[0])
	return nil
}

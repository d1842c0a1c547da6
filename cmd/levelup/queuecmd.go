package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var queueStatusJSON bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the request queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the queue backlog and known request results",
	RunE:  runQueueStatus,
}

func init() {
	queueStatusCmd.Flags().BoolVar(&queueStatusJSON, "json", false, "output as JSON")
	queueCmd.AddCommand(queueStatusCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	snap := s.queue.Snapshot()
	if queueStatusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("Queue size: %d\n\n", snap.QueueSize)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST\tSTATUS\tMESSAGE")
	for _, r := range snap.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.RequestID, r.Status, r.Message)
	}
	return w.Flush()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"levelup/internal/api"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the LevelUp HTTP API server, exposing repository management,
request submission, and queue/status polling over HTTP.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to bind to (overrides levelup.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger("human", "info")
	workspaceRoot := mustGetWorkspaceRoot()
	s := mustGetStack(workspaceRoot, logger)

	addr := serveAddr
	if addr == "" {
		addr = s.cfg.Server.Addr
	}

	server := api.NewServer(addr, workspaceRoot, s.repos, s.queue, s.engine.Compilers, s.engine.Validators, s.engine.Mods, logger)
	s.queue.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", map[string]interface{}{"addr": addr})
		fmt.Printf("LevelUp HTTP API server listening on http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case sig := <-shutdown:
		logger.Info("received shutdown signal", map[string]interface{}{"signal": sig.String()})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		if err := s.queue.Stop(10 * time.Second); err != nil {
			logger.Warn("queue did not drain before shutdown timeout", map[string]interface{}{"error": err.Error()})
		}
		logger.Info("server stopped gracefully", nil)
	}

	return nil
}

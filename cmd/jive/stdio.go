package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/mcp"
)

// stdioExitGrace is how long a cancelled stdio loop gets to drain before the
// process exits hard. Blocked stdin reads cannot be interrupted.
const stdioExitGrace = 2 * time.Second

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Run the MCP server over stdin/stdout",
	Long: `Speak newline-delimited JSON-RPC on stdin/stdout for clients that
spawn the server as a subprocess. Diagnostics go to stderr and the log file;
stdout carries only protocol messages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.CloseSlog()
			_ = logger.Close()
		}()

		if err := svc.startBackground(); err != nil {
			return err
		}
		defer svc.server.Close()
		defer svc.stopBackground()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		loop := mcp.NewStdioLoop(svc.server, os.Stdin, os.Stdout)
		done := make(chan error, 1)
		go func() { done <- loop.Run(ctx) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
		}

		select {
		case err := <-done:
			return err
		case <-time.After(stdioExitGrace):
			logger.Warn("stdin read still blocked after %s, exiting", stdioExitGrace)
			svc.stopBackground()
			svc.server.Close()
			_ = logger.CloseSlog()
			_ = logger.Close()
			os.Exit(0) //nolint:gocritic // intentional exit, stdin reads cannot be cancelled
		}
		return nil
	},
}

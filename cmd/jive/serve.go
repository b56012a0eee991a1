package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jivehq/jive/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over HTTP",
	Long: `Serve the MCP protocol over HTTP: POST /mcp for JSON-RPC, GET /mcp
for server-sent events, and /ws for WebSocket. A REST surface (/health,
/tools, /namespaces) is available for operators and non-MCP clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(os.Stdout)
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

		// Setup graceful shutdown
		shutdownChan := make(chan os.Signal, 1)
		signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

		serverErr := make(chan error, 1)
		go func() {
			serverErr <- svc.server.Serve(svc.cfg.Addr())
		}()

		select {
		case err := <-serverErr:
			svc.stopBackground()
			return err
		case sig := <-shutdownChan:
			logger.Warn("⚠️  Received signal %v, initiating graceful shutdown...", sig)

			// Background loops reopen store handles on demand, so they stop
			// before the server closes them.
			logger.Info("   Stopping background services...")
			svc.stopBackground()

			logger.Info("   Draining connections...")
			svc.server.Close()

			logger.Info("✅ Shutdown complete")
		}
		return nil
	},
}

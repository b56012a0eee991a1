// Command jive runs the Jive MCP server: agile work-item management for AI
// agents over stdio, HTTP, and WebSocket transports.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jive",
	Short: "MCP server for agile work-item management",
	Long: `Jive tracks hierarchical work items (initiatives, epics, features,
stories, tasks) in embedded per-namespace vector stores and exposes them to
AI agents through the Model Context Protocol.

Run 'jive serve' for the HTTP transport or 'jive stdio' when a client spawns
the server over stdin/stdout.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jive %s\n", Version)
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: jive.yaml in ., ~/.jive, /etc/jive)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

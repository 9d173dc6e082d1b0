package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	crmmcp "github.com/valter-silva-au/crmsync/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose crmsync to MCP clients",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve thread parsing, syncing and metrics over MCP on stdio",
	Long: `Serve crmsync as a Model Context Protocol server on stdin/stdout.

Tools:
  parse_thread      parse thread HTML and return its messages in order
  sync_thread       sync one thread into the CRM (supports dry_run and inline html)
  get_sync_metrics  summarise recent sync runs from the event log

Diagnostics go to stderr; stdout carries only protocol messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Parser == nil {
			return fmt.Errorf("thread parser not initialized")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		srv := crmmcp.NewServer(Parser, Syncer, MetricsCalc, appVersion)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("serving MCP on stdio: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

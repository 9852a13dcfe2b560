package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the workbench as an MCP server, so agents can list tasks, run
practice sessions, grade and submit as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		ctx := cmd.Context()
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		// Stdout carries JSON-RPC; progress stays off it.
		app.Quiet = true
		if _, err := app.Bench.Resume(ctx); err != nil {
			app.Logger.Debug("no saved run to resume", "err", err)
		}
		srv := mcp.NewServer(app.Bench, mcp.WithLogger(app.Logger))

		switch transport {
		case "stdio":
			app.Logger.Info("starting labexam MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			app.Logger.Info("starting labexam MCP server (sse)", "address", addr)
			if err := srv.ServeSSE(ctx, addr); err != nil {
				return err
			}
			app.Logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q: use stdio or sse", transport)
		}
	}),
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", "localhost:8081", "address to listen on (only for SSE)")
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/cli"
	"github.com/aretw0/waypoint/pkg/adapters/mcp"
	"github.com/aretw0/waypoint/pkg/registry"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP Server exposing the chat, plan_preview and
session_context tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- http: Streamable HTTP on --addr under /mcp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		// Logs go to Stderr so they never corrupt JSON-RPC on Stdout.
		log.SetOutput(os.Stderr)
		logger := newLogger(cfg, "")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := cli.NewEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Close()
		srv := eng.MCPServer()

		switch transport {
		case "stdio":
			logger.Info("Starting Waypoint MCP Server (Stdio)")
			return srv.ServeStdio()
		case "http":
			return srv.ServeHTTP(ctx, addr)
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, http", transport)
		}
	},
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Serve the demo travel tools over MCP",
	Long: `Serves deterministic stand-ins for the travel tools, so that a Waypoint server
configured with WAYPOINT_TOOLS_TRANSPORT=mcp can run without the real backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		logger := newLogger(cfg, "")

		demo := registry.NewDemo()
		s := mcp.NewToolServer(waypoint.Version, demo, demo.Names())

		switch transport {
		case "stdio":
			return server.ServeStdio(s)
		case "http":
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return mcp.ServeStreamable(ctx, s, addr, logger)
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, http", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpToolsCmd)

	mcpCmd.PersistentFlags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'http'")
	mcpCmd.Flags().String("addr", ":8081", "Listen address (only for http)")
	mcpToolsCmd.Flags().String("addr", ":8082", "Listen address (only for http)")
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/waypoint/internal/cli"
	"github.com/aretw0/waypoint/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "waypoint",
	Short: "Waypoint is an orchestration core for a public-transport travel assistant",
	Long: `Waypoint turns travel questions into plans of tool calls, runs them against the
travel backend and answers in natural language. Run it as an HTTP/SSE server, an MCP
server, or chat with a running server from the terminal.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// loadConfig reads the config file named by --config plus the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, format string) *slog.Logger {
	if format == "" {
		format = cfg.Log.Format
	}
	return cli.NewLogger(cfg.Log.Level, format)
}

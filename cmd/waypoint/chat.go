package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/cli"
	"github.com/aretw0/waypoint/internal/presentation/tui"
	"github.com/aretw0/waypoint/pkg/streamclient"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with a running Waypoint server",
	Long: `Opens an interactive chat against the server at --url. With a message argument
a single question is asked and the command exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "")

		url, _ := cmd.Flags().GetString("url")
		sessionID, _ := cmd.Flags().GetString("session")
		lang, _ := cmd.Flags().GetString("lang")
		plain, _ := cmd.Flags().GetBool("plain")

		opts := []streamclient.Option{streamclient.WithLogger(logger)}
		if !streamclient.IsLoopback(url) {
			opts = append(opts, streamclient.WithOnlineCheck(streamclient.HasNetwork))
		}
		client := streamclient.New(url, opts...)

		interactive := cli.IsTerminal(os.Stdout)
		chatOpts := cli.ChatOptions{
			SessionID: sessionID,
			Language:  lang,
			Banner:    interactive && len(args) == 0,
			Version:   waypoint.Version,
			In:        os.Stdin,
			Out:       os.Stdout,
			Logger:    logger,
		}
		if interactive && !plain {
			chatOpts.Render = tui.NewRenderer(cli.TerminalWidth(os.Stdout))
		}
		chat := cli.NewChat(client, chatOpts)

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		if len(args) > 0 {
			_, err := chat.Ask(sigCtx, strings.Join(args, " "))
			return cli.HandleExecutionError(err)
		}
		return cli.HandleExecutionError(chat.Run(sigCtx))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("url", "http://localhost:8080", "Base URL of the Waypoint server")
	chatCmd.Flags().String("session", "", "Session id to resume (random when empty)")
	chatCmd.Flags().String("lang", "en", "Answer language")
	chatCmd.Flags().Bool("plain", false, "Stream raw text instead of rendered markdown")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/cli"
	httpadapter "github.com/aretw0/waypoint/pkg/adapters/http"
)

const (
	shutdownTimeout = 5 * time.Second
	pruneInterval   = time.Minute
	idleLimiter     = 10 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/SSE chat server",
	Long:  `Starts the orchestration engine and exposes the chat, stream and session API over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		logger := newLogger(cfg, "json")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := cli.NewEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Close()

		handler, err := eng.HTTPHandler(httpadapter.WithMaxInputSize(cfg.Server.MaxInputSize))
		if err != nil {
			return fmt.Errorf("error building handler: %w", err)
		}

		srv := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Drop buckets of users that went quiet.
		go func() {
			t := time.NewTicker(pruneInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if n := eng.Limiter().Prune(idleLimiter); n > 0 {
						logger.Debug("Pruned idle rate-limit buckets", "count", n)
					}
				}
			}
		}()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Waypoint server listening", "address", srv.Addr, "version", waypoint.Version)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			logger.Info("Waypoint server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides config)")
}

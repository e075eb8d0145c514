// cmd/gainslog/serve.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gainslog/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host    string
		address string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (MCP tool calls and JSON API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			// Use address if provided, otherwise use host
			if address != "" {
				cfg.Server.Host = address
			} else if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			a, err := openApp(cmd.Context(), cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			slog.SetDefault(a.logger)

			srv := server.NewGainsLogServer(&server.Config{
				Host: cfg.Server.Host,
				Port: cfg.Server.Port,
			}, a.flow, a.store,
				server.WithLogger(a.logger),
				server.WithGatherer(a.registry),
				server.WithTargets(cfg.Targets))

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Handle shutdown signals
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(ctx)
			}()

			select {
			case <-sigCh:
				a.logger.Info("Received shutdown signal")
			case err := <-errCh:
				if err != nil {
					a.logger.Error("Server error", "error", err)
					return err
				}
				return nil
			}

			a.logger.Info("Shutting down")
			cancel()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Stop(shutdownCtx); err != nil {
				a.logger.Error("Error during shutdown", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address")
	cmd.Flags().StringVar(&address, "address", "", "Address (alias for host)")
	cmd.Flags().IntVar(&port, "port", 0, "Port for HTTP transport")
	return cmd
}

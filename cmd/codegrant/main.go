// Command codegrant runs the pieces of the authorization code grant demo:
// the authorization server, the resource server, and the interactive client
// agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oauthlab/codegrant/agent"
	"github.com/oauthlab/codegrant/authserver"
	"github.com/oauthlab/codegrant/instrumentation"
	"github.com/oauthlab/codegrant/resourceserver"
	"github.com/oauthlab/codegrant/security"
	"github.com/oauthlab/codegrant/storage/memory"
)

var logLevel string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "codegrant",
		Short:        "OAuth2 authorization code grant demo",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(authServerCmd())
	cmd.AddCommand(resourceServerCmd())
	cmd.AddCommand(agentCmd())

	return cmd
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func authServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-server",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := authserver.LoadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Clients) == 0 {
				// A server with no clients can authorize nothing; seed the
				// demo client so the flow works out of the box.
				cfg.Clients = []authserver.ClientConfig{{
					ID:     "sample-client-id",
					Secret: "sample-client-secret",
					Name:   "Sample Client",
				}}
				logger.Warn("No clients configured, using demo client",
					"client_id", cfg.Clients[0].ID)
			}

			inst, err := instrumentation.New(instrumentation.Config{
				ServiceName: "codegrant-auth",
				Enabled:     true,
			})
			if err != nil {
				return err
			}

			store := memory.New()
			store.SetLogger(logger)
			store.SetInstrumentation(inst)
			defer store.Stop()

			srv, err := authserver.New(store, store, store, cfg, logger)
			if err != nil {
				return err
			}
			srv.SetAuditor(security.NewAuditor(logger, cfg.AuditEnabled))
			srv.SetInstrumentation(inst)

			if cfg.RateLimitPerSecond > 0 {
				rl := security.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, logger)
				defer rl.Stop()
				srv.SetRateLimiter(rl)
			}

			handler := authserver.NewHandler(srv, logger)
			return serveHTTP(cmd.Context(), cfg.ListenAddr, handler.Routes(), logger)
		},
	}
}

func resourceServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resource-server",
		Short: "Run the protected resource server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := resourceserver.LoadConfig()
			if err != nil {
				return err
			}

			inst, err := instrumentation.New(instrumentation.Config{
				ServiceName: "codegrant-resource",
				Enabled:     true,
			})
			if err != nil {
				return err
			}

			validator := resourceserver.NewValidator(cfg.ValidateURL, cfg.ValidateTimeout)
			handler := resourceserver.NewHandler(cfg, validator, logger)
			handler.SetAuditor(security.NewAuditor(logger, true))
			handler.SetInstrumentation(inst)

			return serveHTTP(cmd.Context(), cfg.ListenAddr, handler.Routes(), logger)
		},
	}
}

func agentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the interactive client agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := agent.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.ClientID == "" {
				cfg.ClientID = "sample-client-id"
				cfg.ClientSecret = "sample-client-secret"
			}

			a, err := agent.New(cfg, logger)
			if err != nil {
				return err
			}

			return a.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}

// serveHTTP runs an HTTP server until the context is cancelled or SIGINT/
// SIGTERM arrives, then shuts down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

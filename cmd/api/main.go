// cmd/api/main.go
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

	app "user-service/internal"
	"user-service/internal/config"
	"user-service/internal/util"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port     string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "user-service",
		Short:        "User service - HTTP API over a pooled relational store",
		SilenceUsage: true,
		RunE:         run,
	}

	// Flags override the matching environment variables when set.
	rootCmd.Flags().StringVarP(&port, "port", "p", "", "HTTP server port (overrides SERVER_PORT)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("user-service %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if port != "" {
		cfg.ServerPort = port
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.NewApplication()
	if err := application.InitializeWithConfig(ctx, cfg); err != nil {
		util.GetLogger().Error("Failed to initialize application", "error", err)
		return err
	}
	logger := application.Logger

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      application.HTTPHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "port", cfg.ServerPort, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
			_ = application.Shutdown(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("Application gracefully stopped")
	return nil
}

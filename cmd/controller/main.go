// Package main is the entry point for the PDSNO controller process.
//
// A single binary runs all three tiers (global, regional, local); which
// components a given process activates is determined entirely by
// Config.Controller.Role, not by which binary is invoked.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/app"
	"pdsno.io/controller/internal/config"
	"pdsno.io/controller/internal/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "controller",
	Short: "PDSNO hierarchical network controller",
	Long: `controller runs a single PDSNO tier (global, regional, or local) as
configured. The role, region, and parent endpoint are read from config, not
from command-line flags, so the same binary deploys unmodified at any tier.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitWithFile(cfg.Log.Level, cfg.Log.Format, logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.FileMaxSizeMB,
		MaxAgeDays: cfg.Log.FileMaxAgeDay,
		MaxBackups: cfg.Log.FileMaxBackup,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting PDSNO controller",
		zap.String("role", cfg.Controller.Role),
		zap.String("region", cfg.Controller.Region),
		zap.String("nib_backend", cfg.Controller.NIBBackend),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer application.Shutdown()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start background services: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      application.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("controller listening", zap.String("addr", srv.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down controller...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("controller stopped gracefully")
	return nil
}

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

	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mes-backend/config"
	"mes-backend/internal/bootstrap"
	"mes-backend/internal/csvimport"
	"mes-backend/internal/notification"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mesd",
	Short:         "Manufacturing execution system backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var importDir string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Drop all tables and reload them from the CSV directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context())
	},
}

func init() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml" // Default path for local development
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "path to the YAML config file")
	importCmd.Flags().StringVar(&importDir, "dir", "", "CSV directory (default: import.csv_dir from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
}

func serve(ctx context.Context) error {
	inj := bootstrap.BuildContainer(configPath)
	defer inj.Shutdown()

	cfg, err := do.Invoke[*config.Config](inj)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	log, err := do.Invoke[*zap.Logger](inj)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("configuration loaded", zap.String("path", configPath))

	gin.SetMode(gin.ReleaseMode)
	router, err := do.Invoke[*gin.Engine](inj)
	if err != nil {
		return err
	}
	defer closeDB(inj, log)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := do.Invoke[*notification.WorkerPool](inj)
	if err != nil {
		return err
	}
	if pool != nil {
		pool.Start(ctx)
		log.Info("notification workers started", zap.Int("size", cfg.WorkerPool.Size))
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutdown signal received, stopping services")
	case err := <-errCh:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	log.Info("server gracefully stopped")
	return nil
}

func runImport(ctx context.Context) error {
	inj := bootstrap.BuildContainer(configPath)
	defer inj.Shutdown()

	if importDir != "" {
		cfg, err := do.Invoke[*config.Config](inj)
		if err != nil {
			return err
		}
		cfg.Import.CSVDir = importDir
	}

	log, err := do.Invoke[*zap.Logger](inj)
	if err != nil {
		return err
	}
	defer log.Sync()

	importer, err := do.Invoke[*csvimport.Importer](inj)
	if err != nil {
		return err
	}
	defer closeDB(inj, log)

	res, err := importer.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d machines, %d tools, %d tool metrics, %d tool assignments, %d users, %d maintenance logs, %d machine metrics from %s\n",
		res.Machines, res.Tools, res.ToolMetrics, res.ToolAssignments, res.Users, res.MaintenanceLogs, res.MachineMetrics, importer.Dir())
	return nil
}

func closeDB(inj *do.Injector, log *zap.Logger) {
	gdb, err := do.Invoke[*gorm.DB](inj)
	if err != nil {
		return
	}
	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

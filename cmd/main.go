// Package main is the entry point for the transmission monitor service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanops/transmission-monitor/internal/api"
	"github.com/scanops/transmission-monitor/internal/config"
	"github.com/scanops/transmission-monitor/internal/ftpmon"
	"github.com/scanops/transmission-monitor/internal/logparse"
	"github.com/scanops/transmission-monitor/internal/publisher"
	"github.com/scanops/transmission-monitor/internal/resend"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Starting transmission monitor service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load configuration: %v", err)
	}

	sugar.Infow("Configuration loaded",
		"port", cfg.Server.Port,
		"logs_directory", cfg.Logs.Directory,
		"ping_interval", cfg.FTP.PingInterval,
	)

	// Configuration errors surface once at the boundary; the engine still
	// starts and serves an empty view until segments appear.
	if _, err := os.Stat(cfg.Logs.Directory); err != nil {
		sugar.Warnw("Logs directory is not accessible",
			"directory", cfg.Logs.Directory,
			"error", err,
		)
	}

	// Initialize RabbitMQ publisher (nil when disabled)
	pub, err := publisher.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, sugar)
	if err != nil {
		sugar.Fatalf("Failed to initialize publisher: %v", err)
	}
	defer pub.Close()

	// Initialize ingestion engine and resender
	engine := logparse.NewEngine(cfg.Logs, sugar)
	resender := resend.New(cfg.Resend, engine, pub, sugar)

	// Start connectivity monitor
	monitor := ftpmon.New(cfg.FTP, cfg.Logs.Directory, sugar)
	if err := monitor.Start(); err != nil {
		sugar.Fatalf("Failed to start FTP monitor: %v", err)
	}

	// Initialize API server
	server := api.New(cfg.Server, engine, monitor, resender, sugar)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		sugar.Infof("HTTP server listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop connectivity monitor
	monitor.Stop()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(ctx); err != nil {
		sugar.Errorf("Server forced to shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}

// Package main provides the HTTP API entry point backed by PostgreSQL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/api"
	"github.com/crossdoc-check-mcp-server/internal/config"
	"github.com/crossdoc-check-mcp-server/internal/database"
	"github.com/crossdoc-check-mcp-server/internal/history"
	"github.com/crossdoc-check-mcp-server/internal/repository"
	"github.com/crossdoc-check-mcp-server/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(ctx, database.FromDomainConfig(&cfg.Database), logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(configManager.GetMigrationURL(), "migrations", logger)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	migrator.Close()

	historyStore, err := history.NewPostgresStoreFromURL(configManager.GetMigrationURL())
	if err != nil {
		log.Fatalf("Failed to create fix history store: %v", err)
	}
	defer historyStore.Close()

	runRepo := repository.NewValidationRunRepository(db.Pool, logger)
	consistency := service.NewConsistencyService(logger, historyStore)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting consistency HTTP server")

	server := api.NewServer(configManager, consistency, runRepo, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

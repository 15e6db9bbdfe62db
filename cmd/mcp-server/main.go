// Package main provides the database-backed entry point for the
// cross-document consistency MCP server. Fix history persists in PostgreSQL
// instead of the local SQLite file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/crossdoc-check-mcp-server/internal/config"
	"github.com/crossdoc-check-mcp-server/internal/history"
	"github.com/crossdoc-check-mcp-server/internal/mcp"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	store, err := history.NewPostgresStoreFromURL(configManager.GetMigrationURL())
	if err != nil {
		log.Fatalf("Failed to connect to fix history database: %v", err)
	}
	defer store.Close()

	liteCfg := config.LoadLiteConfig()
	liteCfg.Transport = configManager.GetMCPConfig().TransportType

	log.Printf("Starting consistency MCP server with transport: %s", liteCfg.Transport)

	server, err := mcp.NewLiteServer(liteCfg, mcp.WithHistoryStore(store))
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	log.Println("Consistency MCP server stopped")
}

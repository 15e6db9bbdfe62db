// Package mcp exposes the consistency engine as an MCP server.
// The lite server needs no external databases; fix history lives in SQLite
// under the data directory.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/crossdoc-check-mcp-server/internal/config"
	"github.com/crossdoc-check-mcp-server/internal/history"
	"github.com/crossdoc-check-mcp-server/internal/rules"
	"github.com/crossdoc-check-mcp-server/internal/service"
	"github.com/crossdoc-check-mcp-server/internal/similarity"
)

// LiteServer is a lightweight MCP server that requires no external databases.
type LiteServer struct {
	config       *litecfg.LiteConfig
	mcpServer    *mcp.Server
	consistency  *service.ConsistencyService
	historyStore history.Store
	scorer       *similarity.Scorer
	logger       *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithHistoryStore sets a custom fix history store.
func WithHistoryStore(store history.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.historyStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: logrus.New(),
	}

	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	server.logger.SetLevel(level)

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if server.historyStore == nil {
		store, err := history.NewSQLiteStore(cfg.HistoryDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create fix history store: %w", err)
		}
		server.historyStore = store
	}

	server.scorer = similarity.NewScorer(cfg.ScorerCacheSize)
	engine := rules.NewEngine(server.logger, server.scorer, rules.DefaultRules())
	server.consistency = service.NewConsistencyServiceWithEngine(server.logger, engine, server.historyStore)

	serverInfo := &mcp.Implementation{
		Name:    "crossdoc-check-mcp-server-lite",
		Version: "v0.1.0",
	}

	server.mcpServer = mcp.NewServer(serverInfo, nil)
	server.registerTools()

	server.logger.Info("Lite server initialized successfully")
	return server, nil
}

// Start runs the MCP server until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport", s.config.Transport).Info("Starting consistency MCP server")

	var transport mcp.Transport
	switch s.config.Transport {
	case "", "stdio":
		transport = &mcp.StdioTransport{}
	default:
		s.logger.WithField("transport", s.config.Transport).Warn("Unsupported transport, falling back to stdio")
		transport = &mcp.StdioTransport{}
	}

	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.historyStore != nil {
		if err := s.historyStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close fix history store")
			return err
		}
	}
	return nil
}

// HistoryStore returns the fix history store for external access.
func (s *LiteServer) HistoryStore() history.Store {
	return s.historyStore
}

// Package api exposes the consistency engine over HTTP for deployments that
// front it with a REST gateway instead of (or alongside) the MCP transport.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/middleware"
	"github.com/crossdoc-check-mcp-server/internal/repository"
	"github.com/crossdoc-check-mcp-server/internal/service"
)

// RunStore persists validation runs. Nil disables persistence.
type RunStore interface {
	Create(ctx context.Context, run *domain.ValidationRunRecord) error
	GetByID(ctx context.Context, id string) (*domain.ValidationRunRecord, error)
	List(ctx context.Context, limit, offset int) ([]*domain.ValidationRunRecord, error)
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	consistency   *service.ConsistencyService
	runs          RunStore
	log           *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance. runs may be nil when no
// database is configured; run retrieval endpoints then return 503.
func NewServer(configManager domain.ConfigManager, consistency *service.ConsistencyService, runs RunStore, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(corsMiddleware())
	if cfg.RateLimit.RequestsPerSecond > 0 {
		router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	server := &Server{
		configManager: configManager,
		consistency:   consistency,
		runs:          runs,
		log:           logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/validate", s.handleValidate)
		v1.POST("/autofix", s.handleAutoFix)
		v1.POST("/diff", s.handleDiff)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/fix-history", s.handleListFixHistory)
		v1.GET("/fix-history/export", s.handleExportFixHistory)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

// handleValidate runs the full rule catalog against the posted bundle.
func (s *Server) handleValidate(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.badRequest(c, fmt.Errorf("reading request body: %w", err))
		return
	}

	result, err := s.consistency.ValidateBundle(c.Request.Context(), payload)
	if err != nil {
		s.badRequest(c, err)
		return
	}

	if s.runs != nil {
		record := &domain.ValidationRunRecord{
			ID:               result.RunID,
			RequestID:        c.GetString("correlation_id"),
			DocumentTypes:    result.DocumentTypes,
			Issues:           result.Result.Issues,
			Summary:          result.Result.Summary,
			ProcessingTimeMS: int(result.ProcessingTime.Milliseconds()),
		}
		if err := s.runs.Create(c.Request.Context(), record); err != nil {
			// Persistence is best effort; the caller still gets the result.
			s.log.WithError(err).Warn("Failed to persist validation run")
		}
	}

	c.JSON(http.StatusOK, result)
}

type autoFixRequest struct {
	Bundle     json.RawMessage `json:"bundle" binding:"required"`
	IssueCodes []string        `json:"issue_codes"`
	Strategy   string          `json:"strategy"`
}

// handleAutoFix applies fixes for the requested issue codes.
func (s *Server) handleAutoFix(c *gin.Context) {
	var req autoFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, fmt.Errorf("decoding request: %w", err))
		return
	}

	result, err := s.consistency.ApplyAutoFixes(c.Request.Context(), req.Bundle, domain.AutoFixRequest{
		IssueCodes: req.IssueCodes,
		Strategy:   req.Strategy,
	})
	if err != nil {
		s.badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type diffRequest struct {
	Old       string `json:"old"`
	New       string `json:"new"`
	Algorithm string `json:"algorithm"`
}

func (s *Server) handleDiff(c *gin.Context) {
	var req diffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, fmt.Errorf("decoding request: %w", err))
		return
	}

	result, err := s.consistency.DiffDocuments(req.Old, req.New, req.Algorithm)
	if err != nil {
		s.badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.runs == nil {
		s.storageUnavailable(c)
		return
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	runs, err := s.runs.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.runs == nil {
		s.storageUnavailable(c)
		return
	}

	run, err := s.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Validation run not found"})
			return
		}
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListFixHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	records, err := s.consistency.ListFixHistory(c.Request.Context(), c.Query("run_id"), limit, offset)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"fixes": records, "count": len(records)})
}

func (s *Server) handleExportFixHistory(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="fix_history.json"`)
	if err := s.consistency.ExportFixHistory(c.Request.Context(), c.Writer); err != nil {
		s.log.WithError(err).Error("Failed to export fix history")
	}
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":          err.Error(),
		"correlation_id": c.GetString("correlation_id"),
	})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":          err.Error(),
		"correlation_id": c.GetString("correlation_id"),
	})
}

func (s *Server) storageUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error": "Run storage is not configured",
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Correlation-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

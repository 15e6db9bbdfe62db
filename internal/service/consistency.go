// Package service wires the loader, rule engine, auto-fix engine, and fix
// history into the operations the MCP and HTTP surfaces expose.
package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/autofix"
	"github.com/crossdoc-check-mcp-server/internal/changelog"
	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/history"
	"github.com/crossdoc-check-mcp-server/internal/loader"
	"github.com/crossdoc-check-mcp-server/internal/rules"
)

// ConsistencyService implements the cross-document validation workflow.
type ConsistencyService struct {
	logger *logrus.Logger
	loader *loader.Loader
	engine *rules.Engine
	fixer  *autofix.Engine
	store  history.Store
}

// NewConsistencyService creates a consistency service over the default rule
// catalog. store may be nil for callers that do not persist fix history.
func NewConsistencyService(logger *logrus.Logger, store history.Store) *ConsistencyService {
	return &ConsistencyService{
		logger: logger,
		loader: loader.NewLoader(logger),
		engine: rules.NewDefaultEngine(logger),
		fixer:  autofix.NewEngine(logger),
		store:  store,
	}
}

// NewConsistencyServiceWithEngine creates a consistency service over a custom
// rule engine, for callers that extend or replace the default catalog.
func NewConsistencyServiceWithEngine(logger *logrus.Logger, engine *rules.Engine, store history.Store) *ConsistencyService {
	return &ConsistencyService{
		logger: logger,
		loader: loader.NewLoader(logger),
		engine: engine,
		fixer:  autofix.NewEngine(logger),
		store:  store,
	}
}

// ValidateBundleResult is the outcome of one validation run.
type ValidateBundleResult struct {
	RunID          string                   `json:"run_id"`
	DocumentTypes  []string                 `json:"document_types"`
	Result         *domain.ValidationResult `json:"result"`
	ProcessingTime time.Duration            `json:"processing_time"`
}

// ValidateBundle decodes a bundle payload and runs the full rule catalog
// against it. Every run gets a fresh run id; nothing persists between runs.
func (s *ConsistencyService) ValidateBundle(ctx context.Context, payload []byte) (*ValidateBundleResult, error) {
	startTime := time.Now()
	runID := uuid.NewString()

	bundle, err := s.loader.LoadBundle(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}

	s.logger.WithField("run_id", runID).Info("Starting consistency validation")

	result := s.engine.Run(ctx, bundle)

	out := &ValidateBundleResult{
		RunID:          runID,
		DocumentTypes:  bundle.PresentDocuments(),
		Result:         result,
		ProcessingTime: time.Since(startTime),
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":          runID,
		"total_issues":    result.Summary.Total,
		"processing_time": out.ProcessingTime,
	}).Info("Consistency validation completed")

	return out, nil
}

// AutoFixBundleResult is the outcome of one auto-fix pass.
type AutoFixBundleResult struct {
	RunID          string                `json:"run_id"`
	Fix            *domain.AutoFixResult `json:"fix"`
	Impact         changelog.Impact      `json:"impact"`
	ProcessingTime time.Duration         `json:"processing_time"`
}

// ApplyAutoFixes validates a bundle payload, applies fixes for the requested
// issue codes, and records each applied patch in the fix history. The engine
// is stateless, so issues are recomputed from the payload rather than trusted
// from the caller.
func (s *ConsistencyService) ApplyAutoFixes(ctx context.Context, payload []byte, request domain.AutoFixRequest) (*AutoFixBundleResult, error) {
	startTime := time.Now()
	runID := uuid.NewString()

	bundle, err := s.loader.LoadBundle(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":          runID,
		"requested_codes": request.IssueCodes,
	}).Info("Starting auto-fix pass")

	validation := s.engine.Run(ctx, bundle)

	fix, err := s.fixer.ApplyAutoFixes(validation.Issues, bundle, request)
	if err != nil {
		return nil, fmt.Errorf("failed to apply auto-fixes: %w", err)
	}

	if s.store != nil {
		s.recordFixes(ctx, runID, fix)
	}

	out := &AutoFixBundleResult{
		RunID:          runID,
		Fix:            fix,
		Impact:         changelog.EstimateImpact(fix.AppliedPatches),
		ProcessingTime: time.Since(startTime),
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":          runID,
		"applied_patches": len(fix.AppliedPatches),
		"processing_time": out.ProcessingTime,
	}).Info("Auto-fix pass completed")

	return out, nil
}

// recordFixes persists applied patches as fix history. Persistence failures
// are logged but never fail the fix pass itself.
func (s *ConsistencyService) recordFixes(ctx context.Context, runID string, fix *domain.AutoFixResult) {
	for i, entry := range fix.Changelog {
		rec := &history.FixRecord{
			RunID:        runID,
			DocumentType: string(entry.DocumentType),
			DocumentID:   entry.DocumentID,
			Field:        entry.Field,
			OldValue:     entry.OldValue,
			NewValue:     entry.NewValue,
			Reason:       entry.Reason,
			IssueCode:    issueCodeFromReason(entry.Reason),
		}
		if err := s.store.Save(ctx, rec); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"run_id":      runID,
				"entry_index": i,
			}).Warn("Failed to persist fix record")
		}
	}
}

// issueCodeFromReason recovers the issue code from a changelog reason of the
// form "Auto-fix for CODE: message".
func issueCodeFromReason(reason string) string {
	const prefix = "Auto-fix for "
	if len(reason) <= len(prefix) || reason[:len(prefix)] != prefix {
		return ""
	}
	rest := reason[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i]
		}
	}
	return ""
}

// DiffDocumentsResult carries both the structured and rendered form of a diff.
type DiffDocumentsResult struct {
	Diff      changelog.DiffResult `json:"diff"`
	Formatted string               `json:"formatted"`
	Algorithm string               `json:"algorithm"`
}

// DiffDocuments compares two document texts. algorithm selects "set" (line
// membership, reorder-insensitive) or "lcs" (sequence-aligned); empty means
// "set".
func (s *ConsistencyService) DiffDocuments(oldText, newText, algorithm string) (*DiffDocumentsResult, error) {
	var diff changelog.DiffResult
	switch algorithm {
	case "", "set":
		algorithm = "set"
		diff = changelog.GenerateDiff(oldText, newText)
	case "lcs":
		diff = changelog.GenerateDiffLCS(oldText, newText)
	default:
		return nil, fmt.Errorf("unknown diff algorithm %q", algorithm)
	}

	return &DiffDocumentsResult{
		Diff:      diff,
		Formatted: changelog.FormatDiff(diff),
		Algorithm: algorithm,
	}, nil
}

// ListFixHistory returns persisted fix records, filtered by run when runID is
// non-empty.
func (s *ConsistencyService) ListFixHistory(ctx context.Context, runID string, limit, offset int) ([]*history.FixRecord, error) {
	if s.store == nil {
		return nil, fmt.Errorf("fix history storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	if runID != "" {
		return s.store.GetByRun(ctx, runID)
	}
	return s.store.List(ctx, limit, offset)
}

// ExportFixHistory writes the full fix history as JSON.
func (s *ConsistencyService) ExportFixHistory(ctx context.Context, writer io.Writer) error {
	if s.store == nil {
		return fmt.Errorf("fix history storage is not configured")
	}
	return s.store.ExportJSON(ctx, writer)
}

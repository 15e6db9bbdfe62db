package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/history"
	"github.com/crossdoc-check-mcp-server/internal/service"
)

// ValidateBundleParams defines parameters for the validate_bundle tool.
type ValidateBundleParams struct {
	Bundle json.RawMessage `json:"bundle"`
}

// ApplyAutoFixesParams defines parameters for the apply_auto_fixes tool.
type ApplyAutoFixesParams struct {
	Bundle     json.RawMessage `json:"bundle"`
	IssueCodes []string        `json:"issue_codes"`
	Strategy   string          `json:"strategy,omitempty"`
}

// DiffDocumentsParams defines parameters for the diff_documents tool.
type DiffDocumentsParams struct {
	Old       string `json:"old"`
	New       string `json:"new"`
	Algorithm string `json:"algorithm,omitempty"`
}

// ListFixHistoryParams defines parameters for the list_fix_history tool.
type ListFixHistoryParams struct {
	RunID  string `json:"run_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ListFixHistoryResult is the result of the list_fix_history tool.
type ListFixHistoryResult struct {
	Fixes []*history.FixRecord `json:"fixes"`
	Count int                  `json:"count"`
}

// ExportFixHistoryParams defines parameters for the export_fix_history tool.
type ExportFixHistoryParams struct {
	Path string `json:"path,omitempty"`
}

// ExportFixHistoryResult is the result of the export_fix_history tool.
type ExportFixHistoryResult struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// ImportFixHistoryParams defines parameters for the import_fix_history tool.
type ImportFixHistoryParams struct {
	Path string `json:"path"`
}

// ImportFixHistoryResult is the result of the import_fix_history tool.
type ImportFixHistoryResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "validate_bundle",
		Description: "Run cross-document consistency checks over a bundle of clinical documents (IB, Protocol, ICF, SAP, CSR) and report issues grouped by severity and document pair.",
	}, s.handleValidateBundle)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "apply_auto_fixes",
		Description: "Apply automatic fixes for selected issue codes to a document bundle and return the merged patches, changelog, and remaining issues.",
	}, s.handleApplyAutoFixes)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "diff_documents",
		Description: "Compare two document texts line by line. Algorithm 'set' ignores reordering; 'lcs' is sequence-aligned.",
	}, s.handleDiffDocuments)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_fix_history",
		Description: "List previously applied auto-fixes, optionally filtered by validation run id.",
	}, s.handleListFixHistory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_fix_history",
		Description: "Export the full fix history to a JSON file and return its path.",
	}, s.handleExportFixHistory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "import_fix_history",
		Description: "Import fix history records from a JSON export file. Existing records are kept.",
	}, s.handleImportFixHistory)

	s.logger.Info("Registered consistency tools")
}

func (s *LiteServer) handleValidateBundle(ctx context.Context, req *mcp.CallToolRequest, params ValidateBundleParams) (*mcp.CallToolResult, *service.ValidateBundleResult, error) {
	s.logger.WithField("tool", "validate_bundle").Info("Tool invoked")

	if len(params.Bundle) == 0 {
		return errorResult("bundle is required"), nil, nil
	}

	result, err := s.consistency.ValidateBundle(ctx, params.Bundle)
	if err != nil {
		return errorResult(fmt.Sprintf("validation failed: %v", err)), nil, nil
	}

	summary := result.Result.Summary
	text := fmt.Sprintf("Validation run %s: %d issue(s) (%d critical, %d error, %d warning, %d info)",
		result.RunID, summary.Total, summary.Critical, summary.Error, summary.Warning, summary.Info)

	return textResult(text), result, nil
}

func (s *LiteServer) handleApplyAutoFixes(ctx context.Context, req *mcp.CallToolRequest, params ApplyAutoFixesParams) (*mcp.CallToolResult, *service.AutoFixBundleResult, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":        "apply_auto_fixes",
		"issue_codes": params.IssueCodes,
	}).Info("Tool invoked")

	if len(params.Bundle) == 0 {
		return errorResult("bundle is required"), nil, nil
	}

	result, err := s.consistency.ApplyAutoFixes(ctx, params.Bundle, domain.AutoFixRequest{
		IssueCodes: params.IssueCodes,
		Strategy:   params.Strategy,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("auto-fix failed: %v", err)), nil, nil
	}

	text := fmt.Sprintf("Auto-fix run %s: %d patch(es) applied across %d document(s), %d issue(s) remaining",
		result.RunID, len(result.Fix.AppliedPatches), len(result.Fix.UpdatedDocuments), len(result.Fix.RemainingIssues))

	return textResult(text), result, nil
}

func (s *LiteServer) handleDiffDocuments(ctx context.Context, req *mcp.CallToolRequest, params DiffDocumentsParams) (*mcp.CallToolResult, *service.DiffDocumentsResult, error) {
	s.logger.WithField("tool", "diff_documents").Info("Tool invoked")

	result, err := s.consistency.DiffDocuments(params.Old, params.New, params.Algorithm)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	return textResult(result.Formatted), result, nil
}

func (s *LiteServer) handleListFixHistory(ctx context.Context, req *mcp.CallToolRequest, params ListFixHistoryParams) (*mcp.CallToolResult, *ListFixHistoryResult, error) {
	s.logger.WithField("tool", "list_fix_history").Info("Tool invoked")

	records, err := s.consistency.ListFixHistory(ctx, params.RunID, params.Limit, params.Offset)
	if err != nil {
		return errorResult(fmt.Sprintf("listing fix history failed: %v", err)), nil, nil
	}

	result := &ListFixHistoryResult{
		Fixes: records,
		Count: len(records),
	}

	return textResult(fmt.Sprintf("Found %d fix record(s)", len(records))), result, nil
}

func (s *LiteServer) handleExportFixHistory(ctx context.Context, req *mcp.CallToolRequest, params ExportFixHistoryParams) (*mcp.CallToolResult, *ExportFixHistoryResult, error) {
	s.logger.WithField("tool", "export_fix_history").Info("Tool invoked")

	path := params.Path
	if path == "" {
		path = filepath.Join(s.config.ExportDir(), fmt.Sprintf("fix_history_%s.json", time.Now().UTC().Format("20060102_150405")))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errorResult(fmt.Sprintf("creating export directory: %v", err)), nil, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return errorResult(fmt.Sprintf("creating export file: %v", err)), nil, nil
	}
	defer file.Close()

	if err := s.consistency.ExportFixHistory(ctx, file); err != nil {
		return errorResult(fmt.Sprintf("export failed: %v", err)), nil, nil
	}

	count, err := s.historyStore.Count(ctx)
	if err != nil {
		count = -1
	}

	result := &ExportFixHistoryResult{Path: path, Count: count}
	return textResult(fmt.Sprintf("Exported fix history to %s", path)), result, nil
}

func (s *LiteServer) handleImportFixHistory(ctx context.Context, req *mcp.CallToolRequest, params ImportFixHistoryParams) (*mcp.CallToolResult, *ImportFixHistoryResult, error) {
	s.logger.WithField("tool", "import_fix_history").Info("Tool invoked")

	if params.Path == "" {
		return errorResult("path is required"), nil, nil
	}

	file, err := os.Open(params.Path)
	if err != nil {
		return errorResult(fmt.Sprintf("opening import file: %v", err)), nil, nil
	}
	defer file.Close()

	imported, skipped, err := s.historyStore.ImportJSON(ctx, file)
	if err != nil {
		return errorResult(fmt.Sprintf("import failed: %v", err)), nil, nil
	}

	result := &ImportFixHistoryResult{Imported: imported, Skipped: skipped}
	return textResult(fmt.Sprintf("Imported %d record(s), skipped %d existing", imported, skipped)), result, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %s", message)},
		},
		IsError: true,
	}
}

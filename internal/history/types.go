// Package history provides persistent storage for applied auto-fixes. Each
// record captures one patch that an auto-fix pass applied, keyed by the
// validation run it came from, so reviewers can audit what changed and why.
package history

import (
	"context"
	"io"
	"time"
)

// FixRecord is one applied patch from an auto-fix pass.
type FixRecord struct {
	ID           int64     `json:"id,omitempty"`
	RunID        string    `json:"run_id"`
	IssueCode    string    `json:"issue_code"`
	DocumentType string    `json:"document_type"`
	DocumentID   string    `json:"document_id"`
	Field        string    `json:"field"`
	OldValue     string    `json:"old_value,omitempty"`
	NewValue     string    `json:"new_value"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store defines the interface for fix-history storage operations.
type Store interface {
	// Save stores or updates a fix record. Records are unique per
	// (run_id, document_type, document_id, field); applying a later fix to
	// the same slot within a run overwrites the earlier record.
	Save(ctx context.Context, record *FixRecord) error

	// GetByRun returns all fix records for one validation run, oldest first.
	GetByRun(ctx context.Context, runID string) ([]*FixRecord, error)

	// List returns fix records across runs with pagination, newest first.
	List(ctx context.Context, limit, offset int) ([]*FixRecord, error)

	// Count returns the total number of fix records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a fix record by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all fix records to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports fix records from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// HistoryExport represents the JSON export format.
type HistoryExport struct {
	Version    string       `json:"version"`
	ExportedAt time.Time    `json:"exported_at"`
	Count      int          `json:"count"`
	Fixes      []*FixRecord `json:"fixes"`
}

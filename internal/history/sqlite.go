package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite fix-history store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanFixRecord scans a row into a FixRecord struct.
func scanFixRecord(s scanner) (*FixRecord, error) {
	rec := &FixRecord{}
	err := s.Scan(
		&rec.ID, &rec.RunID, &rec.IssueCode,
		&rec.DocumentType, &rec.DocumentID, &rec.Field,
		&rec.OldValue, &rec.NewValue, &rec.Reason,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fix_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		issue_code TEXT NOT NULL,
		document_type TEXT NOT NULL,
		document_id TEXT NOT NULL,
		field TEXT NOT NULL DEFAULT 'root',
		old_value TEXT DEFAULT '',
		new_value TEXT NOT NULL,
		reason TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, document_type, document_id, field)
	);

	CREATE INDEX IF NOT EXISTS idx_fix_history_run_id ON fix_history(run_id);
	CREATE INDEX IF NOT EXISTS idx_fix_history_document_id ON fix_history(document_id);
	CREATE INDEX IF NOT EXISTS idx_fix_history_created_at ON fix_history(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates a fix record.
func (s *SQLiteStore) Save(ctx context.Context, record *FixRecord) error {
	now := time.Now()
	if record.Field == "" {
		record.Field = "root"
	}

	// Check if exists
	var existingID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM fix_history WHERE run_id = ? AND document_type = ? AND document_id = ? AND field = ?",
		record.RunID, record.DocumentType, record.DocumentID, record.Field,
	).Scan(&existingID)

	if err == nil {
		// Update existing
		record.ID = existingID
		record.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE fix_history SET
				issue_code = ?,
				old_value = ?,
				new_value = ?,
				reason = ?,
				updated_at = ?
			WHERE id = ?
		`,
			record.IssueCode,
			record.OldValue,
			record.NewValue,
			record.Reason,
			now,
			existingID,
		)
		return err
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	// Insert new
	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO fix_history (
			run_id, issue_code, document_type, document_id, field,
			old_value, new_value, reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RunID,
		record.IssueCode,
		record.DocumentType,
		record.DocumentID,
		record.Field,
		record.OldValue,
		record.NewValue,
		record.Reason,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	record.ID = id

	return nil
}

// GetByRun returns all fix records for one validation run.
func (s *SQLiteStore) GetByRun(ctx context.Context, runID string) ([]*FixRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, issue_code, document_type, document_id, field,
			old_value, new_value, reason, created_at, updated_at
		FROM fix_history
		WHERE run_id = ?
		ORDER BY created_at ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*FixRecord
	for rows.Next() {
		rec, err := scanFixRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// List returns fix records across runs with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*FixRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, issue_code, document_type, document_id, field,
			old_value, new_value, reason, created_at, updated_at
		FROM fix_history
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*FixRecord
	for rows.Next() {
		rec, err := scanFixRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of fix records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fix_history").Scan(&count)
	return count, err
}

// Delete removes a fix record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM fix_history WHERE id = ?", id)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all fix records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list fix history: %w", err)
	}

	export := &HistoryExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Fixes:      all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports fix records from a JSON reader. Records whose slot
// already exists are skipped, not overwritten.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export HistoryExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, rec := range export.Fixes {
		exists, err := s.slotExists(ctx, rec)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if exists {
			skipped++
			continue
		}

		if err := s.Save(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

func (s *SQLiteStore) slotExists(ctx context.Context, rec *FixRecord) (bool, error) {
	field := rec.Field
	if field == "" {
		field = "root"
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM fix_history WHERE run_id = ? AND document_type = ? AND document_id = ? AND field = ?",
		rec.RunID, rec.DocumentType, rec.DocumentID, field,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

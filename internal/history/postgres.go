package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL fix-history store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL fix-history store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save stores or updates a fix record.
func (s *PostgresStore) Save(ctx context.Context, record *FixRecord) error {
	now := time.Now()
	if record.Field == "" {
		record.Field = "root"
	}

	query := `
		INSERT INTO fix_history (
			run_id, issue_code, document_type, document_id, field,
			old_value, new_value, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, document_type, document_id, field) DO UPDATE SET
			issue_code = EXCLUDED.issue_code,
			old_value = EXCLUDED.old_value,
			new_value = EXCLUDED.new_value,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
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
	).Scan(&record.ID, &record.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save fix record: %w", err)
	}

	record.UpdatedAt = now
	return nil
}

// GetByRun returns all fix records for one validation run.
func (s *PostgresStore) GetByRun(ctx context.Context, runID string) ([]*FixRecord, error) {
	query := `
		SELECT id, run_id, issue_code, document_type, document_id, field,
			old_value, new_value, reason, created_at, updated_at
		FROM fix_history
		WHERE run_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fix history: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// List returns fix records across runs with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*FixRecord, error) {
	query := `
		SELECT id, run_id, issue_code, document_type, document_id, field,
			old_value, new_value, reason, created_at, updated_at
		FROM fix_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list fix history: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*FixRecord, error) {
	var result []*FixRecord
	for rows.Next() {
		rec := &FixRecord{}
		err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.IssueCode,
			&rec.DocumentType, &rec.DocumentID, &rec.Field,
			&rec.OldValue, &rec.NewValue, &rec.Reason,
			&rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of fix records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fix_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fix history: %w", err)
	}
	return count, nil
}

// Delete removes a fix record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM fix_history WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete fix record: %w", err)
	}
	return nil
}

// pgMaxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON exports all fix records to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, pgMaxExportLimit, 0)
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
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export HistoryExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, rec := range export.Fixes {
		field := rec.Field
		if field == "" {
			field = "root"
		}

		var id int64
		err := s.db.QueryRowContext(ctx,
			"SELECT id FROM fix_history WHERE run_id = $1 AND document_type = $2 AND document_id = $3 AND field = $4",
			rec.RunID, rec.DocumentType, rec.DocumentID, field,
		).Scan(&id)
		if err == nil {
			skipped++
			continue
		}
		if err != sql.ErrNoRows {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := s.Save(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

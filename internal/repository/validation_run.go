// Package repository persists validation runs in PostgreSQL for the server
// deployment.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
)

// ErrRunNotFound is returned when a validation run id does not exist.
var ErrRunNotFound = errors.New("validation run not found")

// ValidationRunRepository handles validation run persistence
type ValidationRunRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewValidationRunRepository creates a new validation run repository
func NewValidationRunRepository(db *pgxpool.Pool, logger *logrus.Logger) *ValidationRunRepository {
	return &ValidationRunRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new validation run into the database
func (r *ValidationRunRepository) Create(ctx context.Context, run *domain.ValidationRunRecord) error {
	issuesJSON, err := json.Marshal(run.Issues)
	if err != nil {
		return fmt.Errorf("marshaling issues: %w", err)
	}

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}

	query := `
		INSERT INTO validation_runs (
			id, request_id, document_types, issues, summary, processing_time_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`

	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.RequestID,
		run.DocumentTypes,
		issuesJSON,
		summaryJSON,
		run.ProcessingTimeMS,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"run_id": run.ID,
			"error":  err,
		}).Error("Failed to create validation run")
		return fmt.Errorf("creating validation run: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":          run.ID,
		"document_types":  run.DocumentTypes,
		"total_issues":    run.Summary.Total,
		"processing_time": run.ProcessingTimeMS,
	}).Info("Validation run created successfully")

	return nil
}

// GetByID retrieves a validation run by its id
func (r *ValidationRunRepository) GetByID(ctx context.Context, id string) (*domain.ValidationRunRecord, error) {
	query := `
		SELECT id, request_id, document_types, issues, summary,
			   processing_time_ms, created_at
		FROM validation_runs
		WHERE id = $1`

	run, err := r.scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("getting validation run: %w", err)
	}

	return run, nil
}

// List retrieves validation runs ordered by recency
func (r *ValidationRunRepository) List(ctx context.Context, limit, offset int) ([]*domain.ValidationRunRecord, error) {
	query := `
		SELECT id, request_id, document_types, issues, summary,
			   processing_time_ms, created_at
		FROM validation_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing validation runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.ValidationRunRecord
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning validation run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating validation runs: %w", err)
	}

	return runs, nil
}

// Count returns the number of stored validation runs
func (r *ValidationRunRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM validation_runs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting validation runs: %w", err)
	}
	return count, nil
}

// Delete removes a validation run by id
func (r *ValidationRunRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM validation_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting validation run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}

	r.log.WithField("run_id", id).Info("Validation run deleted")
	return nil
}

func (r *ValidationRunRepository) scanRun(row pgx.Row) (*domain.ValidationRunRecord, error) {
	var run domain.ValidationRunRecord
	var issuesJSON, summaryJSON []byte
	var createdAt time.Time

	err := row.Scan(
		&run.ID,
		&run.RequestID,
		&run.DocumentTypes,
		&issuesJSON,
		&summaryJSON,
		&run.ProcessingTimeMS,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(issuesJSON, &run.Issues); err != nil {
		return nil, fmt.Errorf("unmarshaling issues: %w", err)
	}
	if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
		return nil, fmt.Errorf("unmarshaling summary: %w", err)
	}
	run.CreatedAt = createdAt

	return &run, nil
}

package domain

import "time"

// ValidationRunRecord is a persisted validation run: the issues and summary
// produced for one bundle, kept for audit and trend reporting. The record is
// a snapshot; re-running the same bundle produces a new record.
type ValidationRunRecord struct {
	ID               string            `json:"id"`
	RequestID        string            `json:"request_id,omitempty"`
	DocumentTypes    []string          `json:"document_types"`
	Issues           []Issue           `json:"issues"`
	Summary          ValidationSummary `json:"summary"`
	ProcessingTimeMS int               `json:"processing_time_ms"`
	CreatedAt        time.Time         `json:"created_at"`
}

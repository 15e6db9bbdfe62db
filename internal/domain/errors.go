package domain

import (
	"fmt"
	"time"
)

// EngineError represents a standardized error response from the service surface.
type EngineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrInvalidBundle  = "INVALID_BUNDLE"
	ErrInvalidPatch   = "INVALID_PATCH"
	ErrRuleExecution  = "RULE_EXECUTION_ERROR"
	ErrDatabaseError  = "DATABASE_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

// PatchValidationError carries the reasons a patch was rejected.
type PatchValidationError struct {
	Patch   Patch    `json:"patch"`
	Reasons []string `json:"reasons"`
}

// Error implements the error interface
func (e *PatchValidationError) Error() string {
	return fmt.Sprintf("invalid patch for %s/%s: %v", e.Patch.DocumentType, e.Patch.DocumentID, e.Reasons)
}

// NewEngineError creates a new EngineError with timestamp
func NewEngineError(code, message, details, requestID string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

package domain

import "time"

// Severity grades a consistency issue.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IssueCategory buckets issues by the document pairing they concern.
type IssueCategory string

const (
	CategoryIBProtocol  IssueCategory = "IB_PROTOCOL"
	CategoryProtocolICF IssueCategory = "PROTOCOL_ICF"
	CategoryProtocolSAP IssueCategory = "PROTOCOL_SAP"
	CategoryProtocolCSR IssueCategory = "PROTOCOL_CSR"
	CategorySAPCSR      IssueCategory = "SAP_CSR"
	CategoryGlobal      IssueCategory = "GLOBAL"
)

// AllCategories lists the fixed category keys used in ValidationResult.ByCategory.
var AllCategories = []IssueCategory{
	CategoryIBProtocol,
	CategoryProtocolICF,
	CategoryProtocolSAP,
	CategoryProtocolCSR,
	CategorySAPCSR,
	CategoryGlobal,
}

// Well-known issue codes emitted by the default rule catalog.
const (
	CodePrimaryEndpointDrift      = "PRIMARY_ENDPOINT_DRIFT"
	CodePrimaryEndpointMissingSAP = "PRIMARY_ENDPOINT_MISSING_SAP"
	CodeSecondaryEndpointGap      = "SECONDARY_ENDPOINT_GAP"
	CodeStatTestMismatch          = "STAT_TEST_MISMATCH"
	CodeDoseInconsistency         = "DOSE_INCONSISTENCY"
	CodePrimaryObjectiveDrift     = "PRIMARY_OBJECTIVE_DRIFT"
	CodeObjectiveUnmatched        = "OBJECTIVE_UNMATCHED"
	CodeSampleSizeEndpointMissing = "SAMPLE_SIZE_ENDPOINT_MISSING"
	CodePopulationMismatch        = "POPULATION_MISMATCH"
	CodeCSREndpointUnreported     = "CSR_ENDPOINT_UNREPORTED"
)

// Location pins an issue to a place in a document.
type Location struct {
	DocumentType DocumentType `json:"document_type"`
	Section      string       `json:"section,omitempty"`
	BlockID      string       `json:"block_id,omitempty"`
	Field        string       `json:"field,omitempty"`
	Line         int          `json:"line,omitempty"`
}

// Patch describes one atomic proposed edit to a document field. It carries
// intent only; applying it to storage is the caller's responsibility.
type Patch struct {
	DocumentType DocumentType `json:"document_type"`
	DocumentID   string       `json:"document_id"`
	BlockID      string       `json:"block_id,omitempty"`
	Field        string       `json:"field,omitempty"`
	OldValue     string       `json:"old_value,omitempty"`
	NewValue     string       `json:"new_value"`
}

// Suggestion is a proposed remediation attached to an issue. When AutoFixable
// is true, Patches realize the fix mechanically.
type Suggestion struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	AutoFixable bool    `json:"auto_fixable"`
	Patches     []Patch `json:"patches,omitempty"`
}

// Issue is one consistency defect surfaced by a rule. Issues are produced
// fresh on every validation run; no issue identity persists across runs.
type Issue struct {
	Code        string        `json:"code"`
	Severity    Severity      `json:"severity"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Category    IssueCategory `json:"category,omitempty"`
	Locations   []Location    `json:"locations"`
	Suggestions []Suggestion  `json:"suggestions,omitempty"`
}

// ChangeLogEntry records one applied patch. Entries are append-only and are
// never mutated after creation.
type ChangeLogEntry struct {
	Timestamp    time.Time    `json:"timestamp"`
	DocumentType DocumentType `json:"document_type"`
	DocumentID   string       `json:"document_id"`
	Field        string       `json:"field"`
	OldValue     string       `json:"old_value,omitempty"`
	NewValue     string       `json:"new_value"`
	Reason       string       `json:"reason"`
}

// ValidationSummary counts issues by severity across one validation run.
type ValidationSummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	Error    int `json:"error"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// ValidationResult is the aggregate output of one rule-engine run.
// ByCategory carries every category key even when empty; issues without a
// category appear only in the flat Issues list.
type ValidationResult struct {
	Issues     []Issue                   `json:"issues"`
	Summary    ValidationSummary         `json:"summary"`
	ByCategory map[IssueCategory][]Issue `json:"by_category"`
}

// DocumentRef identifies one document touched by an auto-fix pass.
type DocumentRef struct {
	DocumentType DocumentType `json:"document_type"`
	DocumentID   string       `json:"document_id"`
}

// AutoFixRequest selects which issue codes to remediate.
type AutoFixRequest struct {
	IssueCodes []string `json:"issue_codes"`
	Strategy   string   `json:"strategy,omitempty"`
}

// AutoFixResult reports what an auto-fix pass would change in-memory.
// Persisting AppliedPatches into the document store is left to the caller.
type AutoFixResult struct {
	AppliedPatches   []Patch          `json:"applied_patches"`
	UpdatedDocuments []DocumentRef    `json:"updated_documents"`
	RemainingIssues  []Issue          `json:"remaining_issues"`
	Changelog        []ChangeLogEntry `json:"changelog"`
}

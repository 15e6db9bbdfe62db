// Package changelog provides stateless utilities for recording, describing,
// diffing, and sizing patches. The auto-fix engine consumes these helpers;
// nothing here touches storage.
package changelog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/crossdoc-check-mcp-server/internal/domain"
)

// TrackChange records one applied patch as an immutable changelog entry.
func TrackChange(patch domain.Patch, reason string) domain.ChangeLogEntry {
	field := patch.Field
	if field == "" {
		field = "root"
	}
	return domain.ChangeLogEntry{
		Timestamp:    time.Now().UTC(),
		DocumentType: patch.DocumentType,
		DocumentID:   patch.DocumentID,
		Field:        field,
		OldValue:     patch.OldValue,
		NewValue:     patch.NewValue,
		Reason:       reason,
	}
}

// DescribeChange renders a one-line human-readable summary of an entry.
func DescribeChange(entry domain.ChangeLogEntry) string {
	if entry.OldValue == "" {
		return fmt.Sprintf("[%s %s] set %s to %q (%s)",
			entry.DocumentType, entry.DocumentID, entry.Field, entry.NewValue, entry.Reason)
	}
	return fmt.Sprintf("[%s %s] changed %s from %q to %q (%s)",
		entry.DocumentType, entry.DocumentID, entry.Field, entry.OldValue, entry.NewValue, entry.Reason)
}

// DescribeChanges renders a multi-line summary grouped by document type.
// Groups appear in a stable order; entries keep their original order within
// each group.
func DescribeChanges(entries []domain.ChangeLogEntry) string {
	if len(entries) == 0 {
		return "No changes recorded."
	}

	grouped := make(map[domain.DocumentType][]domain.ChangeLogEntry)
	var order []domain.DocumentType
	for _, entry := range entries {
		if _, seen := grouped[entry.DocumentType]; !seen {
			order = append(order, entry.DocumentType)
		}
		grouped[entry.DocumentType] = append(grouped[entry.DocumentType], entry)
	}

	var b strings.Builder
	for i, docType := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%d change(s)):\n", docType, len(grouped[docType]))
		for _, entry := range grouped[docType] {
			fmt.Fprintf(&b, "  - %s\n", DescribeChange(entry))
		}
	}
	return b.String()
}

// ValidatePatch checks a patch's required fields. DocumentType, DocumentID,
// and NewValue must all be present; BlockID, Field, and OldValue are optional.
func ValidatePatch(patch domain.Patch) error {
	var reasons []string
	if patch.DocumentType == "" {
		reasons = append(reasons, "document_type is required")
	}
	if patch.DocumentID == "" {
		reasons = append(reasons, "document_id is required")
	}
	if patch.NewValue == "" {
		reasons = append(reasons, "new_value is required")
	}
	if len(reasons) > 0 {
		return &domain.PatchValidationError{Patch: patch, Reasons: reasons}
	}
	return nil
}

// mergeKey identifies the slot a patch writes to. Patches without a field
// target the document root.
func mergeKey(patch domain.Patch) string {
	field := patch.Field
	if field == "" {
		field = "root"
	}
	return string(patch.DocumentType) + "\x00" + patch.DocumentID + "\x00" + field
}

// MergePatches collapses patches that write the same (document type,
// document id, field) slot. The last patch processed wins outright; values
// are overwritten, never combined. Slot order follows first encounter.
func MergePatches(patches []domain.Patch) []domain.Patch {
	byKey := make(map[string]int, len(patches))
	var merged []domain.Patch

	for _, patch := range patches {
		key := mergeKey(patch)
		if idx, seen := byKey[key]; seen {
			merged[idx] = patch
			continue
		}
		byKey[key] = len(merged)
		merged = append(merged, patch)
	}
	return merged
}

// Impact sizes a patch set without applying it.
type Impact struct {
	DocumentsAffected int `json:"documents_affected"`
	FieldsChanged     int `json:"fields_changed"`
	TotalChanges      int `json:"total_changes"`
}

// EstimateImpact counts distinct documents and distinct (document type,
// field) pairs touched by a patch set.
func EstimateImpact(patches []domain.Patch) Impact {
	documents := make(map[string]struct{})
	fields := make(map[string]struct{})
	for _, patch := range patches {
		documents[string(patch.DocumentType)+"\x00"+patch.DocumentID] = struct{}{}
		field := patch.Field
		if field == "" {
			field = "root"
		}
		fields[string(patch.DocumentType)+"\x00"+field] = struct{}{}
	}
	return Impact{
		DocumentsAffected: len(documents),
		FieldsChanged:     len(fields),
		TotalChanges:      len(patches),
	}
}

// sortedLines returns the distinct members of set in lexical order.
func sortedLines(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for line := range set {
		out = append(out, line)
	}
	sort.Strings(out)
	return out
}

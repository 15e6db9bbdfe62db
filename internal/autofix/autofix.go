// Package autofix turns validation issues into concrete patch sets. It never
// writes to storage: the result reports the patches and changelog entries a
// caller should persist, plus the issues it could not or was not asked to fix.
package autofix

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/changelog"
	"github.com/crossdoc-check-mcp-server/internal/domain"
)

// Engine applies autofixable suggestions for selected issue codes.
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates an auto-fix engine.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// ApplyAutoFixes processes issues whose code appears in request.IssueCodes.
// For each selected issue the first autofixable suggestion wins; there is no
// ranking among multiple autofixable suggestions. Issues outside the request,
// and selected issues with no autofixable suggestion, pass through to
// RemainingIssues. Invalid patches are logged and dropped without aborting
// the batch. Applied patches are merged last-wins per document slot before
// the touched-document set is computed.
//
// The engine only raises for programmer errors; a nil bundle is one.
func (e *Engine) ApplyAutoFixes(issues []domain.Issue, bundle *domain.CrossDocBundle, request domain.AutoFixRequest) (*domain.AutoFixResult, error) {
	if bundle == nil {
		return nil, fmt.Errorf("apply auto fixes: bundle is required")
	}

	requested := make(map[string]struct{}, len(request.IssueCodes))
	for _, code := range request.IssueCodes {
		requested[code] = struct{}{}
	}

	e.logger.WithFields(logrus.Fields{
		"issue_count":     len(issues),
		"requested_codes": len(requested),
	}).Debug("Applying auto-fixes")

	result := &domain.AutoFixResult{
		AppliedPatches:   []domain.Patch{},
		UpdatedDocuments: []domain.DocumentRef{},
		RemainingIssues:  []domain.Issue{},
		Changelog:        []domain.ChangeLogEntry{},
	}

	var applied []domain.Patch
	for _, issue := range issues {
		if _, selected := requested[issue.Code]; !selected {
			result.RemainingIssues = append(result.RemainingIssues, issue)
			continue
		}

		suggestion, ok := firstAutoFixable(issue.Suggestions)
		if !ok {
			// fix requested but nothing mechanical to apply
			result.RemainingIssues = append(result.RemainingIssues, issue)
			continue
		}

		reason := fmt.Sprintf("Auto-fix for %s: %s", issue.Code, issue.Message)
		for _, patch := range suggestion.Patches {
			if err := changelog.ValidatePatch(patch); err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"issue_code":  issue.Code,
					"document_id": patch.DocumentID,
				}).Warn("Dropping invalid patch")
				continue
			}
			applied = append(applied, patch)
			result.Changelog = append(result.Changelog, changelog.TrackChange(patch, reason))
		}
	}

	result.AppliedPatches = changelog.MergePatches(applied)
	result.UpdatedDocuments = updatedDocuments(result.AppliedPatches)

	e.logger.WithFields(logrus.Fields{
		"applied_patches":   len(result.AppliedPatches),
		"updated_documents": len(result.UpdatedDocuments),
		"remaining_issues":  len(result.RemainingIssues),
	}).Info("Completed auto-fix pass")

	return result, nil
}

// firstAutoFixable returns the first suggestion carrying patches that can be
// applied mechanically.
func firstAutoFixable(suggestions []domain.Suggestion) (domain.Suggestion, bool) {
	for _, s := range suggestions {
		if s.AutoFixable {
			return s, true
		}
	}
	return domain.Suggestion{}, false
}

// updatedDocuments lists the distinct documents touched by the merged
// patches, in first-encounter order.
func updatedDocuments(patches []domain.Patch) []domain.DocumentRef {
	seen := make(map[domain.DocumentRef]struct{}, len(patches))
	refs := []domain.DocumentRef{}
	for _, patch := range patches {
		ref := domain.DocumentRef{DocumentType: patch.DocumentType, DocumentID: patch.DocumentID}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

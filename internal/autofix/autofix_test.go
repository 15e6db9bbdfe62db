package autofix

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossdoc-check-mcp-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func driftIssue() domain.Issue {
	return domain.Issue{
		Code:     domain.CodePrimaryEndpointDrift,
		Severity: domain.SeverityError,
		Category: domain.CategoryProtocolSAP,
		Message:  "SAP primary endpoint has drifted",
		Suggestions: []domain.Suggestion{
			{
				ID:          "sug-1",
				Label:       "Overwrite the SAP wording",
				AutoFixable: true,
				Patches: []domain.Patch{
					{DocumentType: domain.DocTypeSAP, DocumentID: "sap-1", BlockID: "ep-1", Field: "name", OldValue: "old", NewValue: "Change in HbA1c at Week 24"},
					{DocumentType: domain.DocTypeSAP, DocumentID: "sap-1", BlockID: "ep-1", Field: "description", NewValue: "Absolute change from baseline"},
				},
			},
		},
	}
}

func TestApplyAutoFixes_SelectedIssueIsFixed(t *testing.T) {
	engine := NewEngine(testLogger())
	issues := []domain.Issue{driftIssue()}

	result, err := engine.ApplyAutoFixes(issues, &domain.CrossDocBundle{}, domain.AutoFixRequest{
		IssueCodes: []string{domain.CodePrimaryEndpointDrift},
	})

	require.NoError(t, err)
	assert.Len(t, result.AppliedPatches, 2)
	assert.Empty(t, result.RemainingIssues)

	require.Len(t, result.UpdatedDocuments, 1)
	assert.Equal(t, domain.DocTypeSAP, result.UpdatedDocuments[0].DocumentType)
	assert.Equal(t, "sap-1", result.UpdatedDocuments[0].DocumentID)

	require.Len(t, result.Changelog, 2)
	assert.Equal(t, "Auto-fix for PRIMARY_ENDPOINT_DRIFT: SAP primary endpoint has drifted", result.Changelog[0].Reason)
	assert.Equal(t, "name", result.Changelog[0].Field)
}

func TestApplyAutoFixes_UnselectedIssuePassesThrough(t *testing.T) {
	engine := NewEngine(testLogger())
	issues := []domain.Issue{driftIssue()}

	result, err := engine.ApplyAutoFixes(issues, &domain.CrossDocBundle{}, domain.AutoFixRequest{
		IssueCodes: []string{domain.CodeStatTestMismatch},
	})

	require.NoError(t, err)
	assert.Empty(t, result.AppliedPatches)
	require.Len(t, result.RemainingIssues, 1)
	assert.Equal(t, domain.CodePrimaryEndpointDrift, result.RemainingIssues[0].Code)
}

func TestApplyAutoFixes_SelectedButUnfixableRemains(t *testing.T) {
	engine := NewEngine(testLogger())
	issues := []domain.Issue{
		{
			Code:     domain.CodeSecondaryEndpointGap,
			Severity: domain.SeverityWarning,
			Message:  "no counterpart",
		},
	}

	result, err := engine.ApplyAutoFixes(issues, &domain.CrossDocBundle{}, domain.AutoFixRequest{
		IssueCodes: []string{domain.CodeSecondaryEndpointGap},
	})

	require.NoError(t, err)
	assert.Empty(t, result.AppliedPatches)
	require.Len(t, result.RemainingIssues, 1)
	assert.Empty(t, result.Changelog)
}

func TestApplyAutoFixes_FirstAutoFixableSuggestionWins(t *testing.T) {
	engine := NewEngine(testLogger())
	issue := domain.Issue{
		Code:    domain.CodeStatTestMismatch,
		Message: "wrong test",
		Suggestions: []domain.Suggestion{
			{ID: "sug-manual", Label: "Review manually", AutoFixable: false},
			{ID: "sug-a", AutoFixable: true, Patches: []domain.Patch{
				{DocumentType: domain.DocTypeSAP, DocumentID: "sap-1", Field: "test_name", NewValue: "ANCOVA"},
			}},
			{ID: "sug-b", AutoFixable: true, Patches: []domain.Patch{
				{DocumentType: domain.DocTypeSAP, DocumentID: "sap-1", Field: "test_name", NewValue: "Log-rank test"},
			}},
		},
	}

	result, err := engine.ApplyAutoFixes([]domain.Issue{issue}, &domain.CrossDocBundle{}, domain.AutoFixRequest{
		IssueCodes: []string{domain.CodeStatTestMismatch},
	})

	require.NoError(t, err)
	require.Len(t, result.AppliedPatches, 1)
	assert.Equal(t, "ANCOVA", result.AppliedPatches[0].NewValue)
}

func TestApplyAutoFixes_InvalidPatchDroppedWithoutAbort(t *testing.T) {
	engine := NewEngine(testLogger())
	issue := domain.Issue{
		Code:    domain.CodePrimaryEndpointDrift,
		Message: "drift",
		Suggestions: []domain.Suggestion{
			{ID: "sug-1", AutoFixable: true, Patches: []domain.Patch{
				{DocumentType: domain.DocTypeSAP, Field: "name", NewValue: "missing document id"},
				{DocumentType: domain.DocTypeSAP, DocumentID: "sap-1", Field: "name", NewValue: "valid"},
			}},
		},
	}

	result, err := engine.ApplyAutoFixes([]domain.Issue{issue}, &domain.CrossDocBundle{}, domain.AutoFixRequest{
		IssueCodes: []string{domain.CodePrimaryEndpointDrift},
	})

	require.NoError(t, err)
	require.Len(t, result.AppliedPatches, 1)
	assert.Equal(t, "valid", result.AppliedPatches[0].NewValue)
	assert.Len(t, result.Changelog, 1)
}

func TestApplyAutoFixes_PatchesMergeLastWins(t *testing.T) {
	engine := NewEngine(testLogger())
	issues := []domain.Issue{
		{
			Code:    domain.CodePrimaryEndpointDrift,
			Message: "first pass",
			Suggestions: []domain.Suggestion{
				{ID: "sug-1", AutoFixable: true, Patches: []domain.Patch{
					{DocumentType: domain.DocTypeSAP, DocumentID: "doc1", Field: "name", NewValue: "first"},
				}},
			},
		},
		{
			Code:    domain.CodePrimaryEndpointDrift,
			Message: "second pass",
			Suggestions: []domain.Suggestion{
				{ID: "sug-2", AutoFixable: true, Patches: []domain.Patch{
					{DocumentType: domain.DocTypeSAP, DocumentID: "doc1", Field: "name", NewValue: "second"},
				}},
			},
		},
	}

	result, err := engine.ApplyAutoFixes(issues, &domain.CrossDocBundle{}, domain.AutoFixRequest{
		IssueCodes: []string{domain.CodePrimaryEndpointDrift},
	})

	require.NoError(t, err)
	require.Len(t, result.AppliedPatches, 1)
	assert.Equal(t, "second", result.AppliedPatches[0].NewValue)
	// changelog keeps one entry per applied patch, pre-merge
	assert.Len(t, result.Changelog, 2)
}

func TestApplyAutoFixes_NilBundleIsProgrammerError(t *testing.T) {
	engine := NewEngine(testLogger())

	_, err := engine.ApplyAutoFixes(nil, nil, domain.AutoFixRequest{})

	assert.Error(t, err)
}

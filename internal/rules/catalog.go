package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/similarity"
)

// canonicalTests maps an endpoint's statistical data type to the
// conventional test for it.
var canonicalTests = map[domain.EndpointDataType]string{
	domain.DataTypeContinuous:  "ANCOVA",
	domain.DataTypeBinary:      "Chi-square test",
	domain.DataTypeTimeToEvent: "Log-rank test",
	domain.DataTypeOrdinal:     "Mann-Whitney U test",
	domain.DataTypeCount:       "Poisson regression",
}

// CanonicalTestForDataType returns the conventional statistical test for an
// endpoint data type.
func CanonicalTestForDataType(dt domain.EndpointDataType) (string, bool) {
	test, ok := canonicalTests[dt]
	return test, ok
}

// DefaultRules returns the default ordered rule catalog. Callers may append
// to or replace this set; the engine treats the registry as opaque.
func DefaultRules() []Rule {
	return []Rule{
		{
			Code:        domain.CodePrimaryEndpointDrift,
			Name:        "Primary endpoint drift between Protocol and SAP",
			Category:    domain.CategoryProtocolSAP,
			Description: "The SAP's primary endpoint wording has drifted from the Protocol's definition",
			Evaluate:    evaluatePrimaryEndpointDrift,
		},
		{
			Code:        domain.CodePrimaryEndpointMissingSAP,
			Name:        "Primary endpoint missing from SAP",
			Category:    domain.CategoryProtocolSAP,
			Description: "The Protocol defines a primary endpoint but the SAP declares none",
			Evaluate:    evaluatePrimaryEndpointMissingSAP,
		},
		{
			Code:        domain.CodeSecondaryEndpointGap,
			Name:        "Secondary endpoint coverage gap",
			Category:    domain.CategoryProtocolSAP,
			Description: "Protocol secondary endpoints with no SAP counterpart",
			Evaluate:    evaluateSecondaryEndpointGap,
		},
		{
			Code:        domain.CodeStatTestMismatch,
			Name:        "Statistical test inconsistent with endpoint data type",
			Category:    domain.CategoryProtocolSAP,
			Description: "A SAP statistical test does not match the convention for its endpoint's data type",
			Evaluate:    evaluateStatTestMismatch,
		},
		{
			Code:        domain.CodeDoseInconsistency,
			Name:        "Dose inconsistency between IB and Protocol",
			Category:    domain.CategoryIBProtocol,
			Description: "IB dose records that disagree with, or are absent from, the Protocol treatment arms",
			Evaluate:    evaluateDoseInconsistency,
		},
		{
			Code:        domain.CodePrimaryObjectiveDrift,
			Name:        "Primary objective drift between IB and Protocol",
			Category:    domain.CategoryIBProtocol,
			Description: "The paired primary objectives read differently across IB and Protocol",
			Evaluate:    evaluatePrimaryObjectiveDrift,
		},
		{
			Code:        domain.CodeObjectiveUnmatched,
			Name:        "Unmatched secondary or exploratory objective",
			Category:    domain.CategoryIBProtocol,
			Description: "Objectives present on one side of the IB/Protocol pair only",
			Evaluate:    evaluateObjectiveUnmatched,
		},
		{
			Code:        domain.CodeSampleSizeEndpointMissing,
			Name:        "Sample size driver endpoint unresolved",
			Category:    domain.CategoryGlobal,
			Description: "The SAP's sample-size-driving endpoint reference does not resolve",
			Evaluate:    evaluateSampleSizeEndpoint,
		},
		{
			Code:        domain.CodePopulationMismatch,
			Name:        "Analysis population mismatch between Protocol and SAP",
			Category:    domain.CategoryProtocolSAP,
			Description: "Protocol analysis populations with no SAP counterpart",
			Evaluate:    evaluatePopulationMismatch,
		},
		{
			Code:        domain.CodeCSREndpointUnreported,
			Name:        "Protocol endpoint unreported in CSR",
			Category:    domain.CategoryProtocolCSR,
			Description: "Protocol endpoints with no reported result in the CSR",
			Evaluate:    evaluateCSREndpointUnreported,
		},
	}
}

// evaluatePrimaryEndpointDrift fires when the primary endpoint pair between
// Protocol and SAP exists but failed the alignment threshold. The fix copies
// the Protocol wording into the SAP, treating the Protocol as the source of
// truth for endpoint definitions.
func evaluatePrimaryEndpointDrift(_ context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error) {
	if bundle.Protocol == nil || bundle.SAP == nil {
		return nil, nil
	}

	var issues []domain.Issue
	for _, link := range alignments.Endpoints {
		if link.Type != domain.ObjectivePrimary || link.ProtocolEndpointID == "" || link.SAPEndpointID == "" || link.Aligned {
			continue
		}

		protEP, okP := bundle.Protocol.EndpointByID(link.ProtocolEndpointID)
		sapEP, okS := bundle.SAP.EndpointByID(link.SAPEndpointID)
		if !okP || !okS {
			continue
		}

		issues = append(issues, domain.Issue{
			Code:     domain.CodePrimaryEndpointDrift,
			Severity: domain.SeverityError,
			Category: domain.CategoryProtocolSAP,
			Message:  fmt.Sprintf("Primary endpoint %q in the SAP has drifted from the Protocol definition %q", sapEP.Name, protEP.Name),
			Details:  fmt.Sprintf("similarity score %.2f below alignment threshold", link.SimilarityScore),
			Locations: []domain.Location{
				{DocumentType: domain.DocTypeProtocol, BlockID: protEP.ID, Field: "name"},
				{DocumentType: domain.DocTypeSAP, BlockID: sapEP.ID, Field: "name"},
			},
			Suggestions: []domain.Suggestion{
				{
					ID:          uuid.NewString(),
					Label:       "Overwrite the SAP endpoint wording with the Protocol definition",
					AutoFixable: true,
					Patches: []domain.Patch{
						{
							DocumentType: domain.DocTypeSAP,
							DocumentID:   bundle.SAP.DocumentID,
							BlockID:      sapEP.ID,
							Field:        "name",
							OldValue:     sapEP.Name,
							NewValue:     protEP.Name,
						},
						{
							DocumentType: domain.DocTypeSAP,
							DocumentID:   bundle.SAP.DocumentID,
							BlockID:      sapEP.ID,
							Field:        "description",
							OldValue:     sapEP.Description,
							NewValue:     protEP.Description,
						},
					},
				},
			},
		})
	}
	return issues, nil
}

func evaluatePrimaryEndpointMissingSAP(_ context.Context, bundle *domain.CrossDocBundle, _ *domain.Alignments) ([]domain.Issue, error) {
	if bundle.Protocol == nil || bundle.SAP == nil {
		return nil, nil
	}
	protPrimary := bundle.Protocol.EndpointsOfType(domain.ObjectivePrimary)
	if len(protPrimary) == 0 || len(bundle.SAP.PrimaryEndpoints) > 0 {
		return nil, nil
	}

	ep := protPrimary[0]
	return []domain.Issue{{
		Code:     domain.CodePrimaryEndpointMissingSAP,
		Severity: domain.SeverityCritical,
		Category: domain.CategoryProtocolSAP,
		Message:  fmt.Sprintf("The Protocol defines primary endpoint %q but the SAP declares no primary endpoint", ep.Name),
		Locations: []domain.Location{
			{DocumentType: domain.DocTypeSAP, Section: "primary_endpoints"},
		},
		Suggestions: []domain.Suggestion{
			{
				ID:          uuid.NewString(),
				Label:       "Add the Protocol primary endpoint to the SAP",
				AutoFixable: true,
				Patches: []domain.Patch{
					{
						DocumentType: domain.DocTypeSAP,
						DocumentID:   bundle.SAP.DocumentID,
						Field:        "primary_endpoints",
						NewValue:     ep.Name,
					},
				},
			},
		},
	}}, nil
}

func evaluateSecondaryEndpointGap(_ context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error) {
	if bundle.Protocol == nil || bundle.SAP == nil {
		return nil, nil
	}

	var issues []domain.Issue
	for _, link := range alignments.Endpoints {
		if link.Type != domain.ObjectiveSecondary || link.ProtocolEndpointID == "" || link.SAPEndpointID != "" {
			continue
		}
		ep, ok := bundle.Protocol.EndpointByID(link.ProtocolEndpointID)
		if !ok {
			continue
		}
		issues = append(issues, domain.Issue{
			Code:     domain.CodeSecondaryEndpointGap,
			Severity: domain.SeverityWarning,
			Category: domain.CategoryProtocolSAP,
			Message:  fmt.Sprintf("Protocol secondary endpoint %q has no counterpart in the SAP", ep.Name),
			Locations: []domain.Location{
				{DocumentType: domain.DocTypeProtocol, BlockID: ep.ID},
				{DocumentType: domain.DocTypeSAP, Section: "secondary_endpoints"},
			},
		})
	}
	return issues, nil
}

// evaluateStatTestMismatch checks each SAP statistical test against the
// convention for its endpoint's data type. The data type is taken from the
// aligned Protocol endpoint, falling back to the SAP endpoint's own tag.
func evaluateStatTestMismatch(_ context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error) {
	if bundle.SAP == nil {
		return nil, nil
	}

	dataTypeFor := func(sapEndpointID string) domain.EndpointDataType {
		if bundle.Protocol != nil {
			for _, link := range alignments.Endpoints {
				if link.SAPEndpointID == sapEndpointID && link.ProtocolEndpointID != "" && link.Aligned {
					if protEP, ok := bundle.Protocol.EndpointByID(link.ProtocolEndpointID); ok && protEP.DataType != "" {
						return protEP.DataType
					}
				}
			}
		}
		if sapEP, ok := bundle.SAP.EndpointByID(sapEndpointID); ok {
			return sapEP.DataType
		}
		return ""
	}

	var issues []domain.Issue
	for _, test := range bundle.SAP.StatisticalTests {
		dt := dataTypeFor(test.EndpointID)
		if dt == "" {
			continue
		}
		expected, ok := CanonicalTestForDataType(dt)
		if !ok || testNameMatches(test.TestName, expected) {
			continue
		}

		issues = append(issues, domain.Issue{
			Code:     domain.CodeStatTestMismatch,
			Severity: domain.SeverityError,
			Category: domain.CategoryProtocolSAP,
			Message:  fmt.Sprintf("Statistical test %q is unconventional for a %s endpoint (expected %q)", test.TestName, dt, expected),
			Locations: []domain.Location{
				{DocumentType: domain.DocTypeSAP, BlockID: test.ID, Field: "test_name"},
			},
			Suggestions: []domain.Suggestion{
				{
					ID:          uuid.NewString(),
					Label:       fmt.Sprintf("Replace with %s", expected),
					AutoFixable: true,
					Patches: []domain.Patch{
						{
							DocumentType: domain.DocTypeSAP,
							DocumentID:   bundle.SAP.DocumentID,
							BlockID:      test.ID,
							Field:        "test_name",
							OldValue:     test.TestName,
							NewValue:     expected,
						},
					},
				},
			},
		})
	}
	return issues, nil
}

// testNameMatches treats a test name as matching when the canonical name is
// contained in it, ignoring case ("stratified log-rank test" passes for
// "Log-rank test").
func testNameMatches(actual, canonical string) bool {
	return strings.Contains(strings.ToLower(actual), strings.ToLower(canonical))
}

// evaluateDoseInconsistency flags misaligned dose/arm pairs and IB doses
// absent from the Protocol. For an orphaned IB dose the fix proposes a new
// treatment arm seeded from the dose record.
func evaluateDoseInconsistency(_ context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error) {
	if bundle.IB == nil || bundle.Protocol == nil {
		return nil, nil
	}

	doseByID := make(map[string]domain.DoseRecord, len(bundle.IB.Doses))
	for _, d := range bundle.IB.Doses {
		doseByID[d.ID] = d
	}
	armByID := make(map[string]domain.TreatmentArm, len(bundle.Protocol.Arms))
	for _, a := range bundle.Protocol.Arms {
		armByID[a.ID] = a
	}

	var issues []domain.Issue
	for _, link := range alignments.Doses {
		switch {
		case link.IBDoseID != "" && link.ProtocolArmID != "" && !link.Aligned:
			dose := doseByID[link.IBDoseID]
			arm := armByID[link.ProtocolArmID]
			issues = append(issues, domain.Issue{
				Code:     domain.CodeDoseInconsistency,
				Severity: domain.SeverityError,
				Category: domain.CategoryIBProtocol,
				Message:  fmt.Sprintf("IB dose %q disagrees with Protocol arm %q (%s)", dose.Dose, arm.Name, arm.Dose),
				Details:  fmt.Sprintf("dose value score %.2f, overall score %.2f", link.DoseValueScore, link.SimilarityScore),
				Locations: []domain.Location{
					{DocumentType: domain.DocTypeIB, BlockID: dose.ID, Field: "dose"},
					{DocumentType: domain.DocTypeProtocol, BlockID: arm.ID, Field: "dose"},
				},
			})

		case link.IBDoseID != "" && link.ProtocolArmID == "":
			dose := doseByID[link.IBDoseID]
			issues = append(issues, domain.Issue{
				Code:     domain.CodeDoseInconsistency,
				Severity: domain.SeverityError,
				Category: domain.CategoryIBProtocol,
				Message:  fmt.Sprintf("IB dose %q has no corresponding Protocol treatment arm", dose.Dose),
				Locations: []domain.Location{
					{DocumentType: domain.DocTypeIB, BlockID: dose.ID, Field: "dose"},
					{DocumentType: domain.DocTypeProtocol, Section: "arms"},
				},
				Suggestions: []domain.Suggestion{
					{
						ID:          uuid.NewString(),
						Label:       fmt.Sprintf("Add a Protocol treatment arm for %s", dose.Dose),
						AutoFixable: true,
						Patches: []domain.Patch{
							{
								DocumentType: domain.DocTypeProtocol,
								DocumentID:   bundle.Protocol.DocumentID,
								Field:        "arms",
								NewValue:     describeProposedArm(dose),
							},
						},
					},
				},
			})
		}
	}
	return issues, nil
}

// describeProposedArm renders a treatment arm proposal from an IB dose record.
func describeProposedArm(dose domain.DoseRecord) string {
	parts := []string{dose.Dose}
	if dose.Route != "" {
		parts = append(parts, dose.Route)
	}
	if dose.Frequency != "" {
		parts = append(parts, dose.Frequency)
	}
	return strings.Join(parts, ", ")
}

func evaluatePrimaryObjectiveDrift(_ context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error) {
	if bundle.IB == nil || bundle.Protocol == nil {
		return nil, nil
	}

	var issues []domain.Issue
	for _, link := range alignments.Objectives {
		if link.Type != domain.ObjectivePrimary || link.IBObjectiveID == "" || link.ProtocolObjectiveID == "" || link.Aligned {
			continue
		}
		issues = append(issues, domain.Issue{
			Code:     domain.CodePrimaryObjectiveDrift,
			Severity: domain.SeverityWarning,
			Category: domain.CategoryIBProtocol,
			Message:  "The paired primary objectives read differently across IB and Protocol",
			Details:  fmt.Sprintf("similarity score %.2f", link.SimilarityScore),
			Locations: []domain.Location{
				{DocumentType: domain.DocTypeIB, BlockID: link.IBObjectiveID, Field: "text"},
				{DocumentType: domain.DocTypeProtocol, BlockID: link.ProtocolObjectiveID, Field: "text"},
			},
		})
	}
	return issues, nil
}

func evaluateObjectiveUnmatched(_ context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error) {
	if bundle.IB == nil || bundle.Protocol == nil {
		return nil, nil
	}

	var issues []domain.Issue
	for _, link := range alignments.Objectives {
		if link.Type == domain.ObjectivePrimary || link.Aligned {
			continue
		}
		if link.IBObjectiveID != "" && link.ProtocolObjectiveID != "" {
			continue
		}

		loc := domain.Location{DocumentType: domain.DocTypeIB, BlockID: link.IBObjectiveID, Field: "text"}
		side := "Protocol"
		if link.IBObjectiveID == "" {
			loc = domain.Location{DocumentType: domain.DocTypeProtocol, BlockID: link.ProtocolObjectiveID, Field: "text"}
			side = "IB"
		}
		issues = append(issues, domain.Issue{
			Code:      domain.CodeObjectiveUnmatched,
			Severity:  domain.SeverityInfo,
			Category:  domain.CategoryIBProtocol,
			Message:   fmt.Sprintf("%s objective has no counterpart in the %s", string(loc.DocumentType), side),
			Locations: []domain.Location{loc},
		})
	}
	return issues, nil
}

func evaluateSampleSizeEndpoint(_ context.Context, bundle *domain.CrossDocBundle, _ *domain.Alignments) ([]domain.Issue, error) {
	if bundle.SAP == nil {
		return nil, nil
	}

	if bundle.SAP.SampleSizeEndpointID == "" {
		if len(bundle.SAP.PrimaryEndpoints) == 0 {
			return nil, nil
		}
		return []domain.Issue{{
			Code:     domain.CodeSampleSizeEndpointMissing,
			Severity: domain.SeverityWarning,
			Category: domain.CategoryGlobal,
			Message:  "The SAP declares primary endpoints but no sample-size-driving endpoint",
			Locations: []domain.Location{
				{DocumentType: domain.DocTypeSAP, Section: "sample_size"},
			},
		}}, nil
	}

	if _, ok := bundle.SAP.EndpointByID(bundle.SAP.SampleSizeEndpointID); !ok {
		return []domain.Issue{{
			Code:     domain.CodeSampleSizeEndpointMissing,
			Severity: domain.SeverityError,
			Category: domain.CategoryGlobal,
			Message:  fmt.Sprintf("The SAP's sample-size endpoint reference %q does not resolve to any SAP endpoint", bundle.SAP.SampleSizeEndpointID),
			Locations: []domain.Location{
				{DocumentType: domain.DocTypeSAP, Section: "sample_size", Field: "sample_size_endpoint_id"},
			},
		}}, nil
	}
	return nil, nil
}

// evaluatePopulationMismatch compares analysis populations directly, since
// population links are reserved but not yet populated by the orchestrator.
func evaluatePopulationMismatch(_ context.Context, bundle *domain.CrossDocBundle, _ *domain.Alignments) ([]domain.Issue, error) {
	if bundle.Protocol == nil || bundle.SAP == nil {
		return nil, nil
	}
	if len(bundle.Protocol.Populations) == 0 || len(bundle.SAP.Populations) == 0 {
		return nil, nil
	}

	var issues []domain.Issue
	for _, protPop := range bundle.Protocol.Populations {
		matched := false
		for _, sapPop := range bundle.SAP.Populations {
			if strings.EqualFold(protPop.Abbreviation, sapPop.Abbreviation) && protPop.Abbreviation != "" {
				matched = true
				break
			}
			if similarity.CombinedSimilarity(protPop.Name, sapPop.Name) >= 0.6 {
				matched = true
				break
			}
		}
		if !matched {
			issues = append(issues, domain.Issue{
				Code:     domain.CodePopulationMismatch,
				Severity: domain.SeverityWarning,
				Category: domain.CategoryProtocolSAP,
				Message:  fmt.Sprintf("Protocol analysis population %q has no counterpart in the SAP", protPop.Name),
				Locations: []domain.Location{
					{DocumentType: domain.DocTypeProtocol, BlockID: protPop.ID},
					{DocumentType: domain.DocTypeSAP, Section: "populations"},
				},
			})
		}
	}
	return issues, nil
}

func evaluateCSREndpointUnreported(_ context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error) {
	if bundle.Protocol == nil || bundle.CSR == nil {
		return nil, nil
	}

	var issues []domain.Issue
	for _, link := range alignments.Endpoints {
		if link.ProtocolEndpointID == "" || link.CSREndpointID != "" {
			continue
		}
		ep, ok := bundle.Protocol.EndpointByID(link.ProtocolEndpointID)
		if !ok {
			continue
		}
		severity := domain.SeverityWarning
		if link.Type == domain.ObjectivePrimary {
			severity = domain.SeverityError
		}
		issues = append(issues, domain.Issue{
			Code:     domain.CodeCSREndpointUnreported,
			Severity: severity,
			Category: domain.CategoryProtocolCSR,
			Message:  fmt.Sprintf("Protocol %s endpoint %q has no reported result in the CSR", link.Type, ep.Name),
			Locations: []domain.Location{
				{DocumentType: domain.DocTypeProtocol, BlockID: ep.ID},
				{DocumentType: domain.DocTypeCSR, Section: "endpoints"},
			},
		})
	}
	return issues, nil
}

package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossdoc-check-mcp-server/internal/domain"
)

// consistentBundle is an IB/Protocol/SAP trio that every default rule
// should accept without complaint.
func consistentBundle() *domain.CrossDocBundle {
	return &domain.CrossDocBundle{
		IB: &domain.IBDocument{
			DocumentID: "ib-1",
			Objectives: []domain.Objective{
				{ID: "ib-obj-1", Type: domain.ObjectivePrimary, Text: "Evaluate the efficacy of Drug X on HbA1c"},
			},
			Doses: []domain.DoseRecord{
				{ID: "ib-dose-1", Dose: "10 mg", Route: "oral", Frequency: "once daily"},
			},
		},
		Protocol: &domain.ProtocolDocument{
			DocumentID: "prot-1",
			Objectives: []domain.Objective{
				{ID: "prot-obj-1", Type: domain.ObjectivePrimary, Text: "Evaluate the efficacy of Drug X on HbA1c reduction"},
			},
			Endpoints: []domain.Endpoint{
				{
					ID:          "prot-ep-1",
					Type:        domain.ObjectivePrimary,
					Name:        "Change in HbA1c at Week 24",
					Description: "Absolute change from baseline in HbA1c at Week 24",
					DataType:    domain.DataTypeContinuous,
				},
			},
			Arms: []domain.TreatmentArm{
				{ID: "arm-1", Name: "Drug X 10 mg", Dose: "10mg", Route: "oral", Frequency: "once daily"},
			},
			Populations: []domain.AnalysisPopulation{
				{ID: "prot-pop-1", Name: "Intention to Treat", Abbreviation: "ITT"},
			},
		},
		SAP: &domain.SAPDocument{
			DocumentID: "sap-1",
			PrimaryEndpoints: []domain.Endpoint{
				{
					ID:          "sap-ep-1",
					Type:        domain.ObjectivePrimary,
					Name:        "Change in HbA1c from baseline",
					Description: "Absolute change from baseline in HbA1c at Week 24",
					DataType:    domain.DataTypeContinuous,
				},
			},
			StatisticalTests: []domain.StatisticalTest{
				{ID: "sap-test-1", EndpointID: "sap-ep-1", TestName: "ANCOVA"},
			},
			SampleSizeEndpointID: "sap-ep-1",
			Populations: []domain.AnalysisPopulation{
				{ID: "sap-pop-1", Name: "Intent-to-Treat Population", Abbreviation: "ITT"},
			},
		},
	}
}

func issuesWithCode(result *domain.ValidationResult, code string) []domain.Issue {
	var out []domain.Issue
	for _, issue := range result.Issues {
		if issue.Code == code {
			out = append(out, issue)
		}
	}
	return out
}

func TestDefaultRules_ConsistentBundleIsClean(t *testing.T) {
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), consistentBundle())

	assert.Empty(t, result.Issues, "expected no issues, got %+v", result.Issues)
}

func TestPrimaryEndpointDrift(t *testing.T) {
	bundle := consistentBundle()
	bundle.SAP.PrimaryEndpoints[0].Name = "Overall survival at 12 months"
	bundle.SAP.PrimaryEndpoints[0].Description = "Time from randomization to death from any cause"
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	drift := issuesWithCode(result, domain.CodePrimaryEndpointDrift)
	require.Len(t, drift, 1)
	issue := drift[0]
	assert.Equal(t, domain.SeverityError, issue.Severity)
	assert.Equal(t, domain.CategoryProtocolSAP, issue.Category)

	require.Len(t, issue.Suggestions, 1)
	suggestion := issue.Suggestions[0]
	assert.True(t, suggestion.AutoFixable)
	assert.NotEmpty(t, suggestion.ID)
	require.Len(t, suggestion.Patches, 2)
	assert.Equal(t, "Change in HbA1c at Week 24", suggestion.Patches[0].NewValue)
	assert.Equal(t, "sap-1", suggestion.Patches[0].DocumentID)
	assert.Equal(t, domain.DocTypeSAP, suggestion.Patches[0].DocumentType)
	assert.Equal(t, "Absolute change from baseline in HbA1c at Week 24", suggestion.Patches[1].NewValue)
}

func TestPrimaryEndpointMissingFromSAP(t *testing.T) {
	bundle := consistentBundle()
	bundle.SAP.PrimaryEndpoints = nil
	bundle.SAP.StatisticalTests = nil
	bundle.SAP.SampleSizeEndpointID = ""
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	missing := issuesWithCode(result, domain.CodePrimaryEndpointMissingSAP)
	require.Len(t, missing, 1)
	assert.Equal(t, domain.SeverityCritical, missing[0].Severity)
	require.Len(t, missing[0].Suggestions, 1)
	assert.True(t, missing[0].Suggestions[0].AutoFixable)
	assert.Equal(t, "Change in HbA1c at Week 24", missing[0].Suggestions[0].Patches[0].NewValue)
}

func TestSecondaryEndpointGap(t *testing.T) {
	bundle := consistentBundle()
	bundle.Protocol.Endpoints = append(bundle.Protocol.Endpoints, domain.Endpoint{
		ID:       "prot-ep-2",
		Type:     domain.ObjectiveSecondary,
		Name:     "Change in body weight at Week 24",
		DataType: domain.DataTypeContinuous,
	})
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	gaps := issuesWithCode(result, domain.CodeSecondaryEndpointGap)
	require.Len(t, gaps, 1)
	assert.Equal(t, domain.SeverityWarning, gaps[0].Severity)
	assert.Contains(t, gaps[0].Message, "Change in body weight at Week 24")
}

func TestStatTestMismatch(t *testing.T) {
	bundle := &domain.CrossDocBundle{
		SAP: &domain.SAPDocument{
			DocumentID: "sap-1",
			PrimaryEndpoints: []domain.Endpoint{
				{ID: "sap-ep-1", Type: domain.ObjectivePrimary, Name: "Overall survival", DataType: domain.DataTypeTimeToEvent},
			},
			StatisticalTests: []domain.StatisticalTest{
				{ID: "sap-test-1", EndpointID: "sap-ep-1", TestName: "t-test"},
			},
			SampleSizeEndpointID: "sap-ep-1",
		},
	}
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	mismatches := issuesWithCode(result, domain.CodeStatTestMismatch)
	require.Len(t, mismatches, 1)
	issue := mismatches[0]
	assert.Equal(t, domain.SeverityError, issue.Severity)
	require.Len(t, issue.Suggestions, 1)
	require.Len(t, issue.Suggestions[0].Patches, 1)
	assert.Equal(t, "Log-rank test", issue.Suggestions[0].Patches[0].NewValue)
	assert.Equal(t, "t-test", issue.Suggestions[0].Patches[0].OldValue)
}

func TestStatTestMatchIsCaseAndQualifierTolerant(t *testing.T) {
	bundle := consistentBundle()
	bundle.SAP.PrimaryEndpoints[0].DataType = domain.DataTypeTimeToEvent
	bundle.Protocol.Endpoints[0].DataType = domain.DataTypeTimeToEvent
	bundle.SAP.StatisticalTests[0].TestName = "Stratified log-rank test"
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	assert.Empty(t, issuesWithCode(result, domain.CodeStatTestMismatch))
}

func TestDoseInconsistency_OrphanedIBDoseProposesArm(t *testing.T) {
	bundle := &domain.CrossDocBundle{
		IB: &domain.IBDocument{
			DocumentID: "ib-1",
			Doses: []domain.DoseRecord{
				{ID: "ib-dose-1", Dose: "200 mg", Route: "intravenous", Frequency: "weekly"},
			},
		},
		Protocol: &domain.ProtocolDocument{
			DocumentID: "prot-1",
			Arms: []domain.TreatmentArm{
				{ID: "arm-1", Name: "Low dose", Dose: "10mg", Route: "oral", Frequency: "once daily"},
			},
		},
	}
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	doseIssues := issuesWithCode(result, domain.CodeDoseInconsistency)
	require.Len(t, doseIssues, 1)
	issue := doseIssues[0]
	assert.Contains(t, issue.Message, "no corresponding Protocol treatment arm")
	require.Len(t, issue.Suggestions, 1)
	assert.True(t, issue.Suggestions[0].AutoFixable)
	assert.Equal(t, "200 mg, intravenous, weekly", issue.Suggestions[0].Patches[0].NewValue)
	assert.Equal(t, domain.DocTypeProtocol, issue.Suggestions[0].Patches[0].DocumentType)
}

func TestDoseInconsistency_MisalignedPair(t *testing.T) {
	bundle := &domain.CrossDocBundle{
		IB: &domain.IBDocument{
			DocumentID: "ib-1",
			Doses: []domain.DoseRecord{
				{ID: "ib-dose-1", Dose: "500 mg", Route: "oral"},
			},
		},
		Protocol: &domain.ProtocolDocument{
			DocumentID: "prot-1",
			Arms: []domain.TreatmentArm{
				{ID: "arm-1", Name: "Drug X low dose", Dose: "5 mg", Route: "oral", Frequency: "once daily"},
			},
		},
	}
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	doseIssues := issuesWithCode(result, domain.CodeDoseInconsistency)
	require.Len(t, doseIssues, 1)
	assert.Contains(t, doseIssues[0].Message, "disagrees with Protocol arm")
	assert.Contains(t, doseIssues[0].Message, "Drug X low dose")
	assert.Empty(t, doseIssues[0].Suggestions)
}

func TestPrimaryObjectiveDrift(t *testing.T) {
	bundle := consistentBundle()
	bundle.Protocol.Objectives[0].Text = "Assess the pharmacokinetic profile in healthy volunteers"
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	drift := issuesWithCode(result, domain.CodePrimaryObjectiveDrift)
	require.Len(t, drift, 1)
	assert.Equal(t, domain.SeverityWarning, drift[0].Severity)
	assert.Equal(t, domain.CategoryIBProtocol, drift[0].Category)
}

func TestObjectiveUnmatched(t *testing.T) {
	bundle := consistentBundle()
	bundle.IB.Objectives = append(bundle.IB.Objectives, domain.Objective{
		ID:   "ib-obj-2",
		Type: domain.ObjectiveSecondary,
		Text: "Characterize the immunogenicity profile of Drug X",
	})
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	unmatched := issuesWithCode(result, domain.CodeObjectiveUnmatched)
	require.Len(t, unmatched, 1)
	assert.Equal(t, domain.SeverityInfo, unmatched[0].Severity)
	require.Len(t, unmatched[0].Locations, 1)
	assert.Equal(t, domain.DocTypeIB, unmatched[0].Locations[0].DocumentType)
	assert.Equal(t, "ib-obj-2", unmatched[0].Locations[0].BlockID)
}

func TestSampleSizeEndpoint(t *testing.T) {
	t.Run("undeclared", func(t *testing.T) {
		bundle := consistentBundle()
		bundle.SAP.SampleSizeEndpointID = ""
		engine := NewDefaultEngine(testLogger())

		result := engine.Run(context.Background(), bundle)

		issues := issuesWithCode(result, domain.CodeSampleSizeEndpointMissing)
		require.Len(t, issues, 1)
		assert.Equal(t, domain.SeverityWarning, issues[0].Severity)
	})

	t.Run("dangling reference", func(t *testing.T) {
		bundle := consistentBundle()
		bundle.SAP.SampleSizeEndpointID = "sap-ep-404"
		engine := NewDefaultEngine(testLogger())

		result := engine.Run(context.Background(), bundle)

		issues := issuesWithCode(result, domain.CodeSampleSizeEndpointMissing)
		require.Len(t, issues, 1)
		assert.Equal(t, domain.SeverityError, issues[0].Severity)
		assert.Contains(t, issues[0].Message, "sap-ep-404")
	})
}

func TestPopulationMismatch(t *testing.T) {
	bundle := consistentBundle()
	bundle.Protocol.Populations = append(bundle.Protocol.Populations, domain.AnalysisPopulation{
		ID: "prot-pop-2", Name: "Per Protocol Set", Abbreviation: "PPS",
	})
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	mismatches := issuesWithCode(result, domain.CodePopulationMismatch)
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0].Message, "Per Protocol Set")
}

func TestCSREndpointUnreported(t *testing.T) {
	bundle := consistentBundle()
	bundle.Protocol.Endpoints = append(bundle.Protocol.Endpoints, domain.Endpoint{
		ID:   "prot-ep-2",
		Type: domain.ObjectiveSecondary,
		Name: "Change in body weight at Week 24",
	})
	bundle.SAP.SecondaryEndpoints = []domain.Endpoint{
		{ID: "sap-ep-2", Type: domain.ObjectiveSecondary, Name: "Change in body weight at Week 24"},
	}
	bundle.CSR = &domain.CSRDocument{
		DocumentID: "csr-1",
		PrimaryEndpoints: []domain.ReportedEndpoint{
			{ID: "csr-ep-1", Name: "Change in HbA1c at Week 24", Result: "-1.2% vs placebo"},
		},
	}
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	unreported := issuesWithCode(result, domain.CodeCSREndpointUnreported)
	require.Len(t, unreported, 1)
	assert.Equal(t, domain.SeverityWarning, unreported[0].Severity)
	assert.Contains(t, unreported[0].Message, "Change in body weight at Week 24")
}

func TestCSRExploratoryEndpointUnreported(t *testing.T) {
	bundle := consistentBundle()
	bundle.Protocol.Endpoints = append(bundle.Protocol.Endpoints, domain.Endpoint{
		ID:   "prot-ep-3",
		Type: domain.ObjectiveExploratory,
		Name: "Change in fasting plasma glucose",
	})
	bundle.CSR = &domain.CSRDocument{
		DocumentID: "csr-1",
		PrimaryEndpoints: []domain.ReportedEndpoint{
			{ID: "csr-ep-1", Name: "Change in HbA1c at Week 24", Result: "-1.2% vs placebo"},
		},
	}
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	unreported := issuesWithCode(result, domain.CodeCSREndpointUnreported)
	require.Len(t, unreported, 1)
	assert.Equal(t, domain.SeverityWarning, unreported[0].Severity)
	assert.Contains(t, unreported[0].Message, "Change in fasting plasma glucose")
}

func TestCSRPrimaryEndpointUnreportedIsError(t *testing.T) {
	bundle := consistentBundle()
	bundle.CSR = &domain.CSRDocument{DocumentID: "csr-1"}
	engine := NewDefaultEngine(testLogger())

	result := engine.Run(context.Background(), bundle)

	unreported := issuesWithCode(result, domain.CodeCSREndpointUnreported)
	require.Len(t, unreported, 1)
	assert.Equal(t, domain.SeverityError, unreported[0].Severity)
}

func TestCanonicalTestForDataType(t *testing.T) {
	cases := map[domain.EndpointDataType]string{
		domain.DataTypeContinuous:  "ANCOVA",
		domain.DataTypeBinary:      "Chi-square test",
		domain.DataTypeTimeToEvent: "Log-rank test",
		domain.DataTypeOrdinal:     "Mann-Whitney U test",
		domain.DataTypeCount:       "Poisson regression",
	}
	for dt, want := range cases {
		got, ok := CanonicalTestForDataType(dt)
		require.True(t, ok, "no canonical test for %s", dt)
		assert.Equal(t, want, got)
	}

	_, ok := CanonicalTestForDataType("unknown")
	assert.False(t, ok)
}

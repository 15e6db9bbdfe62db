package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectivesOfType(t *testing.T) {
	objectives := []Objective{
		{ID: "o1", Type: ObjectivePrimary, Text: "Evaluate efficacy"},
		{ID: "o2", Type: ObjectiveSecondary, Text: "Evaluate safety"},
		{ID: "o3", Type: ObjectivePrimary, Text: "Evaluate tolerability"},
	}

	primary := ObjectivesOfType(objectives, ObjectivePrimary)
	assert.Len(t, primary, 2)
	assert.Equal(t, "o1", primary[0].ID, "order must follow the source list")
	assert.Equal(t, "o3", primary[1].ID)

	assert.Empty(t, ObjectivesOfType(objectives, ObjectiveExploratory))
}

func TestSAPDocument_AllEndpoints(t *testing.T) {
	sap := &SAPDocument{
		DocumentID:         "sap-1",
		PrimaryEndpoints:   []Endpoint{{ID: "e1", Type: ObjectivePrimary, Name: "HbA1c"}},
		SecondaryEndpoints: []Endpoint{{ID: "e2", Type: ObjectiveSecondary, Name: "Weight"}},
	}

	all := sap.AllEndpoints()
	assert.Len(t, all, 2)

	ep, ok := sap.EndpointByID("e2")
	assert.True(t, ok)
	assert.Equal(t, "Weight", ep.Name)

	_, ok = sap.EndpointByID("missing")
	assert.False(t, ok)
}

func TestProtocolDocument_EndpointsOfType(t *testing.T) {
	protocol := &ProtocolDocument{
		DocumentID: "prot-1",
		Endpoints: []Endpoint{
			{ID: "p1", Type: ObjectivePrimary, Name: "Change in HbA1c at Week 24"},
			{ID: "p2", Type: ObjectiveSecondary, Name: "Change in body weight"},
		},
	}

	primary := protocol.EndpointsOfType(ObjectivePrimary)
	assert.Len(t, primary, 1)
	assert.Equal(t, "p1", primary[0].ID)

	ep, ok := protocol.EndpointByID("p2")
	assert.True(t, ok)
	assert.Equal(t, ObjectiveSecondary, ep.Type)
}

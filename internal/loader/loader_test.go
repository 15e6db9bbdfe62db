package loader

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossdoc-check-mcp-server/internal/domain"
)

func testLoader() *Loader {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewLoader(logger)
}

func TestLoadBundle(t *testing.T) {
	payload := []byte(`{
		"protocol": {
			"document_id": "prot-1",
			"endpoints": [
				{"id": "ep-1", "type": "primary", "name": "Change in HbA1c at Week 24", "data_type": "continuous"}
			],
			"arms": [
				{"id": "arm-1", "name": "Drug X 10 mg", "dose": "10mg", "route": "oral"}
			]
		},
		"sap": {
			"document_id": "sap-1",
			"primary_endpoints": [
				{"id": "sap-ep-1", "type": "primary", "name": "Change in HbA1c from baseline"}
			]
		}
	}`)

	bundle, err := testLoader().LoadBundle(payload)

	require.NoError(t, err)
	require.NotNil(t, bundle.Protocol)
	require.NotNil(t, bundle.SAP)
	assert.Nil(t, bundle.IB)
	assert.Equal(t, "prot-1", bundle.Protocol.DocumentID)
	require.Len(t, bundle.Protocol.Endpoints, 1)
	assert.Equal(t, domain.DataTypeContinuous, bundle.Protocol.Endpoints[0].DataType)
}

func TestLoadBundle_MalformedJSON(t *testing.T) {
	_, err := testLoader().LoadBundle([]byte(`{"protocol": `))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding bundle")
}

func TestLoadBundle_EmptyBundle(t *testing.T) {
	_, err := testLoader().LoadBundle([]byte(`{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one document")
}

func TestValidateBundle_DuplicateEntityID(t *testing.T) {
	bundle := &domain.CrossDocBundle{
		Protocol: &domain.ProtocolDocument{
			DocumentID: "prot-1",
			Endpoints: []domain.Endpoint{
				{ID: "ep-1", Type: domain.ObjectivePrimary, Name: "A"},
				{ID: "ep-1", Type: domain.ObjectiveSecondary, Name: "B"},
			},
		},
	}

	err := testLoader().ValidateBundle(bundle)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate entity id "ep-1"`)
}

func TestValidateBundle_DuplicateAcrossEntityKinds(t *testing.T) {
	bundle := &domain.CrossDocBundle{
		IB: &domain.IBDocument{
			DocumentID: "ib-1",
			Objectives: []domain.Objective{{ID: "x", Type: domain.ObjectivePrimary, Text: "obj"}},
			Doses:      []domain.DoseRecord{{ID: "x", Dose: "10 mg"}},
		},
	}

	err := testLoader().ValidateBundle(bundle)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "IB")
}

func TestValidateBundle_EmptyEntityID(t *testing.T) {
	bundle := &domain.CrossDocBundle{
		SAP: &domain.SAPDocument{
			DocumentID:       "sap-1",
			PrimaryEndpoints: []domain.Endpoint{{Type: domain.ObjectivePrimary, Name: "unnamed"}},
		},
	}

	err := testLoader().ValidateBundle(bundle)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}

func TestValidateBundle_Nil(t *testing.T) {
	err := testLoader().ValidateBundle(nil)

	assert.Error(t, err)
}

func TestValidateBundle_PartialBundleIsValid(t *testing.T) {
	bundle := &domain.CrossDocBundle{
		ICF: &domain.ICFDocument{DocumentID: "icf-1"},
	}

	assert.NoError(t, testLoader().ValidateBundle(bundle))
}

package domain

// Alignment links are ephemeral analysis artifacts: they reference entity ids
// across up to three documents, are recomputed on demand, and are never
// persisted back into the documents they describe. Every source-side entity
// that fails to match still produces exactly one orphan link (Aligned=false,
// SimilarityScore=0), so no entity is silently dropped.

// ObjectiveLink pairs an IB objective with its Protocol counterpart.
type ObjectiveLink struct {
	Type                ObjectiveType `json:"type"`
	IBObjectiveID       string        `json:"ib_objective_id,omitempty"`
	ProtocolObjectiveID string        `json:"protocol_objective_id,omitempty"`
	SimilarityScore     float64       `json:"similarity_score"`
	Aligned             bool          `json:"aligned"`
}

// EndpointLink ties a Protocol endpoint to its SAP and/or CSR counterparts.
// Protocol-SAP and Protocol-CSR matches for the same Protocol endpoint are
// merged into a single link carrying both counterpart ids when present.
type EndpointLink struct {
	Type               ObjectiveType `json:"type"`
	ProtocolEndpointID string        `json:"protocol_endpoint_id,omitempty"`
	SAPEndpointID      string        `json:"sap_endpoint_id,omitempty"`
	CSREndpointID      string        `json:"csr_endpoint_id,omitempty"`
	SimilarityScore    float64       `json:"similarity_score"`
	Aligned            bool          `json:"aligned"`
}

// DoseLink pairs an IB dose record with a Protocol treatment arm.
type DoseLink struct {
	IBDoseID        string  `json:"ib_dose_id,omitempty"`
	ProtocolArmID   string  `json:"protocol_arm_id,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	DoseValueScore  float64 `json:"dose_value_score"`
	Aligned         bool    `json:"aligned"`
}

// PopulationLink pairs analysis populations between Protocol and SAP.
// Reserved for future rule categories; currently always empty.
type PopulationLink struct {
	ProtocolPopulationID string  `json:"protocol_population_id,omitempty"`
	SAPPopulationID      string  `json:"sap_population_id,omitempty"`
	SimilarityScore      float64 `json:"similarity_score"`
	Aligned              bool    `json:"aligned"`
}

// VisitLink pairs Protocol visits with ICF visit-burden statements.
// Reserved for future rule categories; currently always empty.
type VisitLink struct {
	ProtocolVisitID string  `json:"protocol_visit_id,omitempty"`
	ICFReference    string  `json:"icf_reference,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	Aligned         bool    `json:"aligned"`
}

// Alignments is the unified output of the alignment orchestrator for one bundle.
type Alignments struct {
	Objectives  []ObjectiveLink  `json:"objectives"`
	Endpoints   []EndpointLink   `json:"endpoints"`
	Doses       []DoseLink       `json:"doses"`
	Populations []PopulationLink `json:"populations"`
	Visits      []VisitLink      `json:"visits"`
}

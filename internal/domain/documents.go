// Package domain defines the normalized document model shared by the
// alignment, rule, and auto-fix components. Entities are value objects:
// they are owned by the document that carries them and are never mutated
// after construction. External loaders populate these shapes; the engine
// never parses raw document text.
package domain

// DocumentType identifies one of the five regulatory document variants.
type DocumentType string

const (
	DocTypeIB       DocumentType = "IB"
	DocTypeProtocol DocumentType = "PROTOCOL"
	DocTypeICF      DocumentType = "ICF"
	DocTypeSAP      DocumentType = "SAP"
	DocTypeCSR      DocumentType = "CSR"
)

// ObjectiveType classifies objectives and endpoints by their role in the study.
type ObjectiveType string

const (
	ObjectivePrimary     ObjectiveType = "primary"
	ObjectiveSecondary   ObjectiveType = "secondary"
	ObjectiveExploratory ObjectiveType = "exploratory"
)

// EndpointDataType is the statistical data type of an endpoint measurement.
type EndpointDataType string

const (
	DataTypeContinuous  EndpointDataType = "continuous"
	DataTypeBinary      EndpointDataType = "binary"
	DataTypeTimeToEvent EndpointDataType = "time_to_event"
	DataTypeOrdinal     EndpointDataType = "ordinal"
	DataTypeCount       EndpointDataType = "count"
)

// Objective is a study objective stated in the IB or Protocol.
type Objective struct {
	ID   string        `json:"id"`
	Type ObjectiveType `json:"type"`
	Text string        `json:"text"`
}

// Endpoint is a measured outcome defined in the Protocol or SAP.
type Endpoint struct {
	ID          string           `json:"id"`
	Type        ObjectiveType    `json:"type"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	DataType    EndpointDataType `json:"data_type,omitempty"`
}

// DoseRecord is a dosing statement from the Investigator's Brochure.
type DoseRecord struct {
	ID        string `json:"id"`
	Dose      string `json:"dose"`
	Route     string `json:"route,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// TreatmentArm is one study group defined in the Protocol.
type TreatmentArm struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Dose        string `json:"dose,omitempty"`
	Route       string `json:"route,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
	Description string `json:"description,omitempty"`
}

// Visit is one scheduled visit in the Protocol's visit schedule.
type Visit struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Timing     string `json:"timing,omitempty"`
	Procedures string `json:"procedures,omitempty"`
}

// AnalysisPopulation is an analysis set defined in the Protocol or SAP.
type AnalysisPopulation struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
	Description  string `json:"description,omitempty"`
}

// StatisticalTest links a SAP endpoint to the statistical method planned for it.
type StatisticalTest struct {
	ID         string `json:"id"`
	EndpointID string `json:"endpoint_id"`
	TestName   string `json:"test_name"`
}

// ReportedEndpoint is an endpoint result as reported in the CSR. CSR entities
// model reported results more loosely than Protocol/SAP definitions.
type ReportedEndpoint struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
}

// IBDocument is the normalized Investigator's Brochure.
type IBDocument struct {
	DocumentID        string       `json:"document_id"`
	Version           string       `json:"version,omitempty"`
	Objectives        []Objective  `json:"objectives,omitempty"`
	MechanismOfAction string       `json:"mechanism_of_action,omitempty"`
	TargetPopulation  string       `json:"target_population,omitempty"`
	RiskProfile       string       `json:"risk_profile,omitempty"`
	Doses             []DoseRecord `json:"doses,omitempty"`
}

// ProtocolDocument is the normalized clinical trial Protocol.
type ProtocolDocument struct {
	DocumentID        string               `json:"document_id"`
	Version           string               `json:"version,omitempty"`
	Objectives        []Objective          `json:"objectives,omitempty"`
	Endpoints         []Endpoint           `json:"endpoints,omitempty"`
	Arms              []TreatmentArm       `json:"arms,omitempty"`
	Visits            []Visit              `json:"visits,omitempty"`
	InclusionCriteria []string             `json:"inclusion_criteria,omitempty"`
	ExclusionCriteria []string             `json:"exclusion_criteria,omitempty"`
	Populations       []AnalysisPopulation `json:"populations,omitempty"`
}

// ICFDocument is the normalized Informed Consent Form.
type ICFDocument struct {
	DocumentID            string   `json:"document_id"`
	Version               string   `json:"version,omitempty"`
	Procedures            []string `json:"procedures,omitempty"`
	VisitBurden           string   `json:"visit_burden,omitempty"`
	Risks                 []string `json:"risks,omitempty"`
	Benefits              []string `json:"benefits,omitempty"`
	TreatmentDescriptions []string `json:"treatment_descriptions,omitempty"`
}

// SAPDocument is the normalized Statistical Analysis Plan.
type SAPDocument struct {
	DocumentID           string               `json:"document_id"`
	Version              string               `json:"version,omitempty"`
	PrimaryEndpoints     []Endpoint           `json:"primary_endpoints,omitempty"`
	SecondaryEndpoints   []Endpoint           `json:"secondary_endpoints,omitempty"`
	StatisticalTests     []StatisticalTest    `json:"statistical_tests,omitempty"`
	SampleSizeEndpointID string               `json:"sample_size_endpoint_id,omitempty"`
	Populations          []AnalysisPopulation `json:"populations,omitempty"`
	MissingDataStrategy  string               `json:"missing_data_strategy,omitempty"`
	MultiplicityStrategy string               `json:"multiplicity_strategy,omitempty"`
}

// CSRDocument is the normalized Clinical Study Report.
type CSRDocument struct {
	DocumentID         string             `json:"document_id"`
	Version            string             `json:"version,omitempty"`
	MethodsUsed        []string           `json:"methods_used,omitempty"`
	AnalysisSets       []string           `json:"analysis_sets,omitempty"`
	PrimaryEndpoints   []ReportedEndpoint `json:"primary_endpoints,omitempty"`
	SecondaryEndpoints []ReportedEndpoint `json:"secondary_endpoints,omitempty"`
	Deviations         []string           `json:"deviations,omitempty"`
}

// CrossDocBundle aggregates zero-or-one of each document variant for a single
// validation or fix invocation. Partial bundles are valid: absent documents
// simply yield no alignments or issues for the pairings that need them.
type CrossDocBundle struct {
	IB       *IBDocument       `json:"ib,omitempty"`
	Protocol *ProtocolDocument `json:"protocol,omitempty"`
	ICF      *ICFDocument      `json:"icf,omitempty"`
	SAP      *SAPDocument      `json:"sap,omitempty"`
	CSR      *CSRDocument      `json:"csr,omitempty"`
}

// AllEndpoints returns the SAP's endpoints across both type groups.
func (d *SAPDocument) AllEndpoints() []Endpoint {
	out := make([]Endpoint, 0, len(d.PrimaryEndpoints)+len(d.SecondaryEndpoints))
	out = append(out, d.PrimaryEndpoints...)
	out = append(out, d.SecondaryEndpoints...)
	return out
}

// EndpointByID looks up a SAP endpoint by its identifier.
func (d *SAPDocument) EndpointByID(id string) (Endpoint, bool) {
	for _, ep := range d.AllEndpoints() {
		if ep.ID == id {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// EndpointByID looks up a Protocol endpoint by its identifier.
func (d *ProtocolDocument) EndpointByID(id string) (Endpoint, bool) {
	for _, ep := range d.Endpoints {
		if ep.ID == id {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// EndpointsOfType returns the Protocol endpoints carrying the given type tag.
func (d *ProtocolDocument) EndpointsOfType(t ObjectiveType) []Endpoint {
	var out []Endpoint
	for _, ep := range d.Endpoints {
		if ep.Type == t {
			out = append(out, ep)
		}
	}
	return out
}

// PresentDocuments names the document variants carried by the bundle, in
// lifecycle order.
func (b *CrossDocBundle) PresentDocuments() []string {
	var present []string
	if b.IB != nil {
		present = append(present, string(DocTypeIB))
	}
	if b.Protocol != nil {
		present = append(present, string(DocTypeProtocol))
	}
	if b.ICF != nil {
		present = append(present, string(DocTypeICF))
	}
	if b.SAP != nil {
		present = append(present, string(DocTypeSAP))
	}
	if b.CSR != nil {
		present = append(present, string(DocTypeCSR))
	}
	return present
}

// ObjectivesOfType filters objectives by type, preserving list order.
func ObjectivesOfType(objectives []Objective, t ObjectiveType) []Objective {
	var out []Objective
	for _, o := range objectives {
		if o.Type == t {
			out = append(out, o)
		}
	}
	return out
}

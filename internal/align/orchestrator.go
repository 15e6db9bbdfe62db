package align

import (
	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/similarity"
)

// Orchestrator assembles a bundle's unified Alignments by invoking the three
// aligners for whichever documents are present. Missing documents yield
// empty link lists for the pairings that need them, never an error.
type Orchestrator struct {
	objectives *ObjectiveAligner
	endpoints  *EndpointAligner
	doses      *DoseAligner
	logger     *logrus.Logger
}

// NewOrchestrator wires the three aligners over a shared scorer.
func NewOrchestrator(logger *logrus.Logger, scorer *similarity.Scorer) *Orchestrator {
	return &Orchestrator{
		objectives: NewObjectiveAligner(logger, scorer),
		endpoints:  NewEndpointAligner(logger, scorer),
		doses:      NewDoseAligner(logger, scorer),
		logger:     logger,
	}
}

// BuildAlignments computes all alignment links for the bundle. Population and
// visit links are returned as empty lists: they are reserved for future rule
// categories and not yet populated.
func (o *Orchestrator) BuildAlignments(bundle *domain.CrossDocBundle) *domain.Alignments {
	alignments := &domain.Alignments{
		Objectives:  []domain.ObjectiveLink{},
		Endpoints:   []domain.EndpointLink{},
		Doses:       []domain.DoseLink{},
		Populations: []domain.PopulationLink{},
		Visits:      []domain.VisitLink{},
	}
	if bundle == nil {
		return alignments
	}

	if links := o.objectives.MapObjectives(bundle.IB, bundle.Protocol); links != nil {
		alignments.Objectives = links
	}
	if links := o.endpoints.MapEndpoints(bundle.Protocol, bundle.SAP, bundle.CSR); links != nil {
		alignments.Endpoints = links
	}
	if links := o.doses.MapDoses(bundle.IB, bundle.Protocol); links != nil {
		alignments.Doses = links
	}

	o.logger.WithFields(logrus.Fields{
		"objective_links": len(alignments.Objectives),
		"endpoint_links":  len(alignments.Endpoints),
		"dose_links":      len(alignments.Doses),
	}).Debug("Built alignments")

	return alignments
}

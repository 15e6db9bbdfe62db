package align

import (
	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/similarity"
)

// Endpoint comparison weighting and threshold.
const (
	EndpointNameWeight        = 0.6
	EndpointDescriptionWeight = 0.4
	EndpointMatchThreshold    = 0.6
)

// EndpointAligner maps Protocol endpoints to their SAP and CSR counterparts.
type EndpointAligner struct {
	scorer *similarity.Scorer
	logger *logrus.Logger
}

// NewEndpointAligner creates an endpoint aligner.
func NewEndpointAligner(logger *logrus.Logger, scorer *similarity.Scorer) *EndpointAligner {
	return &EndpointAligner{scorer: scorer, logger: logger}
}

// MapEndpoints aligns Protocol endpoints against the SAP and CSR
// independently, then merges matches for the same Protocol endpoint into a
// single link carrying both counterpart ids. sap and csr may each be nil;
// when both are nil no links are produced.
func (a *EndpointAligner) MapEndpoints(protocol *domain.ProtocolDocument, sap *domain.SAPDocument, csr *domain.CSRDocument) []domain.EndpointLink {
	if protocol == nil || (sap == nil && csr == nil) {
		return nil
	}

	// index of link by Protocol endpoint id, for merging across passes
	byProtocol := make(map[string]*domain.EndpointLink)
	var ordered []*domain.EndpointLink

	attach := func(link domain.EndpointLink) {
		if link.ProtocolEndpointID != "" {
			if existing, ok := byProtocol[link.ProtocolEndpointID]; ok {
				if link.SAPEndpointID != "" {
					existing.SAPEndpointID = link.SAPEndpointID
					// the SAP pass score wins for merged links
					existing.SimilarityScore = link.SimilarityScore
					existing.Aligned = link.Aligned
				}
				if link.CSREndpointID != "" {
					existing.CSREndpointID = link.CSREndpointID
					if existing.SAPEndpointID == "" {
						existing.SimilarityScore = link.SimilarityScore
						existing.Aligned = link.Aligned
					}
				}
				return
			}
			copied := link
			byProtocol[link.ProtocolEndpointID] = &copied
			ordered = append(ordered, &copied)
			return
		}
		copied := link
		ordered = append(ordered, &copied)
	}

	if sap != nil {
		for _, link := range a.mapAgainstSAP(protocol, sap) {
			attach(link)
		}
	}
	if csr != nil {
		for _, link := range a.mapAgainstCSR(protocol, csr) {
			attach(link)
		}
	}

	// Exploratory endpoints have no counterpart group in either the SAP or
	// the CSR; each still gets an orphan link so downstream rules see it.
	for _, p := range protocol.EndpointsOfType(domain.ObjectiveExploratory) {
		attach(domain.EndpointLink{Type: domain.ObjectiveExploratory, ProtocolEndpointID: p.ID})
	}

	links := make([]domain.EndpointLink, 0, len(ordered))
	for _, l := range ordered {
		links = append(links, *l)
	}

	a.logger.WithFields(logrus.Fields{
		"protocol_document": protocol.DocumentID,
		"links":             len(links),
	}).Debug("Mapped endpoints")

	return links
}

// pairScore weights name similarity at 60% and description similarity at 40%.
func (a *EndpointAligner) pairScore(p domain.Endpoint, other domain.Endpoint) float64 {
	nameScore := a.scorer.Combined(p.Name, other.Name)
	descScore := a.scorer.Combined(p.Description, other.Description)
	return EndpointNameWeight*nameScore + EndpointDescriptionWeight*descScore
}

func (a *EndpointAligner) mapAgainstSAP(protocol *domain.ProtocolDocument, sap *domain.SAPDocument) []domain.EndpointLink {
	var links []domain.EndpointLink

	// Primary endpoints: an at-most-one-per-document pairing search. The
	// best pair across the two primary groups is created unconditionally and
	// the aligned flag applies the threshold, so rules can see a scored pair
	// even when it drifts below the bar.
	protPrimary := protocol.EndpointsOfType(domain.ObjectivePrimary)
	links = append(links, a.pairPrimaries(protPrimary, sap.PrimaryEndpoints, func(p, s domain.Endpoint) float64 {
		return a.pairScore(p, s)
	}, func(link *domain.EndpointLink, s domain.Endpoint) {
		link.SAPEndpointID = s.ID
	})...)

	// Secondary endpoints: greedy one-to-one matching, Protocol list order.
	protSecondary := protocol.EndpointsOfType(domain.ObjectiveSecondary)
	links = append(links, a.pairGreedy(domain.ObjectiveSecondary, protSecondary, sap.SecondaryEndpoints, func(p, s domain.Endpoint) float64 {
		return a.pairScore(p, s)
	}, func(link *domain.EndpointLink, s domain.Endpoint) {
		link.SAPEndpointID = s.ID
	})...)

	return links
}

func (a *EndpointAligner) mapAgainstCSR(protocol *domain.ProtocolDocument, csr *domain.CSRDocument) []domain.EndpointLink {
	var links []domain.EndpointLink

	// CSR entities model reported results loosely, so only names compare.
	csrScore := func(p domain.Endpoint, r domain.Endpoint) float64 {
		return a.scorer.Combined(p.Name, r.Name)
	}

	protPrimary := protocol.EndpointsOfType(domain.ObjectivePrimary)
	links = append(links, a.pairPrimaries(protPrimary, reportedToEndpoints(csr.PrimaryEndpoints), csrScore, func(link *domain.EndpointLink, r domain.Endpoint) {
		link.CSREndpointID = r.ID
	})...)

	protSecondary := protocol.EndpointsOfType(domain.ObjectiveSecondary)
	links = append(links, a.pairGreedy(domain.ObjectiveSecondary, protSecondary, reportedToEndpoints(csr.SecondaryEndpoints), csrScore, func(link *domain.EndpointLink, r domain.Endpoint) {
		link.CSREndpointID = r.ID
	})...)

	return links
}

// pairPrimaries finds the single best-scoring pair between the two primary
// groups. When both groups are non-empty the best pair is always created;
// leftover primaries on either side become orphans.
func (a *EndpointAligner) pairPrimaries(protGroup, otherGroup []domain.Endpoint, score func(p, o domain.Endpoint) float64, setOther func(*domain.EndpointLink, domain.Endpoint)) []domain.EndpointLink {
	var links []domain.EndpointLink

	if len(protGroup) > 0 && len(otherGroup) > 0 {
		bestP, bestO := 0, 0
		bestScore := -1.0
		for i, p := range protGroup {
			for j, o := range otherGroup {
				if s := score(p, o); s > bestScore {
					bestP, bestO, bestScore = i, j, s
				}
			}
		}

		link := domain.EndpointLink{
			Type:               domain.ObjectivePrimary,
			ProtocolEndpointID: protGroup[bestP].ID,
			SimilarityScore:    bestScore,
			Aligned:            bestScore >= EndpointMatchThreshold,
		}
		setOther(&link, otherGroup[bestO])
		links = append(links, link)

		for i, p := range protGroup {
			if i != bestP {
				links = append(links, domain.EndpointLink{Type: domain.ObjectivePrimary, ProtocolEndpointID: p.ID})
			}
		}
		for j, o := range otherGroup {
			if j != bestO {
				orphan := domain.EndpointLink{Type: domain.ObjectivePrimary}
				setOther(&orphan, o)
				links = append(links, orphan)
			}
		}
		return links
	}

	for _, p := range protGroup {
		links = append(links, domain.EndpointLink{Type: domain.ObjectivePrimary, ProtocolEndpointID: p.ID})
	}
	for _, o := range otherGroup {
		orphan := domain.EndpointLink{Type: domain.ObjectivePrimary}
		setOther(&orphan, o)
		links = append(links, orphan)
	}
	return links
}

// pairGreedy pairs each Protocol endpoint with its best unclaimed counterpart
// at or above the threshold, removing claimed counterparts from the pool.
func (a *EndpointAligner) pairGreedy(epType domain.ObjectiveType, protGroup, otherGroup []domain.Endpoint, score func(p, o domain.Endpoint) float64, setOther func(*domain.EndpointLink, domain.Endpoint)) []domain.EndpointLink {
	var links []domain.EndpointLink
	claimed := make(map[int]bool, len(otherGroup))

	for _, p := range protGroup {
		bestIdx := -1
		bestScore := 0.0
		for i, o := range otherGroup {
			if claimed[i] {
				continue
			}
			if s := score(p, o); s > bestScore && s >= EndpointMatchThreshold {
				bestIdx = i
				bestScore = s
			}
		}

		if bestIdx >= 0 {
			claimed[bestIdx] = true
			link := domain.EndpointLink{
				Type:               epType,
				ProtocolEndpointID: p.ID,
				SimilarityScore:    bestScore,
				Aligned:            true,
			}
			setOther(&link, otherGroup[bestIdx])
			links = append(links, link)
		} else {
			links = append(links, domain.EndpointLink{Type: epType, ProtocolEndpointID: p.ID})
		}
	}

	for i, o := range otherGroup {
		if !claimed[i] {
			orphan := domain.EndpointLink{Type: epType}
			setOther(&orphan, o)
			links = append(links, orphan)
		}
	}
	return links
}

// reportedToEndpoints adapts CSR reported endpoints into the generic endpoint
// shape used by the pairing helpers. Result text is not compared.
func reportedToEndpoints(reported []domain.ReportedEndpoint) []domain.Endpoint {
	out := make([]domain.Endpoint, 0, len(reported))
	for _, r := range reported {
		out = append(out, domain.Endpoint{ID: r.ID, Name: r.Name})
	}
	return out
}

// Package align implements the entity aligners that pair objectives,
// endpoints, and doses across documents in a bundle. All aligners share one
// pattern: greedy one-to-one matching with per-category weighting, driven by
// the lexical similarity scorer. Matching is intentionally greedy rather
// than optimal; entity counts per document are small enough that a full
// assignment algorithm is not worth its complexity.
package align

import (
	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/similarity"
)

// PrimaryObjectivePolicy selects how primary objectives are paired.
type PrimaryObjectivePolicy string

const (
	// PolicyFirstToFirst pairs the first primary objective on each side
	// unconditionally, regardless of score. Downstream rules depend on this
	// behavior; documents with reordered or multiple primary objectives may
	// see false negatives under it, which is an accepted product decision.
	PolicyFirstToFirst PrimaryObjectivePolicy = "first_to_first"
)

// ObjectiveMatchThreshold gates greedy matching for secondary and
// exploratory objectives.
const ObjectiveMatchThreshold = 0.6

// ObjectiveAligner maps IB objectives to Protocol objectives.
type ObjectiveAligner struct {
	scorer *similarity.Scorer
	policy PrimaryObjectivePolicy
	logger *logrus.Logger
}

// NewObjectiveAligner creates an objective aligner with the first-to-first
// primary policy.
func NewObjectiveAligner(logger *logrus.Logger, scorer *similarity.Scorer) *ObjectiveAligner {
	return &ObjectiveAligner{
		scorer: scorer,
		policy: PolicyFirstToFirst,
		logger: logger,
	}
}

// MapObjectives aligns IB objectives against Protocol objectives, grouped by
// objective type. Every objective on either side appears in exactly one link;
// unmatched objectives produce orphan links with Aligned=false and score 0.
func (a *ObjectiveAligner) MapObjectives(ib *domain.IBDocument, protocol *domain.ProtocolDocument) []domain.ObjectiveLink {
	if ib == nil || protocol == nil {
		return nil
	}

	var links []domain.ObjectiveLink
	for _, objType := range []domain.ObjectiveType{domain.ObjectivePrimary, domain.ObjectiveSecondary, domain.ObjectiveExploratory} {
		ibGroup := domain.ObjectivesOfType(ib.Objectives, objType)
		protGroup := domain.ObjectivesOfType(protocol.Objectives, objType)

		if objType == domain.ObjectivePrimary {
			links = append(links, a.mapPrimary(ibGroup, protGroup)...)
		} else {
			links = append(links, a.mapGreedy(objType, ibGroup, protGroup)...)
		}
	}

	a.logger.WithFields(logrus.Fields{
		"ib_document":       ib.DocumentID,
		"protocol_document": protocol.DocumentID,
		"links":             len(links),
	}).Debug("Mapped objectives")

	return links
}

// mapPrimary applies the first-to-first policy: when both sides carry at
// least one primary objective, the 0th objectives are paired unconditionally
// and scored. Remaining primaries on either side become orphans.
func (a *ObjectiveAligner) mapPrimary(ibGroup, protGroup []domain.Objective) []domain.ObjectiveLink {
	var links []domain.ObjectiveLink

	ibStart, protStart := 0, 0
	if len(ibGroup) > 0 && len(protGroup) > 0 {
		score := a.scorer.Combined(ibGroup[0].Text, protGroup[0].Text)
		links = append(links, domain.ObjectiveLink{
			Type:                domain.ObjectivePrimary,
			IBObjectiveID:       ibGroup[0].ID,
			ProtocolObjectiveID: protGroup[0].ID,
			SimilarityScore:     score,
			Aligned:             score >= ObjectiveMatchThreshold,
		})
		ibStart, protStart = 1, 1
	}

	for i := ibStart; i < len(ibGroup); i++ {
		links = append(links, domain.ObjectiveLink{Type: domain.ObjectivePrimary, IBObjectiveID: ibGroup[i].ID})
	}
	for i := protStart; i < len(protGroup); i++ {
		links = append(links, domain.ObjectiveLink{Type: domain.ObjectivePrimary, ProtocolObjectiveID: protGroup[i].ID})
	}
	return links
}

// mapGreedy pairs each IB objective with its best not-yet-claimed Protocol
// counterpart at or above the threshold, in IB list order. Claimed targets
// leave the candidate pool, so matching is one-to-one but not globally optimal.
func (a *ObjectiveAligner) mapGreedy(objType domain.ObjectiveType, ibGroup, protGroup []domain.Objective) []domain.ObjectiveLink {
	var links []domain.ObjectiveLink
	claimed := make(map[int]bool, len(protGroup))

	for _, ibObj := range ibGroup {
		bestIdx := -1
		bestScore := 0.0
		for i, protObj := range protGroup {
			if claimed[i] {
				continue
			}
			score := a.scorer.Combined(ibObj.Text, protObj.Text)
			if score > bestScore && score >= ObjectiveMatchThreshold {
				bestIdx = i
				bestScore = score
			}
		}

		if bestIdx >= 0 {
			claimed[bestIdx] = true
			links = append(links, domain.ObjectiveLink{
				Type:                objType,
				IBObjectiveID:       ibObj.ID,
				ProtocolObjectiveID: protGroup[bestIdx].ID,
				SimilarityScore:     bestScore,
				Aligned:             true,
			})
		} else {
			links = append(links, domain.ObjectiveLink{Type: objType, IBObjectiveID: ibObj.ID})
		}
	}

	for i, protObj := range protGroup {
		if !claimed[i] {
			links = append(links, domain.ObjectiveLink{Type: objType, ProtocolObjectiveID: protObj.ID})
		}
	}
	return links
}

package align

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/similarity"
)

// Dose comparison weighting and thresholds.
const (
	DoseValueWeight = 0.5
	RouteWeight     = 0.3
	FrequencyWeight = 0.2

	// DoseCandidateThreshold gates pairing; DoseAlignedThreshold sets the
	// aligned flag on pairs that qualify.
	DoseCandidateThreshold = 0.5
	DoseAlignedThreshold   = 0.6
)

var dosePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-zµ]+(?:/[a-zµ]+)?)`)

// unitSynonyms folds spelled-out and variant unit names onto canonical forms.
var unitSynonyms = map[string]string{
	"milligram":   "mg",
	"milligrams":  "mg",
	"microgram":   "mcg",
	"micrograms":  "mcg",
	"µg":          "mcg",
	"ug":          "mcg",
	"gram":        "g",
	"grams":       "g",
	"milliliter":  "ml",
	"milliliters": "ml",
	"unit":        "iu",
	"units":       "iu",
}

// DoseAligner maps IB dose records to Protocol treatment arms.
type DoseAligner struct {
	scorer *similarity.Scorer
	logger *logrus.Logger
}

// NewDoseAligner creates a dose aligner.
func NewDoseAligner(logger *logrus.Logger, scorer *similarity.Scorer) *DoseAligner {
	return &DoseAligner{scorer: scorer, logger: logger}
}

// MapDoses greedily pairs IB dose records with Protocol treatment arms. The
// per-pair score blends dose value (50%), route (30%), and frequency (20%);
// pairs below the candidacy threshold are not formed, and unmatched records
// on either side become orphan links.
func (a *DoseAligner) MapDoses(ib *domain.IBDocument, protocol *domain.ProtocolDocument) []domain.DoseLink {
	if ib == nil || protocol == nil {
		return nil
	}

	var links []domain.DoseLink
	claimed := make(map[int]bool, len(protocol.Arms))

	for _, dose := range ib.Doses {
		bestIdx := -1
		bestScore := 0.0
		bestValueScore := 0.0

		for i, arm := range protocol.Arms {
			if claimed[i] {
				continue
			}
			valueScore := a.doseValueScore(dose.Dose, arm.Dose)
			routeScore := a.scorer.Combined(dose.Route, arm.Route)
			freqScore := a.scorer.Combined(dose.Frequency, arm.Frequency)
			score := DoseValueWeight*valueScore + RouteWeight*routeScore + FrequencyWeight*freqScore

			if score > bestScore && score >= DoseCandidateThreshold {
				bestIdx = i
				bestScore = score
				bestValueScore = valueScore
			}
		}

		if bestIdx >= 0 {
			claimed[bestIdx] = true
			links = append(links, domain.DoseLink{
				IBDoseID:        dose.ID,
				ProtocolArmID:   protocol.Arms[bestIdx].ID,
				SimilarityScore: bestScore,
				DoseValueScore:  bestValueScore,
				Aligned:         bestScore >= DoseAlignedThreshold,
			})
		} else {
			links = append(links, domain.DoseLink{IBDoseID: dose.ID})
		}
	}

	for i, arm := range protocol.Arms {
		if !claimed[i] {
			links = append(links, domain.DoseLink{ProtocolArmID: arm.ID})
		}
	}

	a.logger.WithFields(logrus.Fields{
		"ib_document":       ib.DocumentID,
		"protocol_document": protocol.DocumentID,
		"links":             len(links),
	}).Debug("Mapped doses")

	return links
}

// doseValueScore compares two dose strings. Exact match after unit
// normalization scores 1.0. Otherwise both sides are parsed into (value,
// unit); matching units score by relative difference (equal 1.0, <10%
// relative 0.9, larger 0.5). When unit comparison fails entirely the score
// degrades to raw-text similarity capped at 0.5, so malformed dose strings
// lower confidence instead of raising it.
func (a *DoseAligner) doseValueScore(ibDose, armDose string) float64 {
	if normalizeDose(ibDose) != "" && normalizeDose(ibDose) == normalizeDose(armDose) {
		return 1.0
	}

	ibValue, ibUnit, okIB := parseDose(ibDose)
	armValue, armUnit, okArm := parseDose(armDose)

	if okIB && okArm && ibUnit == armUnit {
		if ibValue == armValue {
			return 1.0
		}
		larger := math.Max(math.Abs(ibValue), math.Abs(armValue))
		if larger > 0 && math.Abs(ibValue-armValue)/larger < 0.10 {
			return 0.9
		}
		return 0.5
	}

	return 0.5 * a.scorer.Combined(ibDose, armDose)
}

// normalizeDose lowercases a dose string, folds unit synonyms, and removes
// whitespace, so "10 mg" and "10mg" compare equal.
func normalizeDose(dose string) string {
	lowered := strings.ToLower(strings.TrimSpace(dose))
	fields := strings.Fields(lowered)
	for i, f := range fields {
		if canonical, ok := unitSynonyms[f]; ok {
			fields[i] = canonical
		}
	}
	return strings.Join(fields, "")
}

// parseDose extracts a numeric value and canonical unit from a dose string.
func parseDose(dose string) (value float64, unit string, ok bool) {
	matches := dosePattern.FindStringSubmatch(normalizeDoseSpaced(dose))
	if matches == nil {
		return 0, "", false
	}
	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, "", false
	}
	unit = matches[2]
	if canonical, found := unitSynonyms[unit]; found {
		unit = canonical
	}
	return value, unit, true
}

// normalizeDoseSpaced lowercases and folds unit synonyms without removing
// the spacing the extraction pattern relies on.
func normalizeDoseSpaced(dose string) string {
	lowered := strings.ToLower(strings.TrimSpace(dose))
	fields := strings.Fields(lowered)
	for i, f := range fields {
		if canonical, ok := unitSynonyms[f]; ok {
			fields[i] = canonical
		}
	}
	return strings.Join(fields, " ")
}

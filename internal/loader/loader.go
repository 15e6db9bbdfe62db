// Package loader decodes raw bundle payloads into the normalized document
// model. The engine never parses raw prose; loaders are the only place where
// external document representations are interpreted.
package loader

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/crossdoc-check-mcp-server/internal/domain"
)

// Loader decodes and validates cross-document bundles.
type Loader struct {
	logger *logrus.Logger
}

// NewLoader creates a bundle loader.
func NewLoader(logger *logrus.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadBundle decodes a JSON bundle payload and validates it. A bundle must
// carry at least one document; within each document every entity id must be
// unique.
func (l *Loader) LoadBundle(data []byte) (*domain.CrossDocBundle, error) {
	var bundle domain.CrossDocBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}

	if err := l.ValidateBundle(&bundle); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"documents": strings.Join(bundle.PresentDocuments(), ","),
	}).Debug("Loaded bundle")

	return &bundle, nil
}

// ValidateBundle checks structural invariants on an already-decoded bundle.
// Partial bundles are valid; an empty one is not.
func (l *Loader) ValidateBundle(bundle *domain.CrossDocBundle) error {
	if bundle == nil {
		return fmt.Errorf("validating bundle: bundle is required")
	}
	if len(bundle.PresentDocuments()) == 0 {
		return fmt.Errorf("validating bundle: at least one document is required")
	}

	var problems []string
	if bundle.IB != nil {
		problems = append(problems, duplicateIDs(string(domain.DocTypeIB), ibEntityIDs(bundle.IB))...)
	}
	if bundle.Protocol != nil {
		problems = append(problems, duplicateIDs(string(domain.DocTypeProtocol), protocolEntityIDs(bundle.Protocol))...)
	}
	if bundle.SAP != nil {
		problems = append(problems, duplicateIDs(string(domain.DocTypeSAP), sapEntityIDs(bundle.SAP))...)
	}
	if bundle.CSR != nil {
		problems = append(problems, duplicateIDs(string(domain.DocTypeCSR), csrEntityIDs(bundle.CSR))...)
	}

	if len(problems) > 0 {
		return fmt.Errorf("validating bundle: %s", strings.Join(problems, "; "))
	}
	return nil
}

// duplicateIDs reports the ids that appear more than once in a document's
// entity list. Empty ids are reported once as missing.
func duplicateIDs(docType string, ids []string) []string {
	seen := make(map[string]int, len(ids))
	missing := false
	var problems []string

	for _, id := range ids {
		if id == "" {
			missing = true
			continue
		}
		seen[id]++
		if seen[id] == 2 {
			problems = append(problems, fmt.Sprintf("%s: duplicate entity id %q", docType, id))
		}
	}
	if missing {
		problems = append(problems, fmt.Sprintf("%s: entity with empty id", docType))
	}
	return problems
}

func ibEntityIDs(doc *domain.IBDocument) []string {
	var ids []string
	for _, o := range doc.Objectives {
		ids = append(ids, o.ID)
	}
	for _, d := range doc.Doses {
		ids = append(ids, d.ID)
	}
	return ids
}

func protocolEntityIDs(doc *domain.ProtocolDocument) []string {
	var ids []string
	for _, o := range doc.Objectives {
		ids = append(ids, o.ID)
	}
	for _, e := range doc.Endpoints {
		ids = append(ids, e.ID)
	}
	for _, a := range doc.Arms {
		ids = append(ids, a.ID)
	}
	for _, v := range doc.Visits {
		ids = append(ids, v.ID)
	}
	for _, p := range doc.Populations {
		ids = append(ids, p.ID)
	}
	return ids
}

func sapEntityIDs(doc *domain.SAPDocument) []string {
	var ids []string
	for _, e := range doc.AllEndpoints() {
		ids = append(ids, e.ID)
	}
	for _, t := range doc.StatisticalTests {
		ids = append(ids, t.ID)
	}
	for _, p := range doc.Populations {
		ids = append(ids, p.ID)
	}
	return ids
}

func csrEntityIDs(doc *domain.CSRDocument) []string {
	var ids []string
	for _, e := range doc.PrimaryEndpoints {
		ids = append(ids, e.ID)
	}
	for _, e := range doc.SecondaryEndpoints {
		ids = append(ids, e.ID)
	}
	return ids
}

// Package rules implements the cross-document consistency rule engine. A
// rule is a pure function over a bundle and its alignments: it reads both,
// writes neither, and emits zero or more issues. The engine runs an ordered
// registry of rules with per-rule fault isolation, then aggregates the
// emitted issues into a severity summary and category buckets.
package rules

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/crossdoc-check-mcp-server/internal/align"
	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/similarity"
)

// EvaluateFunc inspects a bundle and its alignments and returns issues.
// Implementations must not mutate either argument.
type EvaluateFunc func(ctx context.Context, bundle *domain.CrossDocBundle, alignments *domain.Alignments) ([]domain.Issue, error)

// Rule is one registered consistency check.
type Rule struct {
	Code        string
	Name        string
	Category    domain.IssueCategory
	Description string
	Evaluate    EvaluateFunc
}

// Engine evaluates a registry of rules against a document bundle. The
// registry is injected at construction so tests can substitute custom rule
// sets deterministically; there is no ambient global registry.
type Engine struct {
	logger       *logrus.Logger
	orchestrator *align.Orchestrator
	rules        []Rule
}

// NewEngine creates a rule engine over the given ordered registry.
func NewEngine(logger *logrus.Logger, scorer *similarity.Scorer, registry []Rule) *Engine {
	return &Engine{
		logger:       logger,
		orchestrator: align.NewOrchestrator(logger, scorer),
		rules:        registry,
	}
}

// NewDefaultEngine creates an engine carrying the default rule catalog.
func NewDefaultEngine(logger *logrus.Logger) *Engine {
	return NewEngine(logger, similarity.NewScorer(1024), DefaultRules())
}

// Run builds alignments for the bundle and evaluates every registered rule.
// Rules are independent and side-effect-free, so they run concurrently; a
// rule that returns an error or panics is logged and skipped without
// affecting the issues emitted by the remaining rules. Aggregation is
// order-independent: issues are only counted and bucketed, never compared
// positionally.
func (e *Engine) Run(ctx context.Context, bundle *domain.CrossDocBundle) *domain.ValidationResult {
	e.logger.WithField("rule_count", len(e.rules)).Debug("Running consistency validation")

	alignments := e.orchestrator.BuildAlignments(bundle)

	perRule := make([][]domain.Issue, len(e.rules))
	var group errgroup.Group

	for i, rule := range e.rules {
		group.Go(func() error {
			issues, err := e.evaluateRule(ctx, rule, bundle, alignments)
			if err != nil {
				// Fault isolation: a defective rule never aborts the batch.
				e.logger.WithError(err).WithField("rule", rule.Code).Warn("Rule evaluation failed, skipping")
				return nil
			}
			perRule[i] = issues
			return nil
		})
	}
	// errors are swallowed per rule above
	_ = group.Wait()

	var issues []domain.Issue
	for _, ruleIssues := range perRule {
		issues = append(issues, ruleIssues...)
	}

	result := BuildValidationResult(issues)

	e.logger.WithFields(logrus.Fields{
		"total_issues": result.Summary.Total,
		"critical":     result.Summary.Critical,
		"errors":       result.Summary.Error,
		"warnings":     result.Summary.Warning,
	}).Info("Completed consistency validation")

	return result
}

// evaluateRule runs one rule, converting panics into errors so a single
// defective rule cannot take down the batch.
func (e *Engine) evaluateRule(ctx context.Context, rule Rule, bundle *domain.CrossDocBundle, alignments *domain.Alignments) (issues []domain.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.Code, r)
		}
	}()
	return rule.Evaluate(ctx, bundle, alignments)
}

// BuildValidationResult aggregates issues into the severity summary and the
// fixed-key category buckets. Every category key is present even when empty.
// Issues without a category, or with a category outside the fixed keys,
// appear only in the flat Issues list, not in ByCategory; this asymmetry is
// deliberate.
func BuildValidationResult(issues []domain.Issue) *domain.ValidationResult {
	if issues == nil {
		issues = []domain.Issue{}
	}

	summary := domain.ValidationSummary{Total: len(issues)}
	byCategory := make(map[domain.IssueCategory][]domain.Issue, len(domain.AllCategories))
	for _, cat := range domain.AllCategories {
		byCategory[cat] = []domain.Issue{}
	}

	for _, issue := range issues {
		switch issue.Severity {
		case domain.SeverityCritical:
			summary.Critical++
		case domain.SeverityError:
			summary.Error++
		case domain.SeverityWarning:
			summary.Warning++
		case domain.SeverityInfo:
			summary.Info++
		}
		// Only the fixed keys are bucketed; an issue carrying an unknown
		// category (custom registries can emit one) stays in the flat list.
		if _, known := byCategory[issue.Category]; known {
			byCategory[issue.Category] = append(byCategory[issue.Category], issue)
		}
	}

	return &domain.ValidationResult{
		Issues:     issues,
		Summary:    summary,
		ByCategory: byCategory,
	}
}

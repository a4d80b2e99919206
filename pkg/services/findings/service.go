// Package findings owns finding persistence semantics: idempotent ingestion
// of analysis output, the forward-only status lifecycle, and filtered queries.
package findings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/secureaudit/secureaudit/pkg/adapters"
	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/models/store"
	findingstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/finding"
)

// Risk scores assumed when the analysis capability does not provide one.
var defaultRiskScores = map[domain.Severity]int{
	domain.SeverityCritical: 90,
	domain.SeverityHigh:     70,
	domain.SeverityMedium:   50,
	domain.SeverityLow:      30,
}

const casAttempts = 3

type Service interface {
	// Ingest persists a candidate batch for a run and returns the number of
	// findings actually created. Calling it twice with the same batch creates
	// nothing the second time.
	Ingest(ctx context.Context, run *domain.AuditRun, candidates []domain.CandidateFinding) (int, error)
	// UpdateStatus applies one forward transition and returns the updated
	// finding. Transitions outside the table fail with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, findingID string, next domain.FindingStatus) (*domain.Finding, error)
	Query(ctx context.Context, filter domain.FindingFilter) ([]domain.Finding, error)
	CountByRun(ctx context.Context, auditRunID string) (int, error)
}

type service struct {
	store findingstore.Store
}

func NewService(store findingstore.Store) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("finding store is nil")
	}
	return &service{store: store}, nil
}

func (s *service) Ingest(ctx context.Context, run *domain.AuditRun, candidates []domain.CandidateFinding) (int, error) {
	logger := zerolog.Ctx(ctx)
	now := time.Now().UTC()

	ingested := 0
	for _, candidate := range candidates {
		normalized, ok := normalize(candidate, run.Frameworks)
		if !ok {
			logger.Warn().
				Str("audit_run_id", run.ID).
				Str("title", candidate.Title).
				Msg("dropping candidate finding outside the run's frameworks")
			continue
		}

		f := domain.Finding{
			ID:               Fingerprint(normalized),
			AuditRunID:       run.ID,
			Title:            normalized.Title,
			Description:      normalized.Description,
			Severity:         normalized.Severity,
			ResourceType:     normalized.ResourceType,
			ResourceID:       normalized.ResourceID,
			Frameworks:       normalized.Frameworks,
			Status:           domain.FindingStatusOpen,
			RiskScore:        normalized.RiskScore,
			RemediationSteps: normalized.RemediationSteps,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		row := adapters.MapFindingDomainToStore(f)
		created, err := s.store.Insert(ctx, &row)
		if err != nil {
			return ingested, fmt.Errorf("ingest finding %s: %w", f.ID, err)
		}
		if created {
			ingested++
		}
	}
	return ingested, nil
}

func (s *service) UpdateStatus(ctx context.Context, findingID string, next domain.FindingStatus) (*domain.Finding, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("status %q: %w", next, domain.ErrInvalidTransition)
	}

	// Compare-and-swap on the current status; a concurrent update invalidates
	// the swap and forces re-validation against the fresh status.
	for attempt := 0; attempt < casAttempts; attempt++ {
		row, err := s.store.Get(ctx, findingID)
		if err != nil {
			return nil, err
		}

		current := domain.FindingStatus(row.Status)
		if !current.CanTransitionTo(next) {
			return nil, fmt.Errorf("finding %s: %s -> %s: %w",
				findingID, current, next, domain.ErrInvalidTransition)
		}

		updatedAt := time.Now().UTC()
		swapped, err := s.store.UpdateStatus(ctx, findingID, string(current), string(next), updatedAt)
		if err != nil {
			return nil, err
		}
		if !swapped {
			continue
		}

		updated := adapters.MapFindingStoreToDomain(*row)
		updated.Status = next
		updated.UpdatedAt = updatedAt
		return &updated, nil
	}

	// Every attempt re-read a status the transition was legal from, yet the
	// swap kept losing. That is contention, not a lifecycle violation.
	return nil, fmt.Errorf("finding %s: status update lost %d races: %w",
		findingID, casAttempts, domain.ErrConcurrentUpdate)
}

func (s *service) Query(ctx context.Context, filter domain.FindingFilter) ([]domain.Finding, error) {
	rows, err := s.store.Query(ctx, store.FindingFilter{
		AuditRunID:   filter.AuditRunID,
		Severity:     string(filter.Severity),
		ResourceType: filter.ResourceType,
		Status:       string(filter.Status),
	})
	if err != nil {
		return nil, err
	}

	findings := make([]domain.Finding, 0, len(rows))
	for _, row := range rows {
		f := adapters.MapFindingStoreToDomain(*row)
		if filter.Framework != "" && !hasFramework(f, filter.Framework) {
			continue
		}
		findings = append(findings, f)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(findings) {
			return []domain.Finding{}, nil
		}
		findings = findings[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(findings) {
		findings = findings[:filter.Limit]
	}
	return findings, nil
}

func (s *service) CountByRun(ctx context.Context, auditRunID string) (int, error) {
	return s.store.CountByRun(ctx, auditRunID)
}

// normalize validates a candidate against the owning run and fills defaults
// the way the ingestion path always has: unknown severities become MEDIUM,
// framework tags outside the run's set are stripped, a missing risk score is
// derived from severity.
func normalize(c domain.CandidateFinding, runFrameworks []string) (domain.CandidateFinding, bool) {
	if c.Title == "" {
		return c, false
	}
	if !c.Severity.Valid() {
		c.Severity = domain.SeverityMedium
	}

	allowed := make(map[string]struct{}, len(runFrameworks))
	for _, fw := range runFrameworks {
		allowed[fw] = struct{}{}
	}
	frameworks := make([]string, 0, len(c.Frameworks))
	for _, fw := range c.Frameworks {
		if _, ok := allowed[fw]; ok {
			frameworks = append(frameworks, fw)
		}
	}
	if len(frameworks) == 0 {
		return c, false
	}
	c.Frameworks = frameworks

	if c.RiskScore <= 0 {
		c.RiskScore = defaultRiskScores[c.Severity]
	}
	if c.RiskScore > 100 {
		c.RiskScore = 100
	}
	return c, true
}

func hasFramework(f domain.Finding, framework string) bool {
	for _, fw := range f.Frameworks {
		if fw == framework {
			return true
		}
	}
	return false
}

package adapters

import (
	"github.com/secureaudit/secureaudit/pkg/models/api"
	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/models/store"
)

func MapAuditRunDomainToApi(r domain.AuditRun) api.AuditRun {
	return api.AuditRun{
		ID:              r.ID,
		Status:          string(r.Status),
		Frameworks:      append([]string{}, r.Frameworks...),
		ScanConfig:      r.ScanConfig,
		ErrorMessage:    r.ErrorMessage,
		FindingsCount:   r.FindingsCount,
		ComplianceScore: r.ComplianceScore,
		FrameworkScores: copyScores(r.FrameworkScores),
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func MapAuditRunDomainToStore(r domain.AuditRun) store.AuditRun {
	return store.AuditRun{
		ID:              r.ID,
		Status:          string(r.Status),
		Frameworks:      append([]string{}, r.Frameworks...),
		ScanConfig:      r.ScanConfig,
		ErrorMessage:    r.ErrorMessage,
		FindingsCount:   r.FindingsCount,
		ComplianceScore: r.ComplianceScore,
		FrameworkScores: copyScores(r.FrameworkScores),
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func MapAuditRunStoreToDomain(r store.AuditRun) domain.AuditRun {
	return domain.AuditRun{
		ID:              r.ID,
		Status:          domain.RunStatus(r.Status),
		Frameworks:      append([]string{}, r.Frameworks...),
		ScanConfig:      r.ScanConfig,
		ErrorMessage:    r.ErrorMessage,
		FindingsCount:   r.FindingsCount,
		ComplianceScore: r.ComplianceScore,
		FrameworkScores: copyScores(r.FrameworkScores),
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func MapSnapshotDomainToStore(s domain.ComplianceSnapshot) store.ComplianceSnapshot {
	return store.ComplianceSnapshot{
		ID:               s.ID,
		AuditRunID:       s.AuditRunID,
		Frameworks:       append([]string{}, s.Frameworks...),
		TotalFindings:    s.TotalFindings,
		CriticalFindings: s.CriticalFindings,
		HighFindings:     s.HighFindings,
		MediumFindings:   s.MediumFindings,
		LowFindings:      s.LowFindings,
		ComplianceScore:  s.ComplianceScore,
		Summary:          s.Summary,
		CreatedAt:        s.CreatedAt,
	}
}

func MapSnapshotStoreToDomain(s store.ComplianceSnapshot) domain.ComplianceSnapshot {
	return domain.ComplianceSnapshot{
		ID:               s.ID,
		AuditRunID:       s.AuditRunID,
		Frameworks:       append([]string{}, s.Frameworks...),
		TotalFindings:    s.TotalFindings,
		CriticalFindings: s.CriticalFindings,
		HighFindings:     s.HighFindings,
		MediumFindings:   s.MediumFindings,
		LowFindings:      s.LowFindings,
		ComplianceScore:  s.ComplianceScore,
		Summary:          s.Summary,
		CreatedAt:        s.CreatedAt,
	}
}

func MapSnapshotDomainToApi(s domain.ComplianceSnapshot) api.ComplianceSnapshot {
	return api.ComplianceSnapshot{
		ID:               s.ID,
		AuditRunID:       s.AuditRunID,
		Frameworks:       append([]string{}, s.Frameworks...),
		TotalFindings:    s.TotalFindings,
		CriticalFindings: s.CriticalFindings,
		HighFindings:     s.HighFindings,
		MediumFindings:   s.MediumFindings,
		LowFindings:      s.LowFindings,
		ComplianceScore:  s.ComplianceScore,
		Summary:          s.Summary,
		CreatedAt:        s.CreatedAt,
	}
}

func copyScores(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

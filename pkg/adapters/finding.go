package adapters

import (
	"github.com/secureaudit/secureaudit/pkg/models/api"
	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/models/store"
)

func MapFindingDomainToApi(f domain.Finding) api.Finding {
	return api.Finding{
		ID:               f.ID,
		AuditRunID:       f.AuditRunID,
		Title:            f.Title,
		Description:      f.Description,
		Severity:         string(f.Severity),
		ResourceType:     f.ResourceType,
		ResourceID:       f.ResourceID,
		Frameworks:       append([]string{}, f.Frameworks...),
		Status:           string(f.Status),
		RiskScore:        f.RiskScore,
		RemediationSteps: append([]string{}, f.RemediationSteps...),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

func MapFindingDomainToStore(f domain.Finding) store.Finding {
	return store.Finding{
		ID:               f.ID,
		AuditRunID:       f.AuditRunID,
		Title:            f.Title,
		Description:      f.Description,
		Severity:         string(f.Severity),
		ResourceType:     f.ResourceType,
		ResourceID:       f.ResourceID,
		Frameworks:       append([]string{}, f.Frameworks...),
		Status:           string(f.Status),
		RiskScore:        f.RiskScore,
		RemediationSteps: append([]string{}, f.RemediationSteps...),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

func MapFindingStoreToDomain(f store.Finding) domain.Finding {
	return domain.Finding{
		ID:               f.ID,
		AuditRunID:       f.AuditRunID,
		Title:            f.Title,
		Description:      f.Description,
		Severity:         domain.Severity(f.Severity),
		ResourceType:     f.ResourceType,
		ResourceID:       f.ResourceID,
		Frameworks:       append([]string{}, f.Frameworks...),
		Status:           domain.FindingStatus(f.Status),
		RiskScore:        f.RiskScore,
		RemediationSteps: append([]string{}, f.RemediationSteps...),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

package api

import "time"

type Finding struct {
	ID               string    `json:"id"`
	AuditRunID       string    `json:"auditRunId"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Severity         string    `json:"severity"`
	ResourceType     string    `json:"resourceType"`
	ResourceID       string    `json:"resourceId"`
	Frameworks       []string  `json:"complianceFrameworks"`
	Status           string    `json:"status"`
	RiskScore        int       `json:"riskScore"`
	RemediationSteps []string  `json:"remediationSteps"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type FindingList struct {
	Findings []Finding `json:"findings"`
	Count    int       `json:"count"`
}

type UpdateFindingStatusRequest struct {
	Status string `json:"status"`
}

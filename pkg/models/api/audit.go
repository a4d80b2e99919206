package api

import (
	"encoding/json"
	"time"
)

type StartAuditRunRequest struct {
	AuditRunID           string          `json:"auditRunId,omitempty"`
	ComplianceFrameworks []string        `json:"complianceFrameworks"`
	ScanConfig           json.RawMessage `json:"scanConfig,omitempty"`
}

type AuditRun struct {
	ID              string             `json:"id"`
	Status          string             `json:"status"`
	Frameworks      []string           `json:"complianceFrameworks"`
	ScanConfig      json.RawMessage    `json:"scanConfig,omitempty"`
	ErrorMessage    string             `json:"errorMessage,omitempty"`
	FindingsCount   int                `json:"findingsCount"`
	ComplianceScore float64            `json:"complianceScore"`
	FrameworkScores map[string]float64 `json:"frameworkScores,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
}

type AuditRunList struct {
	AuditRuns []AuditRun `json:"auditRuns"`
	Count     int        `json:"count"`
}

type ComplianceSnapshot struct {
	ID               string    `json:"id"`
	AuditRunID       string    `json:"auditRunId"`
	Frameworks       []string  `json:"complianceFrameworks"`
	TotalFindings    int       `json:"totalFindings"`
	CriticalFindings int       `json:"criticalFindings"`
	HighFindings     int       `json:"highFindings"`
	MediumFindings   int       `json:"mediumFindings"`
	LowFindings      int       `json:"lowFindings"`
	ComplianceScore  float64   `json:"complianceScore"`
	Summary          string    `json:"summary"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Error struct {
	Error string `json:"error"`
}

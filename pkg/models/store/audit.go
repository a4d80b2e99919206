package store

import "time"

// AuditRun is the audit_runs row. Frameworks, ScanConfig and FrameworkScores
// are stored as JSON columns.
type AuditRun struct {
	ID              string
	Status          string
	Frameworks      []string
	ScanConfig      []byte
	ErrorMessage    string
	FindingsCount   int
	ComplianceScore float64
	FrameworkScores map[string]float64
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Finding is the findings row.
type Finding struct {
	ID               string
	AuditRunID       string
	Title            string
	Description      string
	Severity         string
	ResourceType     string
	ResourceID       string
	Frameworks       []string
	Status           string
	RiskScore        int
	RemediationSteps []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FindingFilter narrows a findings scan. Zero values mean "any".
type FindingFilter struct {
	AuditRunID   string
	Severity     string
	ResourceType string
	Status       string
}

// ComplianceSnapshot is the compliance_snapshots row, keyed by audit run so a
// run finalizes into exactly one snapshot.
type ComplianceSnapshot struct {
	ID               string
	AuditRunID       string
	Frameworks       []string
	TotalFindings    int
	CriticalFindings int
	HighFindings     int
	MediumFindings   int
	LowFindings      int
	ComplianceScore  float64
	Summary          string
	CreatedAt        time.Time
}

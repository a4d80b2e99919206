package domain

import "time"

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

type FindingStatus string

const (
	FindingStatusOpen          FindingStatus = "OPEN"
	FindingStatusInProgress    FindingStatus = "IN_PROGRESS"
	FindingStatusResolved      FindingStatus = "RESOLVED"
	FindingStatusFalsePositive FindingStatus = "FALSE_POSITIVE"
)

func (s FindingStatus) Valid() bool {
	switch s {
	case FindingStatusOpen, FindingStatusInProgress, FindingStatusResolved, FindingStatusFalsePositive:
		return true
	}
	return false
}

// CanTransitionTo enforces the forward-only remediation lifecycle. RESOLVED
// and FALSE_POSITIVE are terminal; reopening requires a new finding.
func (s FindingStatus) CanTransitionTo(next FindingStatus) bool {
	switch s {
	case FindingStatusOpen:
		return next == FindingStatusInProgress || next == FindingStatusResolved || next == FindingStatusFalsePositive
	case FindingStatusInProgress:
		return next == FindingStatusResolved || next == FindingStatusFalsePositive
	}
	return false
}

// Finding is a single detected compliance violation tied to one resource and
// one or more frameworks. The ID is a content fingerprint of resource + rule,
// so re-ingesting the same violation is a no-op.
type Finding struct {
	ID               string
	AuditRunID       string
	Title            string
	Description      string
	Severity         Severity
	ResourceType     string
	ResourceID       string
	Frameworks       []string
	Status           FindingStatus
	RiskScore        int
	RemediationSteps []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CandidateFinding is the analysis capability's output for one violation,
// before the core assigns identity, ownership and lifecycle fields.
type CandidateFinding struct {
	Title            string
	Description      string
	Severity         Severity
	ResourceType     string
	ResourceID       string
	Frameworks       []string
	RiskScore        int
	RemediationSteps []string
}

// FindingFilter selects findings for Query. Zero values mean "any".
type FindingFilter struct {
	AuditRunID   string
	Severity     Severity
	ResourceType string
	Status       FindingStatus
	Framework    string
	Limit        int
	Offset       int
}

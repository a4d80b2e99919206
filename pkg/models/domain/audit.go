package domain

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Terminal reports whether no further transition may leave this status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// SupportedFrameworks lists the compliance frameworks a run may request.
var SupportedFrameworks = []string{"GDPR", "SOC2", "PCI-DSS"}

func FrameworkSupported(framework string) bool {
	for _, f := range SupportedFrameworks {
		if f == framework {
			return true
		}
	}
	return false
}

// ScanConfig is an opaque configuration blob handed through to the analysis
// capability. The core never interprets it.
type ScanConfig = json.RawMessage

// AuditRun is one execution of a compliance scan against a set of frameworks.
// FindingsCount, ComplianceScore and FrameworkScores are written once at
// finalization and never mutated afterwards.
type AuditRun struct {
	ID              string
	Status          RunStatus
	Frameworks      []string
	ScanConfig      ScanConfig
	ErrorMessage    string
	FindingsCount   int
	ComplianceScore float64
	FrameworkScores map[string]float64
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// ComplianceSnapshot is the per-run summary record emitted at completion for
// downstream report generation.
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

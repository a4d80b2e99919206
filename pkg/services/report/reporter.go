// Package report emits the completion record a downstream report generator
// consumes. The coordinator never waits on report generation; the run id is
// enough for the reporter to locate the run's findings.
package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Completion summarizes a finished audit run for downstream consumers.
type Completion struct {
	AuditRunID      string
	Frameworks      []string
	FindingsCount   int
	ComplianceScore float64
	FrameworkScores map[string]float64
	CompletedAt     time.Time
}

type Reporter interface {
	RunCompleted(ctx context.Context, c Completion)
}

// LogReporter publishes completions as structured log events.
type LogReporter struct{}

func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

func (r *LogReporter) RunCompleted(ctx context.Context, c Completion) {
	event := zerolog.Ctx(ctx).Info().
		Str("audit_run_id", c.AuditRunID).
		Strs("frameworks", c.Frameworks).
		Int("findings_count", c.FindingsCount).
		Float64("compliance_score", c.ComplianceScore).
		Time("completed_at", c.CompletedAt)
	for fw, score := range c.FrameworkScores {
		event = event.Float64("score_"+fw, score)
	}
	event.Msg("audit run completed, report available")
}

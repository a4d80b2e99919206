// Package audit drives an audit run through its state machine: accept the
// request, invoke the analysis capability, ingest findings, compute scores
// and finalize the run.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/secureaudit/secureaudit/pkg/adapters"
	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/services/analysis"
	"github.com/secureaudit/secureaudit/pkg/services/findings"
	"github.com/secureaudit/secureaudit/pkg/services/report"
	"github.com/secureaudit/secureaudit/pkg/services/scoring"
	"github.com/secureaudit/secureaudit/pkg/store/duckdb"
	auditrunstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/auditrun"
	snapshotstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/snapshot"
	"golang.org/x/sync/singleflight"
)

// Failure reasons recorded in an audit run's error message.
const (
	reasonAnalysisTimeout = "analysis_timeout"
	reasonAnalysisFailed  = "analysis_failed"
	reasonIngestFailed    = "ingest_failed"
	reasonScoringFailed   = "scoring_failed"
	reasonPersistence     = "persistence_failed"
)

type Service interface {
	// StartAuditRun validates and persists a new run, then executes it
	// asynchronously. A duplicate id returns the existing run with
	// created=false instead of starting a second execution.
	StartAuditRun(ctx context.Context, id string, frameworks []string, scanConfig domain.ScanConfig) (*domain.AuditRun, bool, error)
	GetAuditRun(ctx context.Context, id string) (*domain.AuditRun, error)
	ListAuditRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.AuditRun, error)
	GetSnapshot(ctx context.Context, auditRunID string) (*domain.ComplianceSnapshot, error)
}

type Config struct {
	AnalysisTimeout        time.Duration
	MaxAnalysisAttempts    int
	MaxPersistenceAttempts int
	RetryBaseDelay         time.Duration
}

func DefaultConfig() Config {
	return Config{
		AnalysisTimeout:        2 * time.Minute,
		MaxAnalysisAttempts:    3,
		MaxPersistenceAttempts: 3,
		RetryBaseDelay:         500 * time.Millisecond,
	}
}

type Coordinator struct {
	db        *sql.DB
	runs      auditrunstore.Store
	findings  findings.Service
	snapshots snapshotstore.Store
	analyzer  analysis.Analyzer
	reporter  report.Reporter
	config    Config

	group singleflight.Group
	wg    sync.WaitGroup
}

func NewCoordinator(
	db *sql.DB,
	runs auditrunstore.Store,
	findingsSvc findings.Service,
	snapshots snapshotstore.Store,
	analyzer analysis.Analyzer,
	reporter report.Reporter,
	config Config,
) (*Coordinator, error) {
	if db == nil || runs == nil || findingsSvc == nil || snapshots == nil || analyzer == nil {
		return nil, fmt.Errorf("coordinator dependencies are incomplete")
	}
	if reporter == nil {
		reporter = report.NewLogReporter()
	}
	if config.MaxAnalysisAttempts < 1 {
		config.MaxAnalysisAttempts = 1
	}
	if config.MaxPersistenceAttempts < 1 {
		config.MaxPersistenceAttempts = 1
	}
	return &Coordinator{
		db:        db,
		runs:      runs,
		findings:  findingsSvc,
		snapshots: snapshots,
		analyzer:  analyzer,
		reporter:  reporter,
		config:    config,
	}, nil
}

func (c *Coordinator) StartAuditRun(
	ctx context.Context,
	id string,
	frameworks []string,
	scanConfig domain.ScanConfig,
) (*domain.AuditRun, bool, error) {
	if len(frameworks) == 0 {
		return nil, false, fmt.Errorf("no compliance frameworks requested: %w", domain.ErrInvalidConfiguration)
	}
	for _, fw := range frameworks {
		if !domain.FrameworkSupported(fw) {
			return nil, false, fmt.Errorf("unsupported framework %q: %w", fw, domain.ErrInvalidConfiguration)
		}
	}

	if id == "" {
		id = uuid.NewString()
	}

	run := domain.AuditRun{
		ID:         id,
		Status:     domain.RunStatusPending,
		Frameworks: append([]string{}, frameworks...),
		ScanConfig: scanConfig,
		CreatedAt:  time.Now().UTC(),
	}

	row := adapters.MapAuditRunDomainToStore(run)
	created, err := c.runs.Create(ctx, &row)
	if err != nil {
		return nil, false, fmt.Errorf("create audit run: %w", err)
	}
	if !created {
		existing, err := c.GetAuditRun(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	// The execution outlives the request context. Single-flight on the run
	// id plus the PENDING->RUNNING compare-and-swap guarantee at most one
	// execution per id even under concurrent starts.
	execCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _, _ = c.group.Do(id, func() (interface{}, error) {
			c.execute(execCtx, run)
			return nil, nil
		})
	}()

	return &run, true, nil
}

func (c *Coordinator) GetAuditRun(ctx context.Context, id string) (*domain.AuditRun, error) {
	row, err := c.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	run := adapters.MapAuditRunStoreToDomain(*row)
	return &run, nil
}

func (c *Coordinator) ListAuditRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.AuditRun, error) {
	rows, err := c.runs.List(ctx, string(status), limit)
	if err != nil {
		return nil, err
	}
	runs := make([]domain.AuditRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, adapters.MapAuditRunStoreToDomain(*row))
	}
	return runs, nil
}

func (c *Coordinator) GetSnapshot(ctx context.Context, auditRunID string) (*domain.ComplianceSnapshot, error) {
	row, err := c.snapshots.GetByRun(ctx, auditRunID)
	if err != nil {
		return nil, err
	}
	snap := adapters.MapSnapshotStoreToDomain(*row)
	return &snap, nil
}

// Wait blocks until all in-flight executions finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) execute(ctx context.Context, run domain.AuditRun) {
	logger := zerolog.Ctx(ctx).With().Str("audit_run_id", run.ID).Logger()
	ctx = logger.WithContext(ctx)

	if !c.markRunning(ctx, run.ID) {
		return
	}
	logger.Info().Strs("frameworks", run.Frameworks).Msg("audit run started")

	candidates, err := c.analyze(ctx, run)
	if err != nil {
		reason := reasonAnalysisFailed
		if errors.Is(err, context.DeadlineExceeded) {
			reason = reasonAnalysisTimeout
		}
		c.fail(ctx, run.ID, reason, err)
		return
	}

	var ingested int
	err = withRetry(ctx, c.config.MaxPersistenceAttempts, c.config.RetryBaseDelay, func() error {
		// Each attempt writes the whole batch in one transaction; ingestion
		// is also idempotent per finding id, so replaying after a failed
		// attempt is safe either way.
		return c.inTx(ctx, func(txCtx context.Context) error {
			var ierr error
			ingested, ierr = c.findings.Ingest(txCtx, &run, candidates)
			return ierr
		})
	})
	if err != nil {
		c.fail(ctx, run.ID, reasonIngestFailed, err)
		return
	}

	runFindings, err := c.findings.Query(ctx, domain.FindingFilter{AuditRunID: run.ID})
	if err != nil {
		c.fail(ctx, run.ID, reasonScoringFailed, err)
		return
	}

	frameworkScores, overall := scoring.ComputeScores(runFindings, run.Frameworks)
	completedAt := time.Now().UTC()
	snapshot := buildSnapshot(run, runFindings, overall, completedAt)

	// The status flip and the snapshot commit together: a COMPLETED run
	// always has its snapshot.
	err = withRetry(ctx, c.config.MaxPersistenceAttempts, c.config.RetryBaseDelay, func() error {
		return c.inTx(ctx, func(txCtx context.Context) error {
			if _, cerr := c.runs.Complete(txCtx, run.ID, len(runFindings), overall, frameworkScores, completedAt); cerr != nil {
				return cerr
			}
			row := adapters.MapSnapshotDomainToStore(snapshot)
			_, serr := c.snapshots.Insert(txCtx, &row)
			return serr
		})
	})
	if err != nil {
		c.fail(ctx, run.ID, reasonPersistence, err)
		return
	}

	logger.Info().
		Int("findings_count", len(runFindings)).
		Int("ingested", ingested).
		Float64("compliance_score", overall).
		Msg("audit run completed")

	c.reporter.RunCompleted(ctx, report.Completion{
		AuditRunID:      run.ID,
		Frameworks:      run.Frameworks,
		FindingsCount:   len(runFindings),
		ComplianceScore: overall,
		FrameworkScores: frameworkScores,
		CompletedAt:     completedAt,
	})
}

func (c *Coordinator) markRunning(ctx context.Context, id string) bool {
	logger := zerolog.Ctx(ctx)

	var transitioned bool
	err := withRetry(ctx, c.config.MaxPersistenceAttempts, c.config.RetryBaseDelay, func() error {
		var terr error
		transitioned, terr = c.runs.MarkRunning(ctx, id)
		return terr
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to mark audit run running")
		c.fail(ctx, id, reasonPersistence, err)
		return false
	}
	if !transitioned {
		// Another execution already owns this run, or it is terminal.
		logger.Warn().Msg("audit run not in PENDING, skipping execution")
	}
	return transitioned
}

// analyze calls the analysis capability bounded by the configured timeout,
// retrying transient failures with backoff. Permanent failures and timeouts
// escalate immediately.
func (c *Coordinator) analyze(ctx context.Context, run domain.AuditRun) ([]domain.CandidateFinding, error) {
	actx, cancel := context.WithTimeout(ctx, c.config.AnalysisTimeout)
	defer cancel()

	logger := zerolog.Ctx(ctx)

	var candidates []domain.CandidateFinding
	var err error
	for attempt := 1; attempt <= c.config.MaxAnalysisAttempts; attempt++ {
		candidates, err = c.analyzer.Analyze(actx, run.Frameworks, run.ScanConfig)
		if err == nil {
			return candidates, nil
		}
		if !domain.IsTransientAnalysis(err) || actx.Err() != nil {
			return nil, err
		}
		if attempt < c.config.MaxAnalysisAttempts {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("analysis failed, retrying")
			if serr := sleep(actx, c.config.RetryBaseDelay<<(attempt-1)); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, err
}

// fail moves the run to FAILED with a machine-readable reason. Findings
// already ingested stay in place.
func (c *Coordinator) fail(ctx context.Context, id string, reason string, cause error) {
	logger := zerolog.Ctx(ctx)
	message := fmt.Sprintf("%s: %v", reason, cause)

	err := withRetry(ctx, c.config.MaxPersistenceAttempts, c.config.RetryBaseDelay, func() error {
		_, ferr := c.runs.Fail(ctx, id, message, time.Now().UTC())
		return ferr
	})
	if err != nil {
		logger.Error().Err(err).Str("reason", reason).Msg("failed to record audit run failure")
		return
	}
	logger.Error().Err(cause).Str("reason", reason).Msg("audit run failed")
}

// inTx runs fn with a transaction on the context, committing on success.
func (c *Coordinator) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(duckdb.WithTransaction(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func buildSnapshot(
	run domain.AuditRun,
	runFindings []domain.Finding,
	overall float64,
	completedAt time.Time,
) domain.ComplianceSnapshot {
	snap := domain.ComplianceSnapshot{
		ID:              "snapshot-" + run.ID,
		AuditRunID:      run.ID,
		Frameworks:      run.Frameworks,
		TotalFindings:   len(runFindings),
		ComplianceScore: overall,
		Summary: fmt.Sprintf("Found %d compliance issues across %d frameworks",
			len(runFindings), len(run.Frameworks)),
		CreatedAt: completedAt,
	}
	for _, f := range runFindings {
		switch f.Severity {
		case domain.SeverityCritical:
			snap.CriticalFindings++
		case domain.SeverityHigh:
			snap.HighFindings++
		case domain.SeverityMedium:
			snap.MediumFindings++
		case domain.SeverityLow:
			snap.LowFindings++
		}
	}
	return snap
}

package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/services/findings"
	"github.com/secureaudit/secureaudit/pkg/store/duckdb"
	auditrunstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/auditrun"
	findingstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/finding"
	snapshotstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAnalyzer scripts the analysis capability: a fixed candidate batch, or a
// sequence of errors before success.
type stubAnalyzer struct {
	mu         sync.Mutex
	candidates []domain.CandidateFinding
	errs       []error
	calls      atomic.Int32
	block      bool
}

func (a *stubAnalyzer) Analyze(ctx context.Context, frameworks []string, scanConfig domain.ScanConfig) ([]domain.CandidateFinding, error) {
	a.calls.Add(1)
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		return nil, err
	}
	return a.candidates, nil
}

func testConfig() Config {
	return Config{
		AnalysisTimeout:        time.Second,
		MaxAnalysisAttempts:    3,
		MaxPersistenceAttempts: 2,
		RetryBaseDelay:         time.Millisecond,
	}
}

func setupCoordinator(t *testing.T, analyzer *stubAnalyzer, config Config) *Coordinator {
	db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	runs, err := auditrunstore.NewStore(db)
	require.NoError(t, err)
	findingsRows, err := findingstore.NewStore(db)
	require.NoError(t, err)
	snapshots, err := snapshotstore.NewStore(db)
	require.NoError(t, err)
	findingsSvc, err := findings.NewService(findingsRows)
	require.NoError(t, err)

	c, err := NewCoordinator(db, runs, findingsSvc, snapshots, analyzer, nil, config)
	require.NoError(t, err)
	return c
}

func gdprCandidates() []domain.CandidateFinding {
	return []domain.CandidateFinding{
		{
			Title:        "S3 Bucket Public Access",
			Description:  "bucket allows public reads",
			Severity:     domain.SeverityCritical,
			ResourceType: "S3_BUCKET",
			ResourceID:   "bucket-1",
			Frameworks:   []string{"GDPR"},
		},
		{
			Title:        "S3 Bucket Encryption Disabled",
			Description:  "bucket is not encrypted at rest",
			Severity:     domain.SeverityCritical,
			ResourceType: "S3_BUCKET",
			ResourceID:   "bucket-2",
			Frameworks:   []string{"GDPR"},
		},
	}
}

func TestStartAuditRun(t *testing.T) {
	t.Run("completes a run and scores both frameworks", func(t *testing.T) {
		analyzer := &stubAnalyzer{candidates: gdprCandidates()}
		c := setupCoordinator(t, analyzer, testConfig())
		ctx := context.Background()

		run, created, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR", "SOC2"}, nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, domain.RunStatusPending, run.Status)

		c.Wait()

		final, err := c.GetAuditRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, final.Status)
		assert.Equal(t, 2, final.FindingsCount)
		assert.Equal(t, 0.0, final.FrameworkScores["GDPR"], "two CRITICAL findings exhaust the framework")
		assert.Equal(t, 100.0, final.FrameworkScores["SOC2"])
		assert.Equal(t, 50.0, final.ComplianceScore)
		assert.Empty(t, final.ErrorMessage)
		require.NotNil(t, final.CompletedAt)

		snap, err := c.GetSnapshot(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, 2, snap.TotalFindings)
		assert.Equal(t, 2, snap.CriticalFindings)
		assert.Equal(t, 50.0, snap.ComplianceScore)
	})

	t.Run("duplicate id returns the existing run", func(t *testing.T) {
		analyzer := &stubAnalyzer{candidates: gdprCandidates()}
		c := setupCoordinator(t, analyzer, testConfig())
		ctx := context.Background()

		_, created, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR"}, nil)
		require.NoError(t, err)
		require.True(t, created)
		c.Wait()

		existing, created, err := c.StartAuditRun(ctx, "run-1", []string{"SOC2"}, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, []string{"GDPR"}, existing.Frameworks, "original run is untouched")
		c.Wait()

		assert.EqualValues(t, 1, analyzer.calls.Load(), "no second execution")
	})

	t.Run("concurrent starts create exactly one run", func(t *testing.T) {
		analyzer := &stubAnalyzer{candidates: gdprCandidates()}
		c := setupCoordinator(t, analyzer, testConfig())
		ctx := context.Background()

		var createdCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, created, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR"}, nil)
				if err == nil && created {
					createdCount.Add(1)
				}
			}()
		}
		wg.Wait()
		c.Wait()

		assert.EqualValues(t, 1, createdCount.Load())
		assert.EqualValues(t, 1, analyzer.calls.Load())

		final, err := c.GetAuditRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, final.Status)
	})

	t.Run("generates an id when none is given", func(t *testing.T) {
		analyzer := &stubAnalyzer{}
		c := setupCoordinator(t, analyzer, testConfig())

		run, created, err := c.StartAuditRun(context.Background(), "", []string{"PCI-DSS"}, nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, run.ID)
		c.Wait()
	})

	t.Run("rejects empty and unknown frameworks", func(t *testing.T) {
		c := setupCoordinator(t, &stubAnalyzer{}, testConfig())
		ctx := context.Background()

		_, _, err := c.StartAuditRun(ctx, "run-x", nil, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

		_, _, err = c.StartAuditRun(ctx, "run-x", []string{"GDPR", "HIPAA"}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

		_, err = c.GetAuditRun(ctx, "run-x")
		assert.ErrorIs(t, err, domain.ErrNotFound, "nothing persisted")
	})
}

func TestExecutionFailures(t *testing.T) {
	t.Run("permanent analysis error fails the run", func(t *testing.T) {
		analyzer := &stubAnalyzer{errs: []error{
			domain.NewPermanentAnalysisError(errors.New("model rejected the prompt")),
		}}
		c := setupCoordinator(t, analyzer, testConfig())
		ctx := context.Background()

		_, _, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR"}, nil)
		require.NoError(t, err)
		c.Wait()

		final, err := c.GetAuditRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, final.Status)
		assert.Contains(t, final.ErrorMessage, "analysis_failed")
		assert.Equal(t, 0, final.FindingsCount)
		assert.Equal(t, 0.0, final.ComplianceScore)
		require.NotNil(t, final.CompletedAt)
		assert.EqualValues(t, 1, analyzer.calls.Load(), "no retry on permanent errors")
	})

	t.Run("transient analysis errors are retried", func(t *testing.T) {
		analyzer := &stubAnalyzer{
			errs: []error{
				domain.NewTransientAnalysisError(errors.New("throttled")),
				domain.NewTransientAnalysisError(errors.New("throttled")),
			},
			candidates: gdprCandidates(),
		}
		c := setupCoordinator(t, analyzer, testConfig())
		ctx := context.Background()

		_, _, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR"}, nil)
		require.NoError(t, err)
		c.Wait()

		final, err := c.GetAuditRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, final.Status)
		assert.EqualValues(t, 3, analyzer.calls.Load())
	})

	t.Run("transient errors beyond the attempt budget fail the run", func(t *testing.T) {
		analyzer := &stubAnalyzer{errs: []error{
			domain.NewTransientAnalysisError(errors.New("throttled")),
			domain.NewTransientAnalysisError(errors.New("throttled")),
			domain.NewTransientAnalysisError(errors.New("throttled")),
		}}
		c := setupCoordinator(t, analyzer, testConfig())
		ctx := context.Background()

		_, _, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR"}, nil)
		require.NoError(t, err)
		c.Wait()

		final, err := c.GetAuditRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, final.Status)
		assert.Contains(t, final.ErrorMessage, "analysis_failed")
		assert.EqualValues(t, 3, analyzer.calls.Load())
	})

	t.Run("analysis timeout fails the run with a timeout reason", func(t *testing.T) {
		analyzer := &stubAnalyzer{block: true}
		config := testConfig()
		config.AnalysisTimeout = 20 * time.Millisecond
		c := setupCoordinator(t, analyzer, config)
		ctx := context.Background()

		_, _, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR"}, nil)
		require.NoError(t, err)
		c.Wait()

		final, err := c.GetAuditRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, final.Status)
		assert.Contains(t, final.ErrorMessage, "analysis_timeout")
	})

	t.Run("execution survives request cancellation", func(t *testing.T) {
		analyzer := &stubAnalyzer{candidates: gdprCandidates()}
		c := setupCoordinator(t, analyzer, testConfig())

		reqCtx, cancel := context.WithCancel(context.Background())
		_, _, err := c.StartAuditRun(reqCtx, "run-1", []string{"GDPR"}, nil)
		require.NoError(t, err)
		cancel()
		c.Wait()

		final, err := c.GetAuditRun(context.Background(), "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, final.Status)
	})
}

func TestListAuditRuns(t *testing.T) {
	analyzer := &stubAnalyzer{candidates: gdprCandidates()}
	c := setupCoordinator(t, analyzer, testConfig())
	ctx := context.Background()

	_, _, err := c.StartAuditRun(ctx, "run-1", []string{"GDPR"}, nil)
	require.NoError(t, err)
	c.Wait()
	_, _, err = c.StartAuditRun(ctx, "run-2", []string{"SOC2"}, nil)
	require.NoError(t, err)
	c.Wait()

	all, err := c.ListAuditRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := c.ListAuditRuns(ctx, domain.RunStatusCompleted, 1)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
	assert.Equal(t, domain.RunStatusCompleted, completed[0].Status)
}

func TestGetSnapshotNotFound(t *testing.T) {
	c := setupCoordinator(t, &stubAnalyzer{}, testConfig())

	_, err := c.GetSnapshot(context.Background(), "run-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

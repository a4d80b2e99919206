package finding

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/models/store"
	"github.com/secureaudit/secureaudit/pkg/store/duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (Store, *sql.DB) {
	db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	s, err := NewStore(db)
	require.NoError(t, err)
	return s, db
}

func testFinding(id, runID string, createdAt time.Time) *store.Finding {
	return &store.Finding{
		ID:               id,
		AuditRunID:       runID,
		Title:            "S3 Bucket Public Access",
		Description:      "bucket allows public reads",
		Severity:         string(domain.SeverityHigh),
		ResourceType:     "S3_BUCKET",
		ResourceID:       "bucket-1",
		Frameworks:       []string{"GDPR"},
		Status:           string(domain.FindingStatusOpen),
		RiskScore:        70,
		RemediationSteps: []string{"block public access"},
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestInsert(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	created, err := s.Insert(ctx, testFinding("finding-1", "run-1", now))
	require.NoError(t, err)
	assert.True(t, created)

	t.Run("conflicting id is a no-op", func(t *testing.T) {
		other := testFinding("finding-1", "run-1", now)
		other.Title = "something else"
		created, err := s.Insert(ctx, other)
		require.NoError(t, err)
		assert.False(t, created)

		f, err := s.Get(ctx, "finding-1")
		require.NoError(t, err)
		assert.Equal(t, "S3 Bucket Public Access", f.Title)
	})

	t.Run("round-trips json columns", func(t *testing.T) {
		f, err := s.Get(ctx, "finding-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"GDPR"}, f.Frameworks)
		assert.Equal(t, []string{"block public access"}, f.RemediationSteps)
		assert.Equal(t, 70, f.RiskScore)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Get(ctx, "finding-missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateStatus(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.Insert(ctx, testFinding("finding-1", "run-1", now))
	require.NoError(t, err)

	t.Run("swaps only from the expected status", func(t *testing.T) {
		later := now.Add(time.Minute)
		ok, err := s.UpdateStatus(ctx, "finding-1",
			string(domain.FindingStatusOpen), string(domain.FindingStatusInProgress), later)
		require.NoError(t, err)
		assert.True(t, ok)

		f, err := s.Get(ctx, "finding-1")
		require.NoError(t, err)
		assert.Equal(t, string(domain.FindingStatusInProgress), f.Status)
		assert.Equal(t, later, f.UpdatedAt.UTC())
	})

	t.Run("stale expectation does not fire", func(t *testing.T) {
		ok, err := s.UpdateStatus(ctx, "finding-1",
			string(domain.FindingStatusOpen), string(domain.FindingStatusResolved), now)
		require.NoError(t, err)
		assert.False(t, ok)

		f, err := s.Get(ctx, "finding-1")
		require.NoError(t, err)
		assert.Equal(t, string(domain.FindingStatusInProgress), f.Status)
	})
}

func TestQuery(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 3; i++ {
		f := testFinding(fmt.Sprintf("finding-%d", i), "run-1", base.Add(time.Duration(i)*time.Second))
		f.ResourceID = fmt.Sprintf("bucket-%d", i)
		if i == 2 {
			f.Severity = string(domain.SeverityCritical)
			f.Status = string(domain.FindingStatusInProgress)
		}
		_, err := s.Insert(ctx, f)
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, testFinding("finding-other", "run-2", base))
	require.NoError(t, err)

	t.Run("newest first within a run", func(t *testing.T) {
		rows, err := s.Query(ctx, store.FindingFilter{AuditRunID: "run-1"})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "finding-2", rows[0].ID)
		assert.Equal(t, "finding-0", rows[2].ID)
	})

	t.Run("severity and status filters", func(t *testing.T) {
		rows, err := s.Query(ctx, store.FindingFilter{
			AuditRunID: "run-1",
			Severity:   string(domain.SeverityCritical),
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "finding-2", rows[0].ID)

		rows, err = s.Query(ctx, store.FindingFilter{Status: string(domain.FindingStatusOpen)})
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("CountByRun scopes to the run", func(t *testing.T) {
		count, err := s.CountByRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		count, err = s.CountByRun(ctx, "run-absent")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestInsertInTransaction(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	txCtx := duckdb.WithTransaction(ctx, tx)

	created, err := s.Insert(txCtx, testFinding("finding-tx", "run-1", now))
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, tx.Rollback())

	_, err = s.Get(ctx, "finding-tx")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

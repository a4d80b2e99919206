package auditrun

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

func pendingRun(id string, createdAt time.Time) *store.AuditRun {
	return &store.AuditRun{
		ID:         id,
		Status:     string(domain.RunStatusPending),
		Frameworks: []string{"GDPR", "SOC2"},
		ScanConfig: []byte(`{"resources":[]}`),
		CreatedAt:  createdAt,
	}
}

func TestCreate(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("creates a new run", func(t *testing.T) {
		created, err := s.Create(ctx, pendingRun("run-1", now))
		require.NoError(t, err)
		assert.True(t, created)

		run, err := s.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, string(domain.RunStatusPending), run.Status)
		assert.Equal(t, []string{"GDPR", "SOC2"}, run.Frameworks)
		assert.Nil(t, run.CompletedAt)
		assert.Nil(t, run.FrameworkScores)
	})

	t.Run("second create with the same id is a no-op", func(t *testing.T) {
		duplicate := pendingRun("run-1", now)
		duplicate.Frameworks = []string{"PCI-DSS"}
		created, err := s.Create(ctx, duplicate)
		require.NoError(t, err)
		assert.False(t, created)

		run, err := s.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"GDPR", "SOC2"}, run.Frameworks, "original row survives")
	})
}

func TestGet(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Get(context.Background(), "run-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.Create(ctx, pendingRun("run-1", now))
	require.NoError(t, err)

	t.Run("MarkRunning only fires from PENDING", func(t *testing.T) {
		ok, err := s.MarkRunning(ctx, "run-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.MarkRunning(ctx, "run-1")
		require.NoError(t, err)
		assert.False(t, ok, "already RUNNING")
	})

	t.Run("Complete records counters and scores", func(t *testing.T) {
		completedAt := now.Add(time.Minute)
		scores := map[string]float64{"GDPR": 66.7, "SOC2": 100}
		ok, err := s.Complete(ctx, "run-1", 3, 83.4, scores, completedAt)
		require.NoError(t, err)
		assert.True(t, ok)

		run, err := s.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, string(domain.RunStatusCompleted), run.Status)
		assert.Equal(t, 3, run.FindingsCount)
		assert.Equal(t, 83.4, run.ComplianceScore)
		assert.Equal(t, scores, run.FrameworkScores)
		require.NotNil(t, run.CompletedAt)
		assert.Equal(t, completedAt, run.CompletedAt.UTC())
	})

	t.Run("terminal runs reject further transitions", func(t *testing.T) {
		ok, err := s.Complete(ctx, "run-1", 9, 1, nil, now)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Fail(ctx, "run-1", "too late", now)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.MarkRunning(ctx, "run-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Fail fires from PENDING or RUNNING", func(t *testing.T) {
		_, err := s.Create(ctx, pendingRun("run-2", now))
		require.NoError(t, err)

		completedAt := now.Add(time.Second)
		ok, err := s.Fail(ctx, "run-2", "analysis_failed: provider unreachable", completedAt)
		require.NoError(t, err)
		assert.True(t, ok)

		run, err := s.Get(ctx, "run-2")
		require.NoError(t, err)
		assert.Equal(t, string(domain.RunStatusFailed), run.Status)
		assert.Equal(t, "analysis_failed: provider unreachable", run.ErrorMessage)
		require.NotNil(t, run.CompletedAt)
	})
}

func TestList(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		_, err := s.Create(ctx, pendingRun(id, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	ok, err := s.MarkRunning(ctx, "run-b")
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("newest first", func(t *testing.T) {
		runs, err := s.List(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run-c", runs[0].ID)
		assert.Equal(t, "run-a", runs[2].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		runs, err := s.List(ctx, string(domain.RunStatusRunning), 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "run-b", runs[0].ID)
	})

	t.Run("limit applies after ordering", func(t *testing.T) {
		runs, err := s.List(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-c", runs[0].ID)
	})
}

func TestCreateQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_runs").WillReturnError(sql.ErrConnDone)

	s, err := NewStore(db)
	require.NoError(t, err)

	_, err = s.Create(context.Background(), pendingRun("run-1", time.Now().UTC()))
	assert.ErrorContains(t, err, "insert audit run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInTransaction(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("rolled back create leaves no row", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		txCtx := duckdb.WithTransaction(ctx, tx)

		created, err := s.Create(txCtx, pendingRun("run-tx", now))
		require.NoError(t, err)
		assert.True(t, created)
		require.NoError(t, tx.Rollback())

		_, err = s.Get(ctx, "run-tx")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("committed create is visible", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		txCtx := duckdb.WithTransaction(ctx, tx)

		_, err = s.Create(txCtx, pendingRun("run-tx", now))
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		run, err := s.Get(ctx, "run-tx")
		require.NoError(t, err)
		assert.Equal(t, string(domain.RunStatusPending), run.Status)
	})
}

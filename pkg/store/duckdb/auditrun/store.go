package auditrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/models/store"
	"github.com/secureaudit/secureaudit/pkg/store/duckdb"
)

// Store owns the audit_runs table. Create is atomic create-if-absent so a run
// id doubles as an idempotency key; the transition methods are conditional
// updates that only fire from the expected prior status.
type Store interface {
	Create(ctx context.Context, run *store.AuditRun) (bool, error)
	Get(ctx context.Context, id string) (*store.AuditRun, error)
	List(ctx context.Context, status string, limit int) ([]*store.AuditRun, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id string, findingsCount int, score float64,
		frameworkScores map[string]float64, completedAt time.Time) (bool, error)
	Fail(ctx context.Context, id string, errorMessage string, completedAt time.Time) (bool, error)
}

type defaultStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &defaultStore{db: db}, nil
}

func (s *defaultStore) Create(ctx context.Context, run *store.AuditRun) (bool, error) {
	frameworks, err := json.Marshal(run.Frameworks)
	if err != nil {
		return false, fmt.Errorf("marshal frameworks: %w", err)
	}

	scanConfig := run.ScanConfig
	if len(scanConfig) == 0 {
		scanConfig = []byte("{}")
	}

	query := `
		INSERT INTO audit_runs (
			id, status, frameworks, scan_config, error_message,
			findings_count, compliance_score, framework_scores, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL)
		ON CONFLICT (id) DO NOTHING`

	res, err := s.exec(ctx, query,
		run.ID,
		run.Status,
		string(frameworks),
		string(scanConfig),
		run.ErrorMessage,
		run.FindingsCount,
		run.ComplianceScore,
		run.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert audit run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert audit run: %w", err)
	}
	return affected > 0, nil
}

func (s *defaultStore) Get(ctx context.Context, id string) (*store.AuditRun, error) {
	query := `
		SELECT id, status, frameworks, scan_config, error_message,
		       findings_count, compliance_score, framework_scores, created_at, completed_at
		FROM audit_runs
		WHERE id = ?`

	run, err := scanAuditRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audit run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit run: %w", err)
	}
	return run, nil
}

func (s *defaultStore) List(ctx context.Context, status string, limit int) ([]*store.AuditRun, error) {
	query := `
		SELECT id, status, frameworks, scan_config, error_message,
		       findings_count, compliance_score, framework_scores, created_at, completed_at
		FROM audit_runs`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*store.AuditRun, 0)
	for rows.Next() {
		run, err := scanAuditRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list audit runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *defaultStore) MarkRunning(ctx context.Context, id string) (bool, error) {
	query := `UPDATE audit_runs SET status = ? WHERE id = ? AND status = ?`
	res, err := s.exec(ctx, query, string(domain.RunStatusRunning), id, string(domain.RunStatusPending))
	if err != nil {
		return false, fmt.Errorf("mark audit run running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark audit run running: %w", err)
	}
	return affected > 0, nil
}

func (s *defaultStore) Complete(
	ctx context.Context,
	id string,
	findingsCount int,
	score float64,
	frameworkScores map[string]float64,
	completedAt time.Time,
) (bool, error) {
	scores, err := json.Marshal(frameworkScores)
	if err != nil {
		return false, fmt.Errorf("marshal framework scores: %w", err)
	}

	query := `
		UPDATE audit_runs
		SET status = ?, findings_count = ?, compliance_score = ?, framework_scores = ?, completed_at = ?
		WHERE id = ? AND status = ?`
	res, err := s.exec(ctx, query,
		string(domain.RunStatusCompleted), findingsCount, score, string(scores), completedAt,
		id, string(domain.RunStatusRunning),
	)
	if err != nil {
		return false, fmt.Errorf("complete audit run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete audit run: %w", err)
	}
	return affected > 0, nil
}

func (s *defaultStore) Fail(ctx context.Context, id string, errorMessage string, completedAt time.Time) (bool, error) {
	query := `
		UPDATE audit_runs
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`
	res, err := s.exec(ctx, query,
		string(domain.RunStatusFailed), errorMessage, completedAt,
		id, string(domain.RunStatusPending), string(domain.RunStatusRunning),
	)
	if err != nil {
		return false, fmt.Errorf("fail audit run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail audit run: %w", err)
	}
	return affected > 0, nil
}

func (s *defaultStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if tx := duckdb.GetTransaction(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditRun(row rowScanner) (*store.AuditRun, error) {
	var (
		run         store.AuditRun
		frameworks  []byte
		scanConfig  []byte
		scores      sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&run.ID,
		&run.Status,
		&frameworks,
		&scanConfig,
		&run.ErrorMessage,
		&run.FindingsCount,
		&run.ComplianceScore,
		&scores,
		&run.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(frameworks, &run.Frameworks); err != nil {
		return nil, fmt.Errorf("unmarshal frameworks: %w", err)
	}
	run.ScanConfig = scanConfig
	if scores.Valid && scores.String != "" {
		if err := json.Unmarshal([]byte(scores.String), &run.FrameworkScores); err != nil {
			return nil, fmt.Errorf("unmarshal framework scores: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

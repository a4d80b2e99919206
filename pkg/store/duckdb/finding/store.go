package finding

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

// Store owns the findings table. Insert is create-if-absent keyed by the
// content fingerprint id, which is what makes ingestion retry-safe.
// UpdateStatus is a compare-and-swap on the current status.
type Store interface {
	Insert(ctx context.Context, f *store.Finding) (bool, error)
	Get(ctx context.Context, id string) (*store.Finding, error)
	UpdateStatus(ctx context.Context, id string, from, to string, updatedAt time.Time) (bool, error)
	Query(ctx context.Context, filter store.FindingFilter) ([]*store.Finding, error)
	CountByRun(ctx context.Context, auditRunID string) (int, error)
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

func (s *defaultStore) Insert(ctx context.Context, f *store.Finding) (bool, error) {
	frameworks, err := json.Marshal(f.Frameworks)
	if err != nil {
		return false, fmt.Errorf("marshal frameworks: %w", err)
	}
	steps, err := json.Marshal(f.RemediationSteps)
	if err != nil {
		return false, fmt.Errorf("marshal remediation steps: %w", err)
	}

	query := `
		INSERT INTO findings (
			id, audit_run_id, title, description, severity, resource_type,
			resource_id, frameworks, status, risk_score, remediation_steps,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	res, err := s.exec(ctx, query,
		f.ID,
		f.AuditRunID,
		f.Title,
		f.Description,
		f.Severity,
		f.ResourceType,
		f.ResourceID,
		string(frameworks),
		f.Status,
		f.RiskScore,
		string(steps),
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert finding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert finding: %w", err)
	}
	return affected > 0, nil
}

func (s *defaultStore) Get(ctx context.Context, id string) (*store.Finding, error) {
	query := selectColumns + ` WHERE id = ?`
	f, err := scanFinding(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("finding %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}
	return f, nil
}

func (s *defaultStore) UpdateStatus(ctx context.Context, id string, from, to string, updatedAt time.Time) (bool, error) {
	query := `UPDATE findings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := s.exec(ctx, query, to, updatedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("update finding status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update finding status: %w", err)
	}
	return affected > 0, nil
}

func (s *defaultStore) Query(ctx context.Context, filter store.FindingFilter) ([]*store.Finding, error) {
	query := selectColumns
	clauses := []string{}
	args := []interface{}{}

	if filter.AuditRunID != "" {
		clauses = append(clauses, "audit_run_id = ?")
		args = append(args, filter.AuditRunID)
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.ResourceType != "" {
		clauses = append(clauses, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := make([]*store.Finding, 0)
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("query findings: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *defaultStore) CountByRun(ctx context.Context, auditRunID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE audit_run_id = ?`, auditRunID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}
	return count, nil
}

func (s *defaultStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if tx := duckdb.GetTransaction(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

const selectColumns = `
	SELECT id, audit_run_id, title, description, severity, resource_type,
	       resource_id, frameworks, status, risk_score, remediation_steps,
	       created_at, updated_at
	FROM findings`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFinding(row rowScanner) (*store.Finding, error) {
	var (
		f          store.Finding
		frameworks []byte
		steps      []byte
	)
	err := row.Scan(
		&f.ID,
		&f.AuditRunID,
		&f.Title,
		&f.Description,
		&f.Severity,
		&f.ResourceType,
		&f.ResourceID,
		&frameworks,
		&f.Status,
		&f.RiskScore,
		&steps,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(frameworks, &f.Frameworks); err != nil {
		return nil, fmt.Errorf("unmarshal frameworks: %w", err)
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &f.RemediationSteps); err != nil {
			return nil, fmt.Errorf("unmarshal remediation steps: %w", err)
		}
	}
	return &f, nil
}

package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/models/store"
	"github.com/secureaudit/secureaudit/pkg/store/duckdb"
)

// Store owns the compliance_snapshots table. audit_run_id is the primary key,
// so each run finalizes into at most one snapshot.
type Store interface {
	Insert(ctx context.Context, s *store.ComplianceSnapshot) (bool, error)
	GetByRun(ctx context.Context, auditRunID string) (*store.ComplianceSnapshot, error)
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

func (s *defaultStore) Insert(ctx context.Context, snap *store.ComplianceSnapshot) (bool, error) {
	frameworks, err := json.Marshal(snap.Frameworks)
	if err != nil {
		return false, fmt.Errorf("marshal frameworks: %w", err)
	}

	query := `
		INSERT INTO compliance_snapshots (
			id, audit_run_id, frameworks, total_findings, critical_findings,
			high_findings, medium_findings, low_findings, compliance_score,
			summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (audit_run_id) DO NOTHING`

	res, err := s.exec(ctx, query,
		snap.ID,
		snap.AuditRunID,
		string(frameworks),
		snap.TotalFindings,
		snap.CriticalFindings,
		snap.HighFindings,
		snap.MediumFindings,
		snap.LowFindings,
		snap.ComplianceScore,
		snap.Summary,
		snap.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return affected > 0, nil
}

func (s *defaultStore) GetByRun(ctx context.Context, auditRunID string) (*store.ComplianceSnapshot, error) {
	query := `
		SELECT id, audit_run_id, frameworks, total_findings, critical_findings,
		       high_findings, medium_findings, low_findings, compliance_score,
		       summary, created_at
		FROM compliance_snapshots
		WHERE audit_run_id = ?`

	var (
		snap       store.ComplianceSnapshot
		frameworks []byte
	)
	err := s.db.QueryRowContext(ctx, query, auditRunID).Scan(
		&snap.ID,
		&snap.AuditRunID,
		&frameworks,
		&snap.TotalFindings,
		&snap.CriticalFindings,
		&snap.HighFindings,
		&snap.MediumFindings,
		&snap.LowFindings,
		&snap.ComplianceScore,
		&snap.Summary,
		&snap.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot for run %s: %w", auditRunID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	if err := json.Unmarshal(frameworks, &snap.Frameworks); err != nil {
		return nil, fmt.Errorf("unmarshal frameworks: %w", err)
	}
	return &snap, nil
}

func (s *defaultStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if tx := duckdb.GetTransaction(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

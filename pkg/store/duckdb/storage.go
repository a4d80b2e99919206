package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
)

const AuditRunsSchema = `
	CREATE TABLE IF NOT EXISTS audit_runs (
		id VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		frameworks JSON NOT NULL,
		scan_config JSON,
		error_message VARCHAR NOT NULL DEFAULT '',
		findings_count INTEGER NOT NULL DEFAULT 0,
		compliance_score DOUBLE NOT NULL DEFAULT 0,
		framework_scores JSON,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NULL,
		PRIMARY KEY (id)
	);
`

const FindingsSchema = `
	CREATE TABLE IF NOT EXISTS findings (
		id VARCHAR NOT NULL,
		audit_run_id VARCHAR NOT NULL,
		title VARCHAR NOT NULL,
		description VARCHAR NOT NULL DEFAULT '',
		severity VARCHAR NOT NULL,
		resource_type VARCHAR NOT NULL DEFAULT '',
		resource_id VARCHAR NOT NULL DEFAULT '',
		frameworks JSON NOT NULL,
		status VARCHAR NOT NULL,
		risk_score INTEGER NOT NULL,
		remediation_steps JSON,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (id)
	);
`

const ComplianceSnapshotsSchema = `
	CREATE TABLE IF NOT EXISTS compliance_snapshots (
		id VARCHAR NOT NULL,
		audit_run_id VARCHAR NOT NULL,
		frameworks JSON NOT NULL,
		total_findings INTEGER NOT NULL,
		critical_findings INTEGER NOT NULL,
		high_findings INTEGER NOT NULL,
		medium_findings INTEGER NOT NULL,
		low_findings INTEGER NOT NULL,
		compliance_score DOUBLE NOT NULL,
		summary VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (audit_run_id)
	);
`

var bootQueries = []string{
	AuditRunsSchema,
	FindingsSchema,
	ComplianceSnapshotsSchema,
}

type Settings struct {
	DbPath string
}

func NewDB(settings Settings) (*sql.DB, error) {
	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=4", settings.DbPath), func(exec driver.ExecerContext) error {
		for _, query := range bootQueries {
			_, err := exec.ExecContext(context.Background(), query, nil)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	return db, nil
}

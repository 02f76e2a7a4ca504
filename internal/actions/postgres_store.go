package actions

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRecorder persists action audit records in PostgreSQL.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates a PostgreSQL-backed audit recorder.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Migrate creates the action_audit table if it doesn't exist.
func (r *PostgresRecorder) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS action_audit (
			id             VARCHAR(40) PRIMARY KEY,
			evaluation_id  VARCHAR(40) NOT NULL,
			customer_id    VARCHAR(64) NOT NULL,
			action         VARCHAR(64) NOT NULL,
			result         VARCHAR(10) NOT NULL CHECK (result IN ('ok', 'error', 'skipped')),
			error          TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_action_audit_evaluation
			ON action_audit (evaluation_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_action_audit_customer
			ON action_audit (customer_id, created_at DESC);
	`)
	return err
}

// RecordAction inserts one audit row.
func (r *PostgresRecorder) RecordAction(ctx context.Context, rec *AuditRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO action_audit (id, evaluation_id, customer_id, action, result, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		rec.ID,
		rec.EvaluationID,
		rec.CustomerID,
		rec.Action,
		rec.Result,
		rec.Error,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record action audit: %w", err)
	}
	return nil
}

// ByEvaluation returns the audit rows for one evaluation in execution order.
func (r *PostgresRecorder) ByEvaluation(ctx context.Context, evaluationID string) ([]*AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, evaluation_id, customer_id, action, result, error, created_at
		FROM action_audit
		WHERE evaluation_id = $1
		ORDER BY created_at
	`, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.EvaluationID, &rec.CustomerID, &rec.Action, &rec.Result, &rec.Error, &rec.CreatedAt); err != nil {
			continue
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}

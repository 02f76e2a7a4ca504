package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbd888/riskline/internal/fraud"
)

// PostgresStore persists reports in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed report store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the reports table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reports (
			id             VARCHAR(40) PRIMARY KEY,
			evaluation_id  VARCHAR(40) NOT NULL DEFAULT '',
			customer_id    VARCHAR(64) NOT NULL,
			reported_by    VARCHAR(64) NOT NULL DEFAULT '',
			reason         TEXT NOT NULL,
			status         VARCHAR(20) NOT NULL CHECK (status IN ('UNDER_INVESTIGATION', 'CONFIRMED', 'DISMISSED')),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_reports_customer
			ON reports (customer_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_reports_confirmed
			ON reports (customer_id) WHERE status = 'CONFIRMED';
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, report *fraud.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, evaluation_id, customer_id, reported_by, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		report.ID,
		report.EvaluationID,
		report.CustomerID,
		report.ReportedBy,
		report.Reason,
		string(report.Status),
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*fraud.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, evaluation_id, customer_id, reported_by, reason, status, created_at, updated_at
		FROM reports
		WHERE id = $1
	`, id)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (s *PostgresStore) Update(ctx context.Context, report *fraud.Report) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, report.ID, string(report.Status), report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]*fraud.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, evaluation_id, customer_id, reported_by, reason, status, created_at, updated_at
		FROM reports
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*fraud.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			continue
		}
		result = append(result, report)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CountConfirmed(ctx context.Context, customerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reports
		WHERE customer_id = $1 AND status = 'CONFIRMED'
	`, customerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed reports: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*fraud.Report, error) {
	var r fraud.Report
	var status string
	if err := row.Scan(&r.ID, &r.EvaluationID, &r.CustomerID, &r.ReportedBy, &r.Reason, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = fraud.ReportStatus(status)
	return &r, nil
}

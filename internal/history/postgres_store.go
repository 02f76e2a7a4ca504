package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

// PostgresStore persists evaluations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed evaluation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the evaluations and customer_locations tables if they
// don't exist. Production deployments run the goose migrations instead;
// this is the dev bootstrap path.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS evaluations (
			id                  VARCHAR(40) PRIMARY KEY,
			correlation_id      VARCHAR(64) NOT NULL DEFAULT '',
			transaction_id      VARCHAR(64) NOT NULL DEFAULT '',
			customer_id         VARCHAR(64) NOT NULL,
			amount              NUMERIC(20,2) NOT NULL,
			currency            VARCHAR(8) NOT NULL DEFAULT '',
			ip_address          VARCHAR(45) NOT NULL DEFAULT '',
			device_fingerprint  VARCHAR(128) NOT NULL DEFAULT '',
			session_id          VARCHAR(64) NOT NULL DEFAULT '',
			score               INTEGER NOT NULL CHECK (score >= 0 AND score <= 1000),
			risk_level          VARCHAR(10) NOT NULL CHECK (risk_level IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
			recommendation      VARCHAR(15) NOT NULL,
			rule_matches        JSONB NOT NULL DEFAULT '[]',
			reason_codes        JSONB NOT NULL DEFAULT '[]',
			model_score         INTEGER NOT NULL DEFAULT 0,
			model_version       VARCHAR(64) NOT NULL DEFAULT '',
			velocity            JSONB NOT NULL DEFAULT '{}',
			device              JSONB NOT NULL DEFAULT '{}',
			geographic          JSONB NOT NULL DEFAULT '{}',
			confidence          INTEGER NOT NULL DEFAULT 0,
			compliance_score    INTEGER NOT NULL DEFAULT 0,
			actions             JSONB NOT NULL DEFAULT '[]',
			fallback            BOOLEAN NOT NULL DEFAULT FALSE,
			evaluation_time_ms  BIGINT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at          TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_evaluations_customer
			ON evaluations (customer_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_evaluations_device
			ON evaluations (device_fingerprint) WHERE device_fingerprint <> '';

		CREATE INDEX IF NOT EXISTS idx_evaluations_expires
			ON evaluations (expires_at);

		CREATE INDEX IF NOT EXISTS idx_evaluations_high_scores
			ON evaluations (created_at DESC) WHERE score > 800;

		CREATE TABLE IF NOT EXISTS customer_locations (
			customer_id  VARCHAR(64) PRIMARY KEY,
			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,
			country      VARCHAR(2) NOT NULL DEFAULT '',
			city         VARCHAR(128) NOT NULL DEFAULT '',
			seen_at      TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, eval *fraud.Evaluation) error {
	ruleMatches, err := json.Marshal(eval.RuleMatches)
	if err != nil {
		return fmt.Errorf("failed to marshal rule matches: %w", err)
	}
	reasonCodes, _ := json.Marshal(eval.ReasonCodes)
	velocity, _ := json.Marshal(eval.Velocity)
	device, _ := json.Marshal(eval.Device)
	geo, _ := json.Marshal(eval.Geo)
	actions, _ := json.Marshal(eval.Actions)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (
			id, correlation_id, transaction_id, customer_id, amount, currency,
			ip_address, device_fingerprint, session_id, score, risk_level,
			recommendation, rule_matches, reason_codes, model_score, model_version,
			velocity, device, geographic, confidence, compliance_score, actions,
			fallback, evaluation_time_ms, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
	`,
		eval.ID,
		eval.CorrelationID,
		eval.TransactionID,
		eval.CustomerID,
		eval.Amount,
		eval.Currency,
		eval.IPAddress,
		eval.DeviceFingerprint,
		eval.SessionID,
		eval.Score,
		string(eval.Level),
		string(eval.Recommendation),
		ruleMatches,
		reasonCodes,
		eval.ModelScore,
		eval.ModelVersion,
		velocity,
		device,
		geo,
		eval.Confidence,
		eval.ComplianceScore,
		actions,
		eval.Fallback,
		eval.EvaluationTimeMs,
		eval.CreatedAt,
		eval.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}
	return nil
}

const evaluationColumns = `
	id, correlation_id, transaction_id, customer_id, amount, currency,
	ip_address, device_fingerprint, session_id, score, risk_level,
	recommendation, rule_matches, reason_codes, model_score, model_version,
	velocity, device, geographic, confidence, compliance_score, actions,
	fallback, evaluation_time_ms, created_at, expires_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*fraud.Evaluation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+evaluationColumns+`
		FROM evaluations
		WHERE id = $1
	`, id)

	eval, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return eval, nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string, since time.Time) ([]*fraud.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+evaluationColumns+`
		FROM evaluations
		WHERE customer_id = $1 AND created_at >= $2
		ORDER BY created_at
	`, customerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*fraud.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			continue
		}
		result = append(result, eval)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Profile(ctx context.Context, customerID string) (*fraud.CustomerProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(amount), 0),
		       COALESCE(MIN(created_at), 'epoch'::timestamptz),
		       COALESCE(MAX(created_at), 'epoch'::timestamptz)
		FROM evaluations
		WHERE customer_id = $1
	`, customerID)

	profile := &fraud.CustomerProfile{CustomerID: customerID}
	var avg decimal.Decimal
	var first, last time.Time
	if err := row.Scan(&profile.TransactionCount, &avg, &first, &last); err != nil {
		return nil, fmt.Errorf("failed to aggregate profile: %w", err)
	}
	if profile.TransactionCount > 0 {
		profile.AvgAmount = avg.Round(2)
		profile.FirstSeen = first
		profile.LastTransaction = last
	}
	return profile, nil
}

func (s *PostgresStore) SeenDevice(ctx context.Context, customerID, fingerprint string) (bool, error) {
	var seen bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM evaluations
			WHERE customer_id = $1 AND device_fingerprint = $2
		)
	`, customerID, fingerprint).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("failed to check device: %w", err)
	}
	return seen, nil
}

func (s *PostgresStore) DeviceCustomers(ctx context.Context, fingerprint string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT customer_id)
		FROM evaluations
		WHERE device_fingerprint = $1
	`, fingerprint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count device customers: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SessionCount(ctx context.Context, customerID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT session_id)
		FROM evaluations
		WHERE customer_id = $1 AND session_id <> '' AND created_at >= $2
	`, customerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) LastLocation(ctx context.Context, customerID string) (*fraud.Location, error) {
	var loc fraud.Location
	err := s.db.QueryRowContext(ctx, `
		SELECT latitude, longitude, country, city, seen_at
		FROM customer_locations
		WHERE customer_id = $1
	`, customerID).Scan(&loc.Latitude, &loc.Longitude, &loc.Country, &loc.City, &loc.SeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last location: %w", err)
	}
	return &loc, nil
}

func (s *PostgresStore) RecordLocation(ctx context.Context, customerID string, loc *fraud.Location) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_locations (customer_id, latitude, longitude, country, city, seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			seen_at = EXCLUDED.seen_at
	`, customerID, loc.Latitude, loc.Longitude, loc.Country, loc.City, loc.SeenAt)
	if err != nil {
		return fmt.Errorf("failed to record location: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM evaluations WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired evaluations: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (*fraud.Evaluation, error) {
	var e fraud.Evaluation
	var level, recommendation string
	var ruleMatches, reasonCodes, velocity, device, geo, actions []byte

	err := row.Scan(
		&e.ID, &e.CorrelationID, &e.TransactionID, &e.CustomerID, &e.Amount,
		&e.Currency, &e.IPAddress, &e.DeviceFingerprint, &e.SessionID,
		&e.Score, &level, &recommendation, &ruleMatches, &reasonCodes,
		&e.ModelScore, &e.ModelVersion, &velocity, &device, &geo,
		&e.Confidence, &e.ComplianceScore, &actions, &e.Fallback,
		&e.EvaluationTimeMs, &e.CreatedAt, &e.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	e.Level = fraud.Level(level)
	e.Recommendation = fraud.Recommendation(recommendation)
	_ = json.Unmarshal(ruleMatches, &e.RuleMatches)
	_ = json.Unmarshal(reasonCodes, &e.ReasonCodes)
	_ = json.Unmarshal(velocity, &e.Velocity)
	_ = json.Unmarshal(device, &e.Device)
	_ = json.Unmarshal(geo, &e.Geo)
	_ = json.Unmarshal(actions, &e.Actions)
	return &e, nil
}

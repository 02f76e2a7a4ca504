// Package history persists fraud evaluations and serves the read models
// the signal analyzers aggregate over.
//
// Evaluation records are write-once: the orchestrator records each result,
// and later evaluations for the same customer read those records back as
// velocity, device and session history. Every record carries its own
// expiry; the retention sweeper deletes records past it.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
)

// ErrNotFound is returned when an evaluation id has no record.
var ErrNotFound = errors.New("evaluation not found")

// Store is the full persistence surface. MemoryStore and PostgresStore
// implement it; the analyzers depend only on narrow slices of it.
type Store interface {
	// Record writes one evaluation. Records are immutable once written.
	Record(ctx context.Context, eval *fraud.Evaluation) error

	// Get returns one evaluation by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*fraud.Evaluation, error)

	// ListByCustomer returns the customer's evaluations created at or
	// after since, oldest first.
	ListByCustomer(ctx context.Context, customerID string, since time.Time) ([]*fraud.Evaluation, error)

	// Profile aggregates the customer's recorded history. Chargeback
	// counts are layered on by the caller from the reports store.
	Profile(ctx context.Context, customerID string) (*fraud.CustomerProfile, error)

	// SeenDevice reports whether the fingerprint has ever appeared on a
	// record for this customer.
	SeenDevice(ctx context.Context, customerID, fingerprint string) (bool, error)

	// DeviceCustomers counts the distinct customers the fingerprint has
	// appeared for.
	DeviceCustomers(ctx context.Context, fingerprint string) (int, error)

	// SessionCount counts distinct session ids recorded for the customer
	// since the cutoff.
	SessionCount(ctx context.Context, customerID string, since time.Time) (int, error)

	// LastLocation returns the customer's most recent resolved location.
	// A customer with no location history returns (nil, nil).
	LastLocation(ctx context.Context, customerID string) (*fraud.Location, error)

	// RecordLocation upserts the customer's current resolved location.
	RecordLocation(ctx context.Context, customerID string, loc *fraud.Location) error

	// DeleteExpired removes records whose expiry has passed and returns
	// how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

// RedisStore layers a Redis window cache over another Store. Writes go to
// both; the per-customer velocity window reads (ListByCustomer,
// SessionCount) are served from a sorted set keyed by creation time, so
// the hot path of every evaluation stays off the database. Everything
// else delegates to the inner store.
//
// Cache entries are slim: only the fields the velocity and device
// analyzers read. Full records always come from the inner store.
type RedisStore struct {
	inner  Store
	client *redis.Client
	window time.Duration
	logger *slog.Logger
}

// windowEntry is the cached slice of an evaluation.
type windowEntry struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	SessionID string          `json:"sessionId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewRedisStore wraps inner with a Redis window cache. The window bounds
// how far back cached reads can serve; it should cover the velocity
// lookback.
func NewRedisStore(inner Store, client *redis.Client, window time.Duration, logger *slog.Logger) *RedisStore {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		inner:  inner,
		client: client,
		window: window,
		logger: logger.With("component", "history_cache"),
	}
}

func windowKey(customerID string) string {
	return "riskline:window:" + customerID
}

// Record writes to the inner store first; the cache write is best-effort.
func (s *RedisStore) Record(ctx context.Context, eval *fraud.Evaluation) error {
	if err := s.inner.Record(ctx, eval); err != nil {
		return err
	}

	entry, err := json.Marshal(windowEntry{
		ID:        eval.ID,
		Amount:    eval.Amount,
		SessionID: eval.SessionID,
		CreatedAt: eval.CreatedAt,
	})
	if err != nil {
		return nil
	}

	key := windowKey(eval.CustomerID)
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(eval.CreatedAt.UnixMilli()), Member: entry})
	pipe.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(eval.CreatedAt.Add(-s.window).UnixMilli(), 10))
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("window cache write failed", "customer_id", eval.CustomerID, "error", err)
	}
	return nil
}

// ListByCustomer serves the window from Redis when possible, falling back
// to the inner store on cache miss or error.
func (s *RedisStore) ListByCustomer(ctx context.Context, customerID string, since time.Time) ([]*fraud.Evaluation, error) {
	if time.Since(since) > s.window {
		// Cache cannot cover the requested range.
		return s.inner.ListByCustomer(ctx, customerID, since)
	}

	members, err := s.client.ZRangeByScore(ctx, windowKey(customerID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		s.logger.Warn("window cache read failed, falling back",
			"customer_id", customerID, "error", err)
		return s.inner.ListByCustomer(ctx, customerID, since)
	}
	if len(members) == 0 {
		// Could be a cold cache rather than a truly empty window.
		return s.inner.ListByCustomer(ctx, customerID, since)
	}

	result := make([]*fraud.Evaluation, 0, len(members))
	for _, m := range members {
		var entry windowEntry
		if err := json.Unmarshal([]byte(m), &entry); err != nil {
			continue
		}
		result = append(result, &fraud.Evaluation{
			ID:         entry.ID,
			CustomerID: customerID,
			Amount:     entry.Amount,
			SessionID:  entry.SessionID,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return result, nil
}

// SessionCount counts distinct sessions from the cached window, falling
// back to the inner store when the cache cannot answer.
func (s *RedisStore) SessionCount(ctx context.Context, customerID string, since time.Time) (int, error) {
	if time.Since(since) > s.window {
		return s.inner.SessionCount(ctx, customerID, since)
	}

	members, err := s.client.ZRangeByScore(ctx, windowKey(customerID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil || len(members) == 0 {
		return s.inner.SessionCount(ctx, customerID, since)
	}

	sessions := make(map[string]struct{})
	for _, m := range members {
		var entry windowEntry
		if err := json.Unmarshal([]byte(m), &entry); err != nil || entry.SessionID == "" {
			continue
		}
		sessions[entry.SessionID] = struct{}{}
	}
	return len(sessions), nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*fraud.Evaluation, error) {
	return s.inner.Get(ctx, id)
}

func (s *RedisStore) Profile(ctx context.Context, customerID string) (*fraud.CustomerProfile, error) {
	return s.inner.Profile(ctx, customerID)
}

func (s *RedisStore) SeenDevice(ctx context.Context, customerID, fingerprint string) (bool, error) {
	return s.inner.SeenDevice(ctx, customerID, fingerprint)
}

func (s *RedisStore) DeviceCustomers(ctx context.Context, fingerprint string) (int, error) {
	return s.inner.DeviceCustomers(ctx, fingerprint)
}

func (s *RedisStore) LastLocation(ctx context.Context, customerID string) (*fraud.Location, error) {
	return s.inner.LastLocation(ctx, customerID)
}

func (s *RedisStore) RecordLocation(ctx context.Context, customerID string, loc *fraud.Location) error {
	return s.inner.RecordLocation(ctx, customerID, loc)
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.inner.DeleteExpired(ctx, now)
}

// Ping verifies the Redis connection, for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

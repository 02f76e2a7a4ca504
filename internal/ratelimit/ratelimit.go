// Package ratelimit throttles callers of the fraud evaluation API with a
// per-client token bucket. Anonymous callers are keyed by IP; authenticated
// callers by a prefix of their API key, so one noisy integration cannot
// starve the rest of a NAT.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var throttledTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "riskline",
	Subsystem: "ratelimit",
	Name:      "throttled_total",
	Help:      "Requests rejected because the caller exceeded its rate limit.",
})

func init() {
	prometheus.MustRegister(throttledTotal)
}

// Config configures the limiter.
type Config struct {
	// RequestsPerMinute is the sustained per-caller rate.
	RequestsPerMinute int
	// BurstSize is how far above the sustained rate a caller may spike.
	BurstSize int
	// CleanupInterval is how often idle buckets are evicted.
	CleanupInterval time.Duration
}

// DefaultConfig allows 1 evaluation/sec sustained with bursts of 10.
// The server scales this up from RATE_LIMIT_RPS when set.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks a token bucket per caller key.
type Limiter struct {
	cfg     Config
	mu      sync.RWMutex
	buckets map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// New creates a limiter and starts its eviction loop.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.evictIdle()
	return l
}

// evictIdle drops buckets not seen for two minutes so the map stays
// bounded by active callers, not lifetime callers.
func (l *Limiter) evictIdle() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-2 * time.Minute)
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the eviction loop.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow reports whether the caller identified by key may proceed, and
// consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]

	if !exists {
		// A new caller starts with a full bucket, minus this request.
		l.buckets[key] = &bucket{
			tokens:   float64(l.cfg.BurstSize - 1),
			lastSeen: now,
		}
		return true
	}

	// Refill since the last request, capped at the burst size.
	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * float64(l.cfg.RequestsPerMinute) / 60.0
	if b.tokens > float64(l.cfg.BurstSize) {
		b.tokens = float64(l.cfg.BurstSize)
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}

	return false
}

// Middleware rejects over-limit requests with 429 before they reach the
// evaluation pipeline.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		// Authenticated integrations get their own bucket. Only a key
		// prefix goes into the map key; never the whole credential.
		if apiKey := c.GetHeader("Authorization"); apiKey != "" {
			key = "auth:" + apiKey[:min(20, len(apiKey))]
		}

		if !l.Allow(key) {
			throttledTotal.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

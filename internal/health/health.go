// Package health runs named dependency probes for the readiness endpoint.
// The server registers one checker per backing service it was configured
// with (postgres, redis); CheckAll runs them on demand and reports each
// probe's latency so a degrading dependency shows up before it fails.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the result of one dependency probe.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Checker probes a single dependency.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named checker. Checkers run in registration order.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered checker and returns the aggregate health
// plus per-dependency results. A registry with no checkers is healthy.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		start := time.Now()
		statuses[i] = nc.check(ctx)
		statuses[i].LatencyMS = time.Since(start).Milliseconds()
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

package actions

import (
	"context"
	"sync"
)

// MemoryRecorder keeps audit records in memory. Default for tests and dev.
type MemoryRecorder struct {
	mu      sync.RWMutex
	records []*AuditRecord
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// RecordAction appends one audit record.
func (r *MemoryRecorder) RecordAction(ctx context.Context, rec *AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

// ByEvaluation returns the audit records for one evaluation, in execution
// order.
func (r *MemoryRecorder) ByEvaluation(ctx context.Context, evaluationID string) []*AuditRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*AuditRecord
	for _, rec := range r.records {
		if rec.EvaluationID == evaluationID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

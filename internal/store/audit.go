package store

import (
	"context"
	"sync"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
)

// FunctionCallStore keeps the audit trail of remote function invocations.
// The reconciler reads it to answer "was anything booked" for a session.
type FunctionCallStore interface {
	Record(ctx context.Context, rec *model.FunctionCallRecord) error
	BySession(ctx context.Context, sessionID string) ([]model.FunctionCallRecord, error)
}

// MemoryFunctionCallStore is the in-process FunctionCallStore.
type MemoryFunctionCallStore struct {
	mu      sync.RWMutex
	records map[string][]model.FunctionCallRecord
}

// NewMemoryFunctionCallStore creates an empty audit store.
func NewMemoryFunctionCallStore() *MemoryFunctionCallStore {
	return &MemoryFunctionCallStore{records: make(map[string][]model.FunctionCallRecord)}
}

// Record implements FunctionCallStore.
func (s *MemoryFunctionCallStore) Record(ctx context.Context, rec *model.FunctionCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.SessionID] = append(s.records[rec.SessionID], *rec)
	return nil
}

// BySession implements FunctionCallStore.
func (s *MemoryFunctionCallStore) BySession(ctx context.Context, sessionID string) ([]model.FunctionCallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.FunctionCallRecord(nil), s.records[sessionID]...), nil
}

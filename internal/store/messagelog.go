package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
)

// MessageLog is the append-only, org-scoped record of conversational turns.
// Sequence numbers are assigned at append time and are monotonic within a
// session; reads return messages in sequence order, not arrival order.
type MessageLog interface {
	Append(ctx context.Context, msg *model.Message) (uint64, error)
	List(ctx context.Context, orgID, sessionID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error)
}

// MemoryMessageLog is an in-process MessageLog used in tests and as the
// degraded mode when JetStream is unavailable.
type MemoryMessageLog struct {
	mu       sync.Mutex
	next     uint64
	messages []model.Message
}

// NewMemoryMessageLog creates an empty in-memory log.
func NewMemoryMessageLog() *MemoryMessageLog {
	return &MemoryMessageLog{}
}

// Append implements MessageLog.
func (l *MemoryMessageLog) Append(ctx context.Context, msg *model.Message) (uint64, error) {
	if msg.SessionID == "" || msg.OrgID == "" {
		return 0, fmt.Errorf("message requires session and org ids")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	stored := *msg
	stored.Sequence = l.next
	l.messages = append(l.messages, stored)

	return stored.Sequence, nil
}

// List implements MessageLog.
func (l *MemoryMessageLog) List(ctx context.Context, orgID, sessionID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []model.Message
	for _, msg := range l.messages {
		if msg.OrgID == orgID && msg.SessionID == sessionID && msg.Sequence > afterSequence {
			matched = append(matched, msg)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Sequence < matched[j].Sequence
	})

	hasMore := false
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		hasMore = true
	}

	var lastSeq uint64
	if len(matched) > 0 {
		lastSeq = matched[len(matched)-1].Sequence
	}

	return matched, lastSeq, hasMore, nil
}

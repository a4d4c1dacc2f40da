// Package store holds durable session state: the mutable session header, the
// append-only message log, and the function-call audit trail.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
)

// ErrSessionNotFound is returned when no session exists for the given key.
var ErrSessionNotFound = errors.New("session not found")

// ErrOrgMismatch is returned when an org-scoped read hits a session owned by
// another tenant. Callers must treat it exactly like a missing record.
var ErrOrgMismatch = errors.New("session not found")

// SessionPatch carries the fields one lifecycle event settles. Nil fields are
// left untouched, so applying the same patch twice is idempotent and patches
// commute with each other.
type SessionPatch struct {
	Channel         model.Channel
	From            string
	To              string
	Status          model.SessionStatus
	StartedAt       *time.Time
	EndedAt         *time.Time
	Disposition     string
	Transcript      string
	Turns           []model.Turn
	TurnsWithTools  []model.Turn
	Analysis        map[string]any
	ExtractedFields map[string]string
	RecordingURL    string
	RecordingStored bool
}

// SessionStore is the durable, org-scoped session header store.
type SessionStore interface {
	// CreateOrGet atomically creates the session or returns the existing one.
	// Two near-simultaneous creators for the same id must converge on a
	// single record; the second caller sees created=false. The org binding
	// is set by whichever caller wins and is immutable afterwards.
	CreateOrGet(ctx context.Context, orgID, sessionID string, channel model.Channel) (*model.Session, bool, error)

	// Merge applies a patch field-wise. Unset patch fields never overwrite
	// stored values, and Status only moves forward.
	Merge(ctx context.Context, sessionID string, patch SessionPatch) (*model.Session, error)

	// Get returns the session scoped to one tenant.
	Get(ctx context.Context, orgID, sessionID string) (*model.Session, error)

	// Lookup returns the session by provider id regardless of tenant. Used
	// by the reconciler to resolve org identity from an existing record.
	Lookup(ctx context.Context, sessionID string) (*model.Session, error)

	// List returns all sessions for one tenant, newest first.
	List(ctx context.Context, orgID string, limit, offset int) ([]model.Session, int, error)
}

// MemorySessionStore keeps session headers in memory guarded by a mutex.
// A SQL row with an upsert would serve the same contract in a multi-process
// deployment; the single-process orchestrator only needs the mutex.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*model.Session)}
}

// CreateOrGet implements SessionStore.
func (s *MemorySessionStore) CreateOrGet(ctx context.Context, orgID, sessionID string, channel model.Channel) (*model.Session, bool, error) {
	if sessionID == "" {
		return nil, false, errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		return copySession(existing), false, nil
	}

	now := time.Now()
	sess := &model.Session{
		ID:        sessionID,
		OrgID:     orgID,
		Channel:   channel,
		Status:    model.StatusRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sessionID] = sess

	return copySession(sess), true, nil
}

// Merge implements SessionStore.
func (s *MemorySessionStore) Merge(ctx context.Context, sessionID string, patch SessionPatch) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	applyPatch(sess, patch)
	sess.UpdatedAt = time.Now()

	return copySession(sess), nil
}

// Get implements SessionStore.
func (s *MemorySessionStore) Get(ctx context.Context, orgID, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.OrgID != orgID {
		return nil, ErrOrgMismatch
	}

	return copySession(sess), nil
}

// Lookup implements SessionStore.
func (s *MemorySessionStore) Lookup(ctx context.Context, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return copySession(sess), nil
}

// List implements SessionStore.
func (s *MemorySessionStore) List(ctx context.Context, orgID string, limit, offset int) ([]model.Session, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Session
	for _, sess := range s.sessions {
		if sess.OrgID == orgID {
			out = append(out, *copySession(sess))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	total := len(out)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if limit <= 0 || end > total {
		end = total
	}

	return out[start:end], total, nil
}

// applyPatch merges patch fields into the session. Each field is settled
// independently: unset values never clobber, and the status ratchet only
// moves forward, so patches commute regardless of webhook arrival order.
func applyPatch(sess *model.Session, patch SessionPatch) {
	if patch.Channel != "" && sess.Channel == "" {
		sess.Channel = patch.Channel
	}
	if patch.From != "" {
		sess.From = patch.From
	}
	if patch.To != "" {
		sess.To = patch.To
	}
	if patch.Status != "" && patch.Status.Rank() > sess.Status.Rank() {
		sess.Status = patch.Status
	}
	if patch.StartedAt != nil {
		t := *patch.StartedAt
		sess.StartedAt = &t
	}
	if patch.EndedAt != nil {
		t := *patch.EndedAt
		sess.EndedAt = &t
	}
	if patch.Disposition != "" {
		sess.Disposition = patch.Disposition
	}
	if patch.Transcript != "" {
		sess.Transcript = patch.Transcript
	}
	if len(patch.Turns) > 0 {
		sess.Turns = patch.Turns
	}
	if len(patch.TurnsWithTools) > 0 {
		sess.TurnsWithTools = patch.TurnsWithTools
	}
	if len(patch.Analysis) > 0 {
		sess.Analysis = patch.Analysis
	}
	if len(patch.ExtractedFields) > 0 {
		if sess.ExtractedFields == nil {
			sess.ExtractedFields = make(map[string]string, len(patch.ExtractedFields))
		}
		for k, v := range patch.ExtractedFields {
			sess.ExtractedFields[k] = v
		}
	}
	if patch.RecordingURL != "" && (!sess.RecordingStored || patch.RecordingStored) {
		sess.RecordingURL = patch.RecordingURL
	}
	if patch.RecordingStored {
		sess.RecordingStored = true
	}

	// Duration is derived, not delivered: compute it whenever both
	// timestamps are known, regardless of which event completed the pair.
	if sess.StartedAt != nil && sess.EndedAt != nil && sess.DurationSeconds == nil {
		d := int(sess.EndedAt.Sub(*sess.StartedAt).Seconds())
		if d < 0 {
			d = 0
		}
		sess.DurationSeconds = &d
	}
}

func copySession(sess *model.Session) *model.Session {
	out := *sess
	if sess.StartedAt != nil {
		t := *sess.StartedAt
		out.StartedAt = &t
	}
	if sess.EndedAt != nil {
		t := *sess.EndedAt
		out.EndedAt = &t
	}
	if sess.DurationSeconds != nil {
		d := *sess.DurationSeconds
		out.DurationSeconds = &d
	}
	out.Turns = append([]model.Turn(nil), sess.Turns...)
	out.TurnsWithTools = append([]model.Turn(nil), sess.TurnsWithTools...)
	if sess.Analysis != nil {
		out.Analysis = make(map[string]any, len(sess.Analysis))
		for k, v := range sess.Analysis {
			out.Analysis[k] = v
		}
	}
	if sess.ExtractedFields != nil {
		out.ExtractedFields = make(map[string]string, len(sess.ExtractedFields))
		for k, v := range sess.ExtractedFields {
			out.ExtractedFields[k] = v
		}
	}
	return &out
}

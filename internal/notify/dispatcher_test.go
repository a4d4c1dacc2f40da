package notify

import (
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

// memoryMarker is the in-process Marker used in tests.
type memoryMarker struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMemoryMarker() *memoryMarker {
	return &memoryMarker{claimed: make(map[string]bool)}
}

func (m *memoryMarker) Claim(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[sessionID] {
		return false, nil
	}
	m.claimed[sessionID] = true
	return true, nil
}

func (m *memoryMarker) Release(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, sessionID)
	return nil
}

type capturingSender struct {
	mu   sync.Mutex
	sent []*Notification
}

func (s *capturingSender) Send(ctx context.Context, orgID string, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *capturingSender) all() []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Notification(nil), s.sent...)
}

func waitSent(t *testing.T, s *capturingSender, want int) []*Notification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.all(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d notifications, got %d", want, len(s.all()))
	return nil
}

func analyzedSession(t *testing.T, sessions store.SessionStore, id string, withDuration bool) *model.Session {
	t.Helper()
	ctx := context.Background()
	if _, _, err := sessions.CreateOrGet(ctx, "org-1", id, model.ChannelVoice); err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	patch := store.SessionPatch{
		Status:   model.StatusAnalyzed,
		Analysis: map[string]any{"summary": "booked a cleaning"},
	}
	if withDuration {
		start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		end := start.Add(2 * time.Minute)
		patch.StartedAt, patch.EndedAt = &start, &end
	}
	sess, err := sessions.Merge(ctx, id, patch)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return sess
}

func TestSessionAnalyzed_SendsOnce(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	sender := &capturingSender{}
	d := NewDispatcher(sessions, newMemoryMarker(), sender, 0, 0, logger.NewNop())

	sess := analyzedSession(t, sessions, "s1", true)
	d.SessionAnalyzed(context.Background(), sess)
	d.SessionAnalyzed(context.Background(), sess)

	sent := waitSent(t, sender, 1)
	time.Sleep(50 * time.Millisecond)
	if got := len(sender.all()); got != 1 {
		t.Fatalf("duplicate analyzed event produced %d notifications", got)
	}
	if sent[0].Summary != "booked a cleaning" {
		t.Fatalf("summary = %q", sent[0].Summary)
	}
	if sent[0].DurationSeconds == nil || *sent[0].DurationSeconds != 120 {
		t.Fatalf("duration = %v", sent[0].DurationSeconds)
	}
}

func TestSessionAnalyzed_RereadsUntilDurationSettles(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	sender := &capturingSender{}
	d := NewDispatcher(sessions, newMemoryMarker(), sender, 3, 20*time.Millisecond, logger.NewNop())

	// Analysis arrived before the end event: no duration yet.
	sess := analyzedSession(t, sessions, "s2", false)
	d.SessionAnalyzed(context.Background(), sess)

	// The end event lands while the dispatcher is waiting.
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Minute)
	if _, err := sessions.Merge(context.Background(), "s2", store.SessionPatch{
		StartedAt: &start, EndedAt: &end,
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	sent := waitSent(t, sender, 1)
	if sent[0].DurationSeconds == nil || *sent[0].DurationSeconds != 180 {
		t.Fatalf("duration = %v, re-read should have picked up the end event", sent[0].DurationSeconds)
	}
}

func TestSessionAnalyzed_GivesUpAfterRereadAttempts(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	sender := &capturingSender{}
	d := NewDispatcher(sessions, newMemoryMarker(), sender, 2, 5*time.Millisecond, logger.NewNop())

	sess := analyzedSession(t, sessions, "s3", false)
	d.SessionAnalyzed(context.Background(), sess)

	sent := waitSent(t, sender, 1)
	if sent[0].DurationSeconds != nil {
		t.Fatalf("duration = %v, want nil after giving up", sent[0].DurationSeconds)
	}
}

func TestWebhookSender_PostsJSON(t *testing.T) {
	var got Notification
	received := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		close(received)
	}))
	defer srv.Close()

	sender := NewWebhookSender(func(orgID string) (string, bool) {
		if orgID == "org-1" {
			return srv.URL, true
		}
		return "", false
	})

	dur := 120
	if err := sender.Send(context.Background(), "org-1", &Notification{SessionID: "s4", DurationSeconds: &dur}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-received
	if got.SessionID != "s4" {
		t.Fatalf("payload = %+v", got)
	}

	// A tenant without an endpoint is a silent no-op.
	if err := sender.Send(context.Background(), "org-unknown", &Notification{SessionID: "s5"}); err != nil {
		t.Fatalf("Send to unmapped tenant: %v", err)
	}
}

type flakySender struct {
	mu           sync.Mutex
	failuresLeft int
	sent         []*Notification
}

func (s *flakySender) Send(ctx context.Context, orgID string, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return errors.New("endpoint down")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *flakySender) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (m *memoryMarker) has(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimed[sessionID]
}

func TestSessionAnalyzed_SendFailureAllowsRetry(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	sender := &flakySender{failuresLeft: 1}
	marker := newMemoryMarker()
	d := NewDispatcher(sessions, marker, sender, 0, 0, logger.NewNop())

	sess := analyzedSession(t, sessions, "s6", true)
	d.SessionAnalyzed(context.Background(), sess)

	// The failed send must drop the claim so a provider retry of the
	// analyzed webhook is not swallowed as a duplicate.
	deadline := time.Now().Add(2 * time.Second)
	for marker.has("s6") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if marker.has("s6") {
		t.Fatal("marker still claimed after send failure")
	}

	d.SessionAnalyzed(context.Background(), sess)
	deadline = time.Now().Add(2 * time.Second)
	for sender.delivered() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sender.delivered(); got != 1 {
		t.Fatalf("retry delivered %d notifications", got)
	}
}

package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicvoice-ai/session-orchestrator/internal/booking"
	"github.com/clinicvoice-ai/session-orchestrator/internal/catalog"
	"github.com/clinicvoice-ai/session-orchestrator/internal/channelcfg"
	"github.com/clinicvoice-ai/session-orchestrator/internal/llm"
	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/org"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

type fakeLLM struct {
	mu    sync.Mutex
	reply string
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &llm.CompletionResponse{Content: f.reply}, nil
}
func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return nil }

type nopInvoker struct{}

func (nopInvoker) Invoke(ctx context.Context, function string, params map[string]any, sessionID, orgID string) (*booking.Result, error) {
	return &booking.Result{Success: true, Result: json.RawMessage(`[]`)}, nil
}

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *recordingSpeaker) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func testDeps(t *testing.T, sessions store.SessionStore) Deps {
	t.Helper()
	dir := org.NewMemoryDirectory(&model.Organization{
		ID: "org-1", Slug: "northside", PhoneNumbers: []string{"+15550001111"},
	})
	client := &fakeLLM{reply: "hello there"}
	return Deps{
		Resolver:    org.NewResolver(dir, "org-default", logger.NewNop()),
		Configs:     channelcfg.NewCache(channelcfg.NewMemoryStore(), time.Minute),
		Sessions:    sessions,
		Messages:    store.NewMemoryMessageLog(),
		Invoker:     nopInvoker{},
		Catalog:     catalog.Scheduling(),
		LLM:         func(string) llm.Client { return client },
		MaxTurns:    4,
		Granularity: time.Hour,
		Logger:      logger.NewNop(),
	}
}

func startMeta(id string) *model.SessionMeta {
	return &model.SessionMeta{
		SessionID: id,
		Channel:   model.ChannelVoice,
		To:        "+15550001111",
		From:      "+15559990000",
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAttach_OneRunnerPerSession(t *testing.T) {
	m := NewManager(testDeps(t, store.NewMemorySessionStore()))
	sp := &recordingSpeaker{}

	a := m.Attach(context.Background(), "sess-1", sp)
	b := m.Attach(context.Background(), "sess-1", sp)
	if a != b {
		t.Fatal("second attach must reuse the live runner")
	}
	if m.Len() != 1 {
		t.Fatalf("registry size = %d", m.Len())
	}
	a.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "test"})
	<-a.Done()
	waitFor(t, func() bool { return m.Len() == 0 })
}

func TestRunner_StartUtteranceEnd(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	m := NewManager(testDeps(t, sessions))
	sp := &recordingSpeaker{}

	r := m.Attach(context.Background(), "sess-1", sp)
	r.Deliver(model.SessionEvent{Type: model.EventSessionStart, Meta: startMeta("sess-1")})
	r.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: "hi"})

	waitFor(t, func() bool { return len(sp.all()) == 1 })
	if sp.all()[0] != "hello there" {
		t.Fatalf("spoken = %v", sp.all())
	}

	r.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "hangup"})
	<-r.Done()

	sess, err := sessions.Lookup(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if sess.OrgID != "org-1" {
		t.Fatalf("org resolved to %q, want org-1 via called number", sess.OrgID)
	}
	if sess.Status != model.StatusEnded {
		t.Fatalf("status = %q", sess.Status)
	}
	if sess.StartedAt == nil || sess.EndedAt == nil {
		t.Fatal("timestamps not recorded")
	}
	if sess.Disposition != "hangup" {
		t.Fatalf("disposition = %q", sess.Disposition)
	}
}

func TestRunner_TurnsPersistedInSequenceOrder(t *testing.T) {
	deps := testDeps(t, store.NewMemorySessionStore())
	m := NewManager(deps)
	sp := &recordingSpeaker{}

	r := m.Attach(context.Background(), "sess-2", sp)
	r.Deliver(model.SessionEvent{Type: model.EventSessionStart, Meta: startMeta("sess-2")})
	r.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: "first"})
	r.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: "second"})

	waitFor(t, func() bool { return len(sp.all()) == 2 })
	msgs, _, _, err := deps.Messages.List(context.Background(), "org-1", "sess-2", 0, 100)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var roles []string
	for _, msg := range msgs {
		roles = append(roles, string(msg.Role))
	}
	if got := strings.Join(roles, ","); got != "user,assistant,user,assistant" {
		t.Fatalf("persisted roles = %s", got)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Sequence <= msgs[i-1].Sequence {
			t.Fatalf("sequences not increasing: %d then %d", msgs[i-1].Sequence, msgs[i].Sequence)
		}
	}
}

func TestRunner_UtteranceBeforeStartDropped(t *testing.T) {
	m := NewManager(testDeps(t, store.NewMemorySessionStore()))
	sp := &recordingSpeaker{}

	r := m.Attach(context.Background(), "sess-3", sp)
	r.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: "too early"})
	r.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "test"})
	<-r.Done()

	if len(sp.all()) != 0 {
		t.Fatalf("nothing should be spoken, got %v", sp.all())
	}
}

func TestShutdown_EndsAllSessions(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	m := NewManager(testDeps(t, sessions))

	for _, id := range []string{"a", "b", "c"} {
		r := m.Attach(context.Background(), id, &recordingSpeaker{})
		r.Deliver(model.SessionEvent{Type: model.EventSessionStart, Meta: startMeta(id)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	for _, id := range []string{"a", "b", "c"} {
		sess, err := sessions.Lookup(context.Background(), id)
		if err != nil {
			t.Fatalf("Lookup %s: %v", id, err)
		}
		if sess.Status != model.StatusEnded {
			t.Fatalf("session %s status = %q", id, sess.Status)
		}
	}
}

// queueLLM replays responses in order and keeps every request for
// inspection; it backs tests that need to see what the agents sent.
type queueLLM struct {
	mu        sync.Mutex
	responses []*llm.CompletionResponse
	requests  []*llm.CompletionRequest
}

func (q *queueLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	resp := q.responses[0]
	if len(q.responses) > 1 {
		q.responses = q.responses[1:]
	}
	return resp, nil
}

func (q *queueLLM) Name() string     { return "queue" }
func (q *queueLLM) Models() []string { return nil }

func (q *queueLLM) recorded() []*llm.CompletionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*llm.CompletionRequest(nil), q.requests...)
}

func putConfig(t *testing.T, deps *Deps, cfg *model.ChannelConfig) {
	t.Helper()
	cfgs := channelcfg.NewMemoryStore()
	if err := cfgs.Put(context.Background(), cfg); err != nil {
		t.Fatalf("Put config: %v", err)
	}
	deps.Configs = channelcfg.NewCache(cfgs, time.Minute)
}

func TestRunner_DisabledChannelDeclinesSession(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	deps := testDeps(t, sessions)
	putConfig(t, &deps, &model.ChannelConfig{
		OrgID:        "org-1",
		Channel:      model.ChannelVoice,
		Enabled:      false,
		ModelBackend: "gpt-4o",
		AgentMode:    model.AgentModeDual,
	})
	m := NewManager(deps)
	sp := &recordingSpeaker{}

	r := m.Attach(context.Background(), "sess-off", sp)
	r.Deliver(model.SessionEvent{Type: model.EventSessionStart, Meta: startMeta("sess-off")})
	r.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: "hello?"})
	<-r.Done()

	spoken := sp.all()
	if len(spoken) != 1 || !strings.Contains(spoken[0], "not in service") {
		t.Fatalf("disabled channel spoke %v", spoken)
	}
	sess, err := sessions.Lookup(context.Background(), "sess-off")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if sess.Status != model.StatusEnded {
		t.Fatalf("status = %s", sess.Status)
	}
	if sess.Disposition != "channel_disabled" {
		t.Fatalf("disposition = %q", sess.Disposition)
	}
}

func TestRunner_FrontModelBackendRoutesFrontAgent(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	deps := testDeps(t, sessions)
	putConfig(t, &deps, &model.ChannelConfig{
		OrgID:             "org-1",
		Channel:           model.ChannelVoice,
		Enabled:           true,
		ModelBackend:      "gpt-4o",
		FrontModelBackend: "gpt-4o-mini",
		AgentMode:         model.AgentModeDual,
	})
	var (
		mu        sync.Mutex
		requested []string
	)
	client := &fakeLLM{reply: "hello there"}
	deps.LLM = func(backend string) llm.Client {
		mu.Lock()
		requested = append(requested, backend)
		mu.Unlock()
		return client
	}
	m := NewManager(deps)

	r := m.Attach(context.Background(), "sess-models", &recordingSpeaker{})
	r.Deliver(model.SessionEvent{Type: model.EventSessionStart, Meta: startMeta("sess-models")})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(requested) == 2
	})
	r.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "test"})
	<-r.Done()

	mu.Lock()
	defer mu.Unlock()
	if len(requested) != 2 || requested[0] != "gpt-4o" || requested[1] != "gpt-4o-mini" {
		t.Fatalf("model backends requested = %v", requested)
	}
}

func TestRunner_FullCatalogConfigReachesSupervisor(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	deps := testDeps(t, sessions)
	putConfig(t, &deps, &model.ChannelConfig{
		OrgID:        "org-1",
		Channel:      model.ChannelVoice,
		Enabled:      true,
		ModelBackend: "gpt-4o",
		FullCatalog:  true,
		AgentMode:    model.AgentModeDual,
	})
	client := &queueLLM{responses: []*llm.CompletionResponse{
		{
			Content: "One moment.",
			ToolCalls: []llm.ToolCall{
				{ID: "t1", Name: "ask_supervisor", Arguments: `{"context":"book a cleaning"}`},
			},
		},
		{Content: "You're booked."},
	}}
	deps.LLM = func(string) llm.Client { return client }
	m := NewManager(deps)
	sp := &recordingSpeaker{}

	r := m.Attach(context.Background(), "sess-full", sp)
	r.Deliver(model.SessionEvent{Type: model.EventSessionStart, Meta: startMeta("sess-full")})
	r.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: "book a cleaning"})
	waitFor(t, func() bool {
		for _, s := range sp.all() {
			if s == "You're booked." {
				return true
			}
		}
		return false
	})
	r.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "test"})
	<-r.Done()

	all := len(deps.Catalog.All())
	var supervisorTools int
	for _, req := range client.recorded() {
		if len(req.Tools) > supervisorTools {
			supervisorTools = len(req.Tools)
		}
	}
	if supervisorTools != all {
		t.Fatalf("supervisor saw %d tools, want the full table of %d", supervisorTools, all)
	}
}

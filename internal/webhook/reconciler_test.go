package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/org"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

type capturingNotifier struct {
	analyzed []*model.Session
}

func (n *capturingNotifier) SessionAnalyzed(ctx context.Context, sess *model.Session) {
	n.analyzed = append(n.analyzed, sess)
}

func newTestReconciler(t *testing.T) (*Reconciler, store.SessionStore, *org.Resolver, *capturingNotifier) {
	t.Helper()
	sessions := store.NewMemorySessionStore()
	dir := org.NewMemoryDirectory(&model.Organization{
		ID: "org-1", Slug: "northside", PhoneNumbers: []string{"+15550001111"},
	})
	resolver := org.NewResolver(dir, "org-default", logger.NewNop())
	notifier := &capturingNotifier{}
	rec := NewReconciler(sessions, resolver, NewFileRecordingStore(t.TempDir()), notifier, logger.NewNop())
	return rec, sessions, resolver, notifier
}

func ts(hour, min int) *time.Time {
	t := time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
	return &t
}

func startedEvent(id string) *model.LifecycleEvent {
	return &model.LifecycleEvent{
		Type: model.LifecycleCallStarted, SessionID: id,
		From: "+15559990000", To: "+15550001111",
		StartedAt: ts(9, 0),
	}
}

func endedEvent(id string) *model.LifecycleEvent {
	return &model.LifecycleEvent{
		Type: model.LifecycleCallEnded, SessionID: id,
		From: "+15559990000", To: "+15550001111",
		StartedAt: ts(9, 0), EndedAt: ts(9, 3),
		Disposition: "caller_hangup",
		Transcript:  "User: hi\nAgent: hello",
	}
}

func analyzedEvent(id string) *model.LifecycleEvent {
	return &model.LifecycleEvent{
		Type: model.LifecycleCallAnalyzed, SessionID: id,
		Analysis: map[string]any{"sentiment": "positive", "booked": true},
	}
}

func TestApply_FullLifecycle(t *testing.T) {
	rec, sessions, _, notifier := newTestReconciler(t)
	ctx := context.Background()

	for _, ev := range []*model.LifecycleEvent{startedEvent("c1"), endedEvent("c1"), analyzedEvent("c1")} {
		if err := rec.Apply(ctx, ev); err != nil {
			t.Fatalf("Apply(%s): %v", ev.Type, err)
		}
	}

	sess, err := sessions.Get(ctx, "org-1", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Status != model.StatusAnalyzed {
		t.Fatalf("status = %q", sess.Status)
	}
	if sess.DurationSeconds == nil || *sess.DurationSeconds != 180 {
		t.Fatalf("duration = %v", sess.DurationSeconds)
	}
	if sess.Analysis["sentiment"] != "positive" {
		t.Fatalf("analysis = %v", sess.Analysis)
	}
	if len(notifier.analyzed) != 1 {
		t.Fatalf("notifier called %d times", len(notifier.analyzed))
	}
}

func TestApply_OutOfOrderConverges(t *testing.T) {
	rec, sessions, _, _ := newTestReconciler(t)
	ctx := context.Background()

	// Analysis lands before the end event, end before start.
	for _, ev := range []*model.LifecycleEvent{analyzedEvent("c2"), endedEvent("c2"), startedEvent("c2")} {
		if err := rec.Apply(ctx, ev); err != nil {
			t.Fatalf("Apply(%s): %v", ev.Type, err)
		}
	}

	sess, err := sessions.Get(ctx, "org-1", "c2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Status != model.StatusAnalyzed {
		t.Fatalf("late start event regressed status to %q", sess.Status)
	}
	if sess.Transcript == "" || sess.Analysis == nil {
		t.Fatal("fields from earlier events were lost")
	}
	if sess.DurationSeconds == nil || *sess.DurationSeconds != 180 {
		t.Fatalf("duration = %v", sess.DurationSeconds)
	}
}

func TestApply_DuplicatesAreIdempotent(t *testing.T) {
	rec, sessions, _, notifier := newTestReconciler(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rec.Apply(ctx, endedEvent("c3")); err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
	}
	if err := rec.Apply(ctx, analyzedEvent("c3")); err != nil {
		t.Fatalf("Apply analyzed: %v", err)
	}
	if err := rec.Apply(ctx, analyzedEvent("c3")); err != nil {
		t.Fatalf("Apply analyzed dup: %v", err)
	}

	sess, _ := sessions.Get(ctx, "org-1", "c3")
	if sess.Status != model.StatusAnalyzed || *sess.DurationSeconds != 180 {
		t.Fatalf("duplicates changed outcome: %+v", sess)
	}
	// Re-notification on a duplicate analyzed event is acceptable, silence
	// is not.
	if len(notifier.analyzed) == 0 {
		t.Fatal("notifier never called")
	}
}

func TestApply_WebhookBeforeGatewayCreatesSession(t *testing.T) {
	rec, sessions, _, _ := newTestReconciler(t)
	ctx := context.Background()

	if err := rec.Apply(ctx, startedEvent("c4")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	sess, err := sessions.Lookup(ctx, "c4")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if sess.OrgID != "org-1" {
		t.Fatalf("org = %q, want resolution via called number", sess.OrgID)
	}
}

func TestApply_OrgFromCallerMemory(t *testing.T) {
	rec, sessions, resolver, _ := newTestReconciler(t)
	ctx := context.Background()

	// The gateway saw this caller earlier; the event itself references a
	// number the directory does not know.
	resolver.RememberCaller("+15557778888", "org-1")
	ev := &model.LifecycleEvent{
		Type: model.LifecycleCallEnded, SessionID: "c5",
		From: "+15557778888", To: "+19990000000",
		StartedAt: ts(10, 0), EndedAt: ts(10, 1),
	}
	if err := rec.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	sess, _ := sessions.Lookup(ctx, "c5")
	if sess.OrgID != "org-1" {
		t.Fatalf("org = %q, want caller-memory fallback", sess.OrgID)
	}
}

func TestApply_UnresolvableFallsBackToDefault(t *testing.T) {
	rec, sessions, _, _ := newTestReconciler(t)
	ctx := context.Background()

	ev := &model.LifecycleEvent{Type: model.LifecycleCallStarted, SessionID: "c6"}
	if err := rec.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	sess, _ := sessions.Lookup(ctx, "c6")
	if sess.OrgID != "org-default" {
		t.Fatalf("org = %q", sess.OrgID)
	}
}

func TestApply_MissingCallIDRejected(t *testing.T) {
	rec, _, _, _ := newTestReconciler(t)
	if err := rec.Apply(context.Background(), &model.LifecycleEvent{Type: model.LifecycleCallStarted}); err == nil {
		t.Fatal("expected error for event without call id")
	}
}

func TestApply_RecordingFetchedAndPinned(t *testing.T) {
	rec, sessions, _, _ := newTestReconciler(t)
	ctx := context.Background()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RIFFfakeaudio"))
	}))
	defer provider.Close()

	ev := endedEvent("c7")
	ev.RecordingURL = provider.URL + "/rec/c7.wav"
	if err := rec.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	sess, _ := sessions.Get(ctx, "org-1", "c7")
	if !sess.RecordingStored {
		t.Fatal("recording not stored")
	}
	data, err := os.ReadFile(sess.RecordingURL)
	if err != nil {
		t.Fatalf("stored recording unreadable: %v", err)
	}
	if string(data) != "RIFFfakeaudio" {
		t.Fatalf("stored bytes = %q", data)
	}

	// A duplicate ended event with the provider URL must not unpin the
	// stored location.
	stored := sess.RecordingURL
	if err := rec.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply dup: %v", err)
	}
	sess, _ = sessions.Get(ctx, "org-1", "c7")
	if sess.RecordingURL != stored {
		t.Fatalf("recording url changed to %q after duplicate event", sess.RecordingURL)
	}
}

func TestApply_CustomAnalysisDataExtracted(t *testing.T) {
	rec, sessions, _, notifier := newTestReconciler(t)
	ctx := context.Background()

	ev := analyzedEvent("call-fields")
	ev.CustomAnalysisData = map[string]string{
		"patient_name":    "Ana Flores",
		"callback_number": "+15559990000",
	}
	if err := rec.Apply(ctx, startedEvent("call-fields")); err != nil {
		t.Fatalf("Apply started: %v", err)
	}
	if err := rec.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply analyzed: %v", err)
	}

	sess, err := sessions.Lookup(ctx, "call-fields")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if sess.ExtractedFields["patient_name"] != "Ana Flores" {
		t.Fatalf("extracted fields = %v", sess.ExtractedFields)
	}
	if len(notifier.analyzed) != 1 || notifier.analyzed[0].ExtractedFields["callback_number"] != "+15559990000" {
		t.Fatal("analyzed notification missing extracted fields")
	}
}

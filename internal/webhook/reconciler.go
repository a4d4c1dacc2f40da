// Package webhook reconciles provider lifecycle events into the session
// store. Events are treated as unordered, at-least-once deliveries: every
// handler reduces to an idempotent merge, so duplicates and reordering are
// harmless.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/org"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

// maxRecordingBytes caps a fetched recording. Provider recordings of normal
// calls are a few megabytes.
const maxRecordingBytes = 64 << 20

// RecordingStore persists fetched call recordings.
type RecordingStore interface {
	Store(ctx context.Context, orgID, sessionID string, body io.Reader) (string, error)
}

// Notifier is told when a session reaches its analyzed state.
type Notifier interface {
	SessionAnalyzed(ctx context.Context, sess *model.Session)
}

// Reconciler applies lifecycle events to the session store.
type Reconciler struct {
	sessions   store.SessionStore
	resolver   *org.Resolver
	recordings RecordingStore
	notifier   Notifier
	httpClient *http.Client
	logger     *logger.Logger
}

// NewReconciler creates a reconciler. recordings and notifier may be nil
// when those side effects are disabled.
func NewReconciler(sessions store.SessionStore, resolver *org.Resolver, recordings RecordingStore, notifier Notifier, log *logger.Logger) *Reconciler {
	return &Reconciler{
		sessions:   sessions,
		resolver:   resolver,
		recordings: recordings,
		notifier:   notifier,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

// Apply reconciles one event. It is safe to call twice with the same event
// and safe to call with events out of lifecycle order.
func (r *Reconciler) Apply(ctx context.Context, ev *model.LifecycleEvent) error {
	if ev.SessionID == "" {
		metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		return fmt.Errorf("lifecycle event without call id")
	}

	orgID := r.resolveOrg(ctx, ev)
	log := r.logger.WithSession(orgID, ev.SessionID)

	// The gateway usually created the session already; a webhook that wins
	// the race creates it with the same id and the merge below fills it in.
	if _, created, err := r.sessions.CreateOrGet(ctx, orgID, ev.SessionID, model.ChannelVoice); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), "error").Inc()
		return fmt.Errorf("reconcile %s: %w", ev.Type, err)
	} else if created {
		log.Info("session created by webhook before gateway connect", zap.String("event", string(ev.Type)))
	}

	patch := patchFor(ev)
	sess, err := r.sessions.Merge(ctx, ev.SessionID, patch)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), "error").Inc()
		return fmt.Errorf("reconcile %s: %w", ev.Type, err)
	}

	if ev.Type == model.LifecycleCallEnded && ev.RecordingURL != "" && !sess.RecordingStored && r.recordings != nil {
		r.fetchRecording(ctx, sess, ev.RecordingURL, log)
	}

	if ev.Type == model.LifecycleCallAnalyzed && r.notifier != nil {
		r.notifier.SessionAnalyzed(ctx, sess)
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), "ok").Inc()
	return nil
}

// resolveOrg finds the tenant for an event: the existing session record
// first, then the caller's last-seen org, then the called number, then the
// configured default.
func (r *Reconciler) resolveOrg(ctx context.Context, ev *model.LifecycleEvent) string {
	if sess, err := r.sessions.Lookup(ctx, ev.SessionID); err == nil && sess.OrgID != "" {
		return sess.OrgID
	}
	if ev.From != "" {
		if id, ok := r.resolver.CallerOrg(ev.From); ok {
			return id
		}
	}
	if ev.To != "" {
		if id, err := r.resolver.ResolveNumber(ctx, ev.To); err == nil {
			return id
		}
	}
	return r.resolver.DefaultOrgID()
}

// patchFor maps one event to its merge patch. Every field is optional so
// that a sparse duplicate never erases data a richer event already settled.
func patchFor(ev *model.LifecycleEvent) store.SessionPatch {
	patch := store.SessionPatch{
		From:            ev.From,
		To:              ev.To,
		StartedAt:       ev.StartedAt,
		EndedAt:         ev.EndedAt,
		Disposition:     ev.Disposition,
		Transcript:      ev.Transcript,
		Turns:           ev.Turns,
		TurnsWithTools:  ev.TurnsWithTools,
		Analysis:        ev.Analysis,
		ExtractedFields: ev.CustomAnalysisData,
		RecordingURL:    ev.RecordingURL,
	}
	switch ev.Type {
	case model.LifecycleCallStarted:
		patch.Status = model.StatusOngoing
	case model.LifecycleCallEnded:
		patch.Status = model.StatusEnded
	case model.LifecycleCallAnalyzed:
		patch.Status = model.StatusAnalyzed
	}
	return patch
}

func (r *Reconciler) fetchRecording(ctx context.Context, sess *model.Session, url string, log *logger.Logger) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Warn("recording request build failed", zap.Error(err))
		return
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Warn("recording fetch failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("recording fetch rejected", zap.Int("status", resp.StatusCode))
		return
	}

	stored, err := r.recordings.Store(ctx, sess.OrgID, sess.ID, io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		log.Warn("recording store failed", zap.Error(err))
		return
	}

	if _, err := r.sessions.Merge(ctx, sess.ID, store.SessionPatch{
		RecordingURL:    stored,
		RecordingStored: true,
	}); err != nil {
		log.Warn("recording merge failed", zap.Error(err))
		return
	}
	log.Info("recording stored", zap.String("location", stored))
}

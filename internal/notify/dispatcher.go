// Package notify delivers post-call notifications once a session has been
// analyzed. Dedup markers live in Redis so restarts and duplicate webhook
// deliveries do not double-notify.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

// markerTTL bounds how long a dedup marker lives. One day covers every
// realistic duplicate-delivery window.
const markerTTL = 24 * time.Hour

// Sender delivers one rendered notification. Implementations post to Slack,
// email, or the tenant's own webhook.
type Sender interface {
	Send(ctx context.Context, orgID string, n *Notification) error
}

// Notification is the rendered post-call summary.
type Notification struct {
	SessionID       string            `json:"session_id"`
	From            string            `json:"from,omitempty"`
	DurationSeconds *int              `json:"duration_seconds,omitempty"`
	Disposition     string            `json:"disposition,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Analysis        map[string]any    `json:"analysis,omitempty"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
}

// Marker records that a session was already notified. Redis SET NX is the
// production implementation; MemoryMarker serves tests.
type Marker interface {
	// Claim returns true exactly once per session.
	Claim(ctx context.Context, sessionID string) (bool, error)
	// Release drops a claim after a failed send so a provider retry of the
	// analyzed webhook can claim it again.
	Release(ctx context.Context, sessionID string) error
}

// RedisMarker implements Marker on a shared Redis.
type RedisMarker struct {
	client *redis.Client
}

// NewRedisMarker creates a Redis-backed marker.
func NewRedisMarker(client *redis.Client) *RedisMarker {
	return &RedisMarker{client: client}
}

// Claim implements Marker.
func (m *RedisMarker) Claim(ctx context.Context, sessionID string) (bool, error) {
	ok, err := m.client.SetNX(ctx, "notified:"+sessionID, time.Now().UTC().Format(time.RFC3339), markerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim notification marker: %w", err)
	}
	return ok, nil
}

// Release implements Marker.
func (m *RedisMarker) Release(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, "notified:"+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to release notification marker: %w", err)
	}
	return nil
}

// Dispatcher sends one notification per analyzed session.
type Dispatcher struct {
	sessions store.SessionStore
	marker   Marker
	sender   Sender
	logger   *logger.Logger

	// rereads handles the analyzed-before-ended race: analysis can land
	// while the duration is still unsettled, so the dispatcher re-reads
	// the session a few times before rendering without it.
	rereadAttempts int
	rereadDelay    time.Duration
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(sessions store.SessionStore, marker Marker, sender Sender, rereadAttempts int, rereadDelay time.Duration, log *logger.Logger) *Dispatcher {
	if rereadAttempts < 0 {
		rereadAttempts = 0
	}
	return &Dispatcher{
		sessions:       sessions,
		marker:         marker,
		sender:         sender,
		logger:         log,
		rereadAttempts: rereadAttempts,
		rereadDelay:    rereadDelay,
	}
}

// SessionAnalyzed implements webhook.Notifier. It runs inline with webhook
// processing only up to the marker claim; the send itself happens in a
// detached goroutine so a slow sender cannot delay the webhook ack.
func (d *Dispatcher) SessionAnalyzed(ctx context.Context, sess *model.Session) {
	log := d.logger.WithSession(sess.OrgID, sess.ID)

	claimed, err := d.marker.Claim(ctx, sess.ID)
	if err != nil {
		log.Error("notification marker unavailable, skipping", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		return
	}
	if !claimed {
		metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
		return
	}

	go d.deliver(context.Background(), sess, log)
}

func (d *Dispatcher) deliver(ctx context.Context, sess *model.Session, log *logger.Logger) {
	// Give the ended-event merge a chance to settle the duration.
	for attempt := 0; sess.DurationSeconds == nil && attempt < d.rereadAttempts; attempt++ {
		time.Sleep(d.rereadDelay)
		fresh, err := d.sessions.Lookup(ctx, sess.ID)
		if err != nil {
			log.Warn("notification re-read failed", zap.Error(err))
			break
		}
		sess = fresh
	}
	if sess.DurationSeconds == nil {
		log.Warn("notifying without settled duration")
	}

	n := &Notification{
		SessionID:       sess.ID,
		From:            sess.From,
		DurationSeconds: sess.DurationSeconds,
		Disposition:     sess.Disposition,
		Summary:         summaryOf(sess.Analysis),
		Analysis:        sess.Analysis,
		ExtractedFields: sess.ExtractedFields,
	}
	if err := d.sender.Send(ctx, sess.OrgID, n); err != nil {
		log.Error("notification send failed", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		if rerr := d.marker.Release(ctx, sess.ID); rerr != nil {
			log.Error("notification marker release failed", zap.Error(rerr))
		}
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	log.Info("notification sent")
}

func summaryOf(analysis map[string]any) string {
	if analysis == nil {
		return ""
	}
	if s, ok := analysis["summary"].(string); ok {
		return s
	}
	return ""
}

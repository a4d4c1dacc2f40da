package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/middleware"
	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/webhook"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

// reconcileTimeout bounds asynchronous event processing, recording fetch
// included.
const reconcileTimeout = 60 * time.Second

// WebhookHandler receives provider lifecycle events.
type WebhookHandler struct {
	reconciler *webhook.Reconciler
	logger     *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(reconciler *webhook.Reconciler, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: log}
}

// Lifecycle handles POST /webhooks/lifecycle. The provider retries slow
// acks, so the event is validated, acked, and reconciled off-request.
func (h *WebhookHandler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	var ev model.LifecycleEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := middleware.ValidateSessionID(ev.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch ev.Type {
	case model.LifecycleCallStarted, model.LifecycleCallEnded, model.LifecycleCallAnalyzed:
	default:
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if err := h.reconciler.Apply(ctx, &ev); err != nil {
			h.logger.Error("lifecycle reconcile failed",
				zap.String("event", string(ev.Type)),
				zap.String("session_id", ev.SessionID),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

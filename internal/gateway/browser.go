package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/session"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

// browserFrame is one inbound frame of the web chat protocol. The browser
// identifies the tenant by slug in the URL, so the session can start on the
// first frame without a handshake.
type browserFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Browser serves the web chat websocket. Tenant identity comes from the URL
// slug; pre-authenticated embeds may override it with the tenant header.
type Browser struct {
	manager *session.Manager
	logger  *logger.Logger
}

// NewBrowser creates the browser gateway.
func NewBrowser(manager *session.Manager, log *logger.Logger) *Browser {
	return &Browser{manager: manager, logger: log}
}

func (b *Browser) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		http.Error(w, "missing organization slug", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("browser upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := uuid.Must(uuid.NewV7()).String()
	log := b.logger.With(zap.String("session_id", sessionID), zap.String("slug", slug))

	runner := b.manager.Attach(context.Background(), sessionID, &wsSpeaker{conn: conn})

	var endOnce sync.Once
	end := func(reason string) {
		endOnce.Do(func() {
			runner.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: reason})
		})
	}
	defer end("connection_closed")

	runner.Deliver(model.SessionEvent{
		Type: model.EventSessionStart,
		Meta: &model.SessionMeta{
			SessionID: sessionID,
			Channel:   model.ChannelWeb,
			OrgSlug:   slug,
			// Header identity wins over the slug when a trusted embed set it.
			OrgID: r.Header.Get("X-Organization-ID"),
		},
	})

	for {
		var frame browserFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("browser read failed", zap.Error(err))
			}
			end("connection_closed")
			return
		}

		switch frame.Type {
		case "user_message":
			if frame.Text != "" {
				runner.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: frame.Text})
			}
		case "end":
			end("user_end")
			return
		default:
			log.Debug("unknown browser frame", zap.String("type", frame.Type))
		}
	}
}

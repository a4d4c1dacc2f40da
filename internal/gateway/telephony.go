// Package gateway terminates realtime connections and normalizes their wire
// protocols into session events. Gateways stay thin: no business logic runs
// in a read loop, everything is delivered to the session runtime.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/session"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Telephony providers and the web widget connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// telephonyFrame is one inbound frame of the provider's media-stream
// protocol. The provider sends a bare connected frame first, then a start
// frame carrying call metadata, then transcript frames as the caller speaks.
type telephonyFrame struct {
	Type  string `json:"type"`
	Start *struct {
		CallID string `json:"call_id"`
		From   string `json:"from_number"`
		To     string `json:"to_number"`
	} `json:"start,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// outboundFrame is an agent utterance pushed to the provider for synthesis.
type outboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Telephony serves the provider's media-stream websocket.
type Telephony struct {
	manager *session.Manager
	logger  *logger.Logger
}

// NewTelephony creates the telephony gateway.
func NewTelephony(manager *session.Manager, log *logger.Logger) *Telephony {
	return &Telephony{manager: manager, logger: log}
}

// wsSpeaker serializes writes to one websocket connection.
type wsSpeaker struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(outboundFrame{Type: "response", Content: text})
}

// ServeHTTP upgrades the connection and runs the read loop. Session identity
// arrives in the URL, but agent construction waits for the start frame: the
// tenant cannot be resolved before the called number is known.
func (t *Telephony) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("telephony upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := t.logger.With(zap.String("session_id", sessionID))
	runner := t.manager.Attach(context.Background(), sessionID, &wsSpeaker{conn: conn})

	// Every teardown path funnels through this: read error, stop frame, or
	// handler exit. The session runtime sees exactly one end event.
	var endOnce sync.Once
	end := func(reason string) {
		endOnce.Do(func() {
			runner.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: reason})
		})
	}
	defer end("connection_closed")

	started := false
	for {
		var frame telephonyFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("telephony read failed", zap.Error(err))
			}
			end("connection_closed")
			return
		}

		switch frame.Type {
		case "connected":
			// Handshake preamble, no metadata yet.

		case "start":
			if frame.Start == nil {
				log.Warn("start frame without metadata")
				continue
			}
			started = true
			runner.Deliver(model.SessionEvent{
				Type: model.EventSessionStart,
				Meta: &model.SessionMeta{
					SessionID: sessionID,
					Channel:   model.ChannelVoice,
					From:      frame.Start.From,
					To:        frame.Start.To,
				},
			})

		case "transcript":
			if !started {
				log.Warn("transcript before start frame, dropping")
				continue
			}
			if frame.Transcript != "" {
				runner.Deliver(model.SessionEvent{Type: model.EventUserUtterance, Text: frame.Transcript})
			}

		case "stop":
			end("provider_stop")
			return

		default:
			log.Debug("unknown telephony frame", zap.String("type", frame.Type))
		}
	}
}

// Routes mounts the gateway endpoints.
func Routes(r chi.Router, telephony *Telephony, browser *Browser) {
	r.Get("/ws/telephony/{sessionID}", telephony.ServeHTTP)
	r.Get("/ws/chat/{slug}", browser.ServeHTTP)
}

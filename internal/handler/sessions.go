package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clinicvoice-ai/session-orchestrator/internal/middleware"
	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

// SessionHandler serves org-scoped reads over session state and transcripts.
type SessionHandler struct {
	sessions store.SessionStore
	messages store.MessageLog
	calls    store.FunctionCallStore
	logger   *logger.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions store.SessionStore, messages store.MessageLog, calls store.FunctionCallStore, log *logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, messages: messages, calls: calls, logger: log}
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if err := middleware.ValidateOrgID(orgID); err != nil {
		writeError(w, http.StatusUnauthorized, "organization not resolved")
		return
	}

	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	sessions, total, err := h.sessions.List(r.Context(), orgID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Get(r.Context(), orgID, sessionID)
	if err != nil {
		// Another tenant's session and a missing session are the same 404.
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrOrgMismatch) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Messages handles GET /api/v1/sessions/{id}/messages
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.sessions.Get(r.Context(), orgID, sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	afterSequence := uint64(0)
	limit := 50
	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		if parsed, err := strconv.ParseUint(seq, 10, 64); err == nil {
			afterSequence = parsed
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	messages, lastSequence, hasMore, err := h.messages.List(r.Context(), orgID, sessionID, afterSequence, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages":      messages,
		"last_sequence": lastSequence,
		"has_more":      hasMore,
	})
}

// FunctionCalls handles GET /api/v1/sessions/{id}/function-calls
func (h *SessionHandler) FunctionCalls(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.sessions.Get(r.Context(), orgID, sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	records, err := h.calls.BySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list function calls")
		return
	}
	if records == nil {
		records = []model.FunctionCallRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"function_calls": records,
	})
}

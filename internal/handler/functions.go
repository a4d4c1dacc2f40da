package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/booking"
	"github.com/clinicvoice-ai/session-orchestrator/internal/catalog"
	"github.com/clinicvoice-ai/session-orchestrator/internal/middleware"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

// FunctionHandler exposes catalog function invocation over HTTP. Both
// calling conventions land here: browser tokens resolve the tenant from
// signed claims, service callers from the org header. Either way the tenant
// comes from middleware context, never from the request body.
type FunctionHandler struct {
	catalog *catalog.Catalog
	invoker *booking.Adapter
	logger  *logger.Logger
}

// NewFunctionHandler creates a function invocation handler.
func NewFunctionHandler(cat *catalog.Catalog, invoker *booking.Adapter, log *logger.Logger) *FunctionHandler {
	return &FunctionHandler{catalog: cat, invoker: invoker, logger: log}
}

type invokeRequest struct {
	FunctionName string         `json:"functionName"`
	Parameters   map[string]any `json:"parameters"`
	SessionID    string         `json:"session_id,omitempty"`
}

// Invoke handles POST /api/v1/functions/invoke
func (h *FunctionHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if err := middleware.ValidateOrgID(orgID); err != nil {
		writeError(w, http.StatusUnauthorized, "organization not resolved")
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if _, ok := h.catalog.Lookup(req.FunctionName); !ok {
		writeError(w, http.StatusNotFound, "unknown function")
		return
	}

	// A body-supplied tenant field is dropped before invocation.
	params := booking.SanitizeParams(req.Parameters, h.logger, req.SessionID)

	result, err := h.invoker.Invoke(r.Context(), req.FunctionName, params, req.SessionID, orgID)
	if err != nil {
		h.logger.Error("function invocation failed",
			zap.String("function", req.FunctionName),
			zap.String("org_id", orgID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "scheduling system unreachable")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Catalog handles GET /api/v1/functions
func (h *FunctionHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	entries := h.catalog.All()
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"name":        e.Name,
			"description": e.Description,
			"parameters":  e.JSONSchema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"functions": out})
}

// Package booking translates named catalog functions into authenticated,
// org-scoped calls against the scheduling backend.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

const (
	// TenantHeader carries tenant identity out of band. It is the only way
	// an org id travels to the booking backend.
	TenantHeader = "X-Organization-ID"

	// TenantParam is the body field a model sometimes hallucinates for
	// tenant identity. It is stripped before any call leaves the adapter.
	TenantParam = "organization_id"
)

// Result is the structured outcome of one function invocation. Failures are
// data handed back to the supervisor model, not exceptions.
type Result struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type invokeRequest struct {
	FunctionName string         `json:"functionName"`
	Parameters   map[string]any `json:"parameters"`
}

// Adapter calls the booking backend service-to-service: no browser session,
// tenant identity via pre-validated header plus a service bearer token.
type Adapter struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	audit        store.FunctionCallStore
	logger       *logger.Logger
}

// NewAdapter creates a booking adapter.
func NewAdapter(baseURL, serviceToken string, timeout time.Duration, audit store.FunctionCallStore, log *logger.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: timeout},
		audit:        audit,
		logger:       log,
	}
}

// Invoke executes one named function for a session. The org id is attached
// as a header only; a tenant field in params is dropped silently because
// session context already carries the correct identity. Transport failures
// return an error; backend rejections come back inside Result.
func (a *Adapter) Invoke(ctx context.Context, function string, params map[string]any, sessionID, orgID string) (*Result, error) {
	params = SanitizeParams(params, a.logger, sessionID)

	body, err := json.Marshal(invokeRequest{FunctionName: function, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode booking request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/booking", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build booking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TenantHeader, orgID)
	if a.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.serviceToken)
	}

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	duration := time.Since(start)

	rec := &model.FunctionCallRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		SessionID:  sessionID,
		OrgID:      orgID,
		Function:   function,
		Params:     params,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}

	if err != nil {
		rec.Error = err.Error()
		a.record(ctx, rec)
		metrics.RecordFunctionCall(function, "transport_error", duration.Seconds())
		return nil, fmt.Errorf("booking call failed: %w", err)
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		rec.Error = err.Error()
		a.record(ctx, rec)
		metrics.RecordFunctionCall(function, "decode_error", duration.Seconds())
		return nil, fmt.Errorf("booking response decode failed: %w", err)
	}

	if result.Success {
		rec.Result = string(result.Result)
		metrics.RecordFunctionCall(function, "ok", duration.Seconds())
	} else {
		rec.Error = result.Error
		metrics.RecordFunctionCall(function, "rejected", duration.Seconds())
	}
	a.record(ctx, rec)

	return &result, nil
}

func (a *Adapter) record(ctx context.Context, rec *model.FunctionCallRecord) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Record(ctx, rec); err != nil {
		a.logger.Warn("failed to record function call", zap.Error(err))
	}
}

// SanitizeParams returns params without the tenant identity field. The copy
// leaves the caller's map untouched.
func SanitizeParams(params map[string]any, log *logger.Logger, sessionID string) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	if _, ok := params[TenantParam]; !ok {
		return params
	}

	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == TenantParam {
			continue
		}
		out[k] = v
	}
	if log != nil {
		log.Warn("dropped hallucinated tenant parameter from function call",
			zap.String("session_id", sessionID),
		)
	}
	return out
}

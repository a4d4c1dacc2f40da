package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/catalog"
	"github.com/clinicvoice-ai/session-orchestrator/internal/llm"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

// troubleReply is spoken when the supervisor cannot produce an answer. It is
// the one failure class the user is allowed to hear about.
const troubleReply = "I'm sorry, I'm having trouble completing that right now. Could we try again in a moment?"

// Supervisor owns the full function catalog. It is reached only through
// delegation, never directly by the caller.
type Supervisor struct {
	client   llm.Client
	model    string
	catalog  *catalog.Catalog
	invoker  Invoker
	maxTurns int
	logger   *logger.Logger
}

// NewSupervisor creates a supervisor. maxTurns caps the reasoning loop so a
// model that keeps requesting calls cannot spin forever.
func NewSupervisor(client llm.Client, model string, cat *catalog.Catalog, inv Invoker, maxTurns int, log *logger.Logger) *Supervisor {
	if maxTurns <= 0 {
		maxTurns = 8
	}
	return &Supervisor{
		client:   client,
		model:    model,
		catalog:  cat,
		invoker:  inv,
		maxTurns: maxTurns,
		logger:   log,
	}
}

// Request is one delegated question with full conversational context.
type Request struct {
	OrgID        string
	SessionID    string
	Instructions string
	Context      string
	History      []llm.ChatMessage
	Office       *OfficeState
	// FullCatalog opts into the complete function table instead of the
	// curated priority subset.
	FullCatalog bool
	Granularity time.Duration
}

// Respond runs the bounded supervisor loop: the model picks at most one
// function per iteration, sees its structured result, and repeats until it
// emits a final natural-language answer or the cap is hit.
func (s *Supervisor) Respond(ctx context.Context, req Request) (string, error) {
	entries := s.catalog.Priority()
	if req.FullCatalog {
		entries = s.catalog.All()
	}

	tools := make([]llm.ToolSpec, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, llm.ToolSpec{
			Name:        e.Name,
			Description: e.Description,
			Parameters:  e.JSONSchema(),
		})
	}

	messages := append([]llm.ChatMessage(nil), req.History...)
	messages = append(messages, llm.ChatMessage{Role: "user", Content: req.Context})

	system := s.systemPrompt(req, entries)
	log := s.logger.WithSession(req.OrgID, req.SessionID)

	for turn := 0; turn < s.maxTurns; turn++ {
		// A hung-up session must stop issuing function calls at the next
		// iteration boundary.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		start := time.Now()
		resp, err := s.client.Complete(ctx, &llm.CompletionRequest{
			Model:    s.model,
			System:   system,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			metrics.RecordLLMCompletion(s.model, "supervisor", "error", time.Since(start).Seconds(), 0, 0)
			return "", fmt.Errorf("supervisor completion failed: %w", err)
		}
		metrics.RecordLLMCompletion(resp.Model, "supervisor", "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		// One function per turn: extra requested calls are deferred to the
		// next iteration by answering only the first.
		call := resp.ToolCalls[0]
		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: []llm.ToolCall{call},
		})
		messages = append(messages, llm.ChatMessage{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    s.executeCall(ctx, req, call, log),
		})
	}

	log.Warn("supervisor hit iteration cap", zap.Int("max_turns", s.maxTurns))
	return troubleReply, nil
}

// executeCall runs one catalog function and renders its outcome as tool
// result content. Every failure mode becomes data for the model to react
// to; nothing here aborts the loop.
func (s *Supervisor) executeCall(ctx context.Context, req Request, call llm.ToolCall, log *logger.Logger) string {
	entry, ok := s.catalog.Lookup(call.Name)
	if !ok {
		return fmt.Sprintf(`{"success":false,"error":"unknown function %q"}`, call.Name)
	}

	var params map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
			return fmt.Sprintf(`{"success":false,"error":"arguments are not valid JSON: %s"}`, err)
		}
	}

	log.Info("supervisor function call", zap.String("function", entry.Name))

	result, err := s.invoker.Invoke(ctx, entry.Name, params, req.SessionID, req.OrgID)
	if err != nil {
		log.Warn("function call transport failure", zap.String("function", entry.Name), zap.Error(err))
		return `{"success":false,"error":"the scheduling system is unreachable, try again"}`
	}

	rendered, err := json.Marshal(result)
	if err != nil {
		return `{"success":false,"error":"unreadable result"}`
	}
	return string(rendered)
}

// systemPrompt assembles instructions, dependency rules, and the locally
// computed availability summary.
func (s *Supervisor) systemPrompt(req Request, entries []catalog.Entry) string {
	var b strings.Builder

	if req.Instructions != "" {
		b.WriteString(req.Instructions)
		b.WriteString("\n\n")
	}

	b.WriteString("You are the scheduling supervisor. Answer the delegated request by calling the available functions, one at a time, then reply with a single complete answer for the caller to hear.\n")

	var deps []string
	for _, e := range entries {
		if len(e.DependsOn) > 0 {
			deps = append(deps, fmt.Sprintf("- %s requires the result of %s first", e.Name, strings.Join(e.DependsOn, ", ")))
		}
	}
	if len(deps) > 0 {
		b.WriteString("\nOrdering rules:\n")
		b.WriteString(strings.Join(deps, "\n"))
		b.WriteString("\n")
	}

	if req.Office != nil && len(req.Office.Providers) > 0 {
		b.WriteString("\nToday's availability (already fetched, do not re-query occupied slots):\n")
		for _, p := range req.Office.Providers {
			if free, ok := req.Office.FirstFreeSlotFor(p.ID, req.Granularity); ok {
				fmt.Fprintf(&b, "- %s: next free slot %s\n", p.Name, free.Format("15:04"))
			} else {
				fmt.Fprintf(&b, "- %s: fully booked today\n", p.Name)
			}
		}
	}

	return b.String()
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/llm"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

const (
	delegateTool = "ask_supervisor"
	endTool      = "end_session"

	// defaultFiller masks supervisor latency when the front model delegated
	// without speaking first.
	defaultFiller = "One moment while I check that for you."
)

// Delegate forwards a request to the supervisor and returns its reply.
type Delegate func(ctx context.Context, delegatedContext string, history []llm.ChatMessage) (string, error)

// Front is the low-cost conversational layer bound to one session. It holds
// a short instruction text and a fixed toolset with exactly one delegation
// tool; the full function catalog never reaches it.
type Front struct {
	client       llm.Client
	model        string
	instructions string
	delegate     Delegate
	logger       *logger.Logger
}

// NewFront creates a front agent.
func NewFront(client llm.Client, model, instructions string, delegate Delegate, log *logger.Logger) *Front {
	return &Front{
		client:       client,
		model:        model,
		instructions: instructions,
		delegate:     delegate,
		logger:       log,
	}
}

// Reply is the front agent's reaction to one user utterance.
type Reply struct {
	// Utterances are spoken in order. A delegation produces two: the filler
	// and then the supervisor's text.
	Utterances []string
	// End reports that the agent asked to close the session.
	End bool
	// Messages are the new history entries this turn produced.
	Messages []llm.ChatMessage
}

func (f *Front) tools() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        delegateTool,
			Description: "Hand the request to the scheduling supervisor. Use for anything involving looking up, booking, moving, or cancelling appointments. Summarize everything learned so far in the context.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"context": map[string]any{
						"type":        "string",
						"description": "Everything the supervisor needs: caller identity details, the request, dates and preferences mentioned so far.",
					},
				},
				"required": []string{"context"},
			},
		},
		{
			Name:        endTool,
			Description: "End the session after the caller said goodbye or has nothing further.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

func (f *Front) system() string {
	return f.instructions + "\n\n" +
		"You answer the phone for the practice. Greet, make small talk, and gather what the caller needs. " +
		"You cannot look anything up yourself: for any scheduling question, first say a short filler sentence so the caller is not left in silence, then call " + delegateTool + ". " +
		"When the supervisor answers, its text is read to the caller word for word, so do not plan to rephrase it."
}

// HandleUtterance processes one user turn. The supervisor's reply, when a
// delegation happens, is spoken verbatim: paraphrasing risks dropping
// confirmed appointment details.
func (f *Front) HandleUtterance(ctx context.Context, history []llm.ChatMessage, userText string) (*Reply, error) {
	messages := append([]llm.ChatMessage(nil), history...)
	userMsg := llm.ChatMessage{Role: "user", Content: userText}
	messages = append(messages, userMsg)

	start := time.Now()
	resp, err := f.client.Complete(ctx, &llm.CompletionRequest{
		Model:    f.model,
		System:   f.system(),
		Messages: messages,
		Tools:    f.tools(),
	})
	if err != nil {
		metrics.RecordLLMCompletion(f.model, "front", "error", time.Since(start).Seconds(), 0, 0)
		return nil, fmt.Errorf("front completion failed: %w", err)
	}
	metrics.RecordLLMCompletion(resp.Model, "front", "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	reply := &Reply{Messages: []llm.ChatMessage{userMsg}}

	if len(resp.ToolCalls) == 0 {
		reply.Utterances = append(reply.Utterances, resp.Content)
		reply.Messages = append(reply.Messages, llm.ChatMessage{Role: "assistant", Content: resp.Content})
		return reply, nil
	}

	call := resp.ToolCalls[0]
	switch call.Name {
	case endTool:
		if resp.Content != "" {
			reply.Utterances = append(reply.Utterances, resp.Content)
			reply.Messages = append(reply.Messages, llm.ChatMessage{Role: "assistant", Content: resp.Content})
		}
		reply.End = true
		return reply, nil

	case delegateTool:
		filler := resp.Content
		if filler == "" {
			filler = defaultFiller
		}
		reply.Utterances = append(reply.Utterances, filler)
		reply.Messages = append(reply.Messages, llm.ChatMessage{Role: "assistant", Content: filler})

		delegated := parseDelegationContext(call.Arguments, userText)
		answer, err := f.delegate(ctx, delegated, messages)
		if err != nil {
			f.logger.Error("delegation failed", zap.Error(err))
			answer = troubleReply
		}

		// Spoken verbatim, stored verbatim.
		reply.Utterances = append(reply.Utterances, answer)
		reply.Messages = append(reply.Messages, llm.ChatMessage{Role: "assistant", Content: answer})
		return reply, nil

	default:
		// The front toolset is fixed; anything else is a model mistake.
		f.logger.Warn("front agent requested unknown tool", zap.String("tool", call.Name))
		reply.Utterances = append(reply.Utterances, defaultFiller)
		reply.Messages = append(reply.Messages, llm.ChatMessage{Role: "assistant", Content: defaultFiller})
		return reply, nil
	}
}

func parseDelegationContext(arguments, fallback string) string {
	var args struct {
		Context string `json:"context"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err == nil && args.Context != "" {
		return args.Context
	}
	return fallback
}

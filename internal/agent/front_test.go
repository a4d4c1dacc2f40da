package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/clinicvoice-ai/session-orchestrator/internal/llm"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

func TestHandleUtterance_PlainReply(t *testing.T) {
	client := &scriptedClient{responses: []*llm.CompletionResponse{
		{Content: "Good morning, how can I help?"},
	}}
	front := NewFront(client, "front-model", "Be warm.", nil, logger.NewNop())

	reply, err := front.HandleUtterance(context.Background(), nil, "hello")
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if len(reply.Utterances) != 1 || reply.Utterances[0] != "Good morning, how can I help?" {
		t.Fatalf("utterances = %v", reply.Utterances)
	}
	if reply.End {
		t.Fatal("plain reply must not end the session")
	}
	// No scheduling tools leak to the front model.
	for _, tool := range client.requests[0].Tools {
		if tool.Name != delegateTool && tool.Name != endTool {
			t.Fatalf("front toolset contains %q", tool.Name)
		}
	}
}

func TestHandleUtterance_DelegationRelayedVerbatim(t *testing.T) {
	const supervisorAnswer = "Dr. Ray has 11:00 AM open this Thursday, shall I book it?"
	var gotContext string
	delegate := func(ctx context.Context, delegated string, history []llm.ChatMessage) (string, error) {
		gotContext = delegated
		return supervisorAnswer, nil
	}
	client := &scriptedClient{responses: []*llm.CompletionResponse{
		{
			Content:   "Let me check the schedule for you.",
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: delegateTool, Arguments: `{"context":"John Doe wants Thursday morning"}`}},
		},
	}}
	front := NewFront(client, "front-model", "Be warm.", delegate, logger.NewNop())

	reply, err := front.HandleUtterance(context.Background(), nil, "anything thursday morning?")
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if len(reply.Utterances) != 2 {
		t.Fatalf("expected filler + answer, got %v", reply.Utterances)
	}
	if reply.Utterances[0] != "Let me check the schedule for you." {
		t.Fatalf("filler = %q", reply.Utterances[0])
	}
	if reply.Utterances[1] != supervisorAnswer {
		t.Fatalf("supervisor answer was altered: %q", reply.Utterances[1])
	}
	if gotContext != "John Doe wants Thursday morning" {
		t.Fatalf("delegated context = %q", gotContext)
	}
}

func TestHandleUtterance_FillerFallback(t *testing.T) {
	delegate := func(ctx context.Context, delegated string, history []llm.ChatMessage) (string, error) {
		return "answer", nil
	}
	// Model delegates silently; the caller still hears something first.
	client := &scriptedClient{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: delegateTool, Arguments: `{"context":"x"}`}}},
	}}
	front := NewFront(client, "front-model", "", delegate, logger.NewNop())

	reply, err := front.HandleUtterance(context.Background(), nil, "book me in")
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if reply.Utterances[0] != defaultFiller {
		t.Fatalf("expected canned filler, got %q", reply.Utterances[0])
	}
}

func TestHandleUtterance_DelegationFailureSpeaksTroubleReply(t *testing.T) {
	delegate := func(ctx context.Context, delegated string, history []llm.ChatMessage) (string, error) {
		return "", errors.New("supervisor down")
	}
	client := &scriptedClient{responses: []*llm.CompletionResponse{
		{Content: "One sec.", ToolCalls: []llm.ToolCall{{ID: "c1", Name: delegateTool, Arguments: `{"context":"x"}`}}},
	}}
	front := NewFront(client, "front-model", "", delegate, logger.NewNop())

	reply, err := front.HandleUtterance(context.Background(), nil, "book me in")
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if reply.Utterances[1] != troubleReply {
		t.Fatalf("expected trouble reply, got %q", reply.Utterances[1])
	}
}

func TestHandleUtterance_EndSession(t *testing.T) {
	client := &scriptedClient{responses: []*llm.CompletionResponse{
		{Content: "Goodbye, take care!", ToolCalls: []llm.ToolCall{{ID: "c1", Name: endTool, Arguments: `{}`}}},
	}}
	front := NewFront(client, "front-model", "", nil, logger.NewNop())

	reply, err := front.HandleUtterance(context.Background(), nil, "bye")
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if !reply.End {
		t.Fatal("expected End")
	}
	if len(reply.Utterances) != 1 || reply.Utterances[0] != "Goodbye, take care!" {
		t.Fatalf("utterances = %v", reply.Utterances)
	}
}

func TestHandleUtterance_HistoryGrows(t *testing.T) {
	client := &scriptedClient{responses: []*llm.CompletionResponse{
		{Content: "hi there"},
	}}
	front := NewFront(client, "front-model", "", nil, logger.NewNop())

	reply, err := front.HandleUtterance(context.Background(), []llm.ChatMessage{
		{Role: "user", Content: "earlier"},
		{Role: "assistant", Content: "before"},
	}, "hello again")
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if len(reply.Messages) != 2 {
		t.Fatalf("expected user+assistant deltas, got %d", len(reply.Messages))
	}
	if got := len(client.requests[0].Messages); got != 3 {
		t.Fatalf("model saw %d messages, want 3", got)
	}
}

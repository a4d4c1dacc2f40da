package org

import (
	"context"
	"testing"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

func testResolver() *Resolver {
	dir := NewMemoryDirectory(
		&model.Organization{ID: "org-derm", Slug: "derm-clinic", PhoneNumbers: []string{"+15550100000"}},
		&model.Organization{ID: "org-default", Slug: "fallback"},
	)
	return NewResolver(dir, "org-default", logger.NewNop())
}

func TestResolveNumber_Mapped(t *testing.T) {
	r := testResolver()
	id, err := r.ResolveNumber(context.Background(), "+1 (555) 010-0000")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != "org-derm" {
		t.Fatalf("expected org-derm, got %s", id)
	}
}

func TestResolveNumber_Unmapped(t *testing.T) {
	r := testResolver()
	if _, err := r.ResolveNumber(context.Background(), "+19998887777"); err == nil {
		t.Fatal("expected not found")
	}
}

func TestResolveSession_FallsBackToDefaultOrg(t *testing.T) {
	r := testResolver()
	id := r.ResolveSession(context.Background(), &model.SessionMeta{
		SessionID: "call-1",
		To:        "+19998887777",
	})
	if id != "org-default" {
		t.Fatalf("unmapped number must route to default org, got %s", id)
	}
}

func TestResolveSession_PrefersPreAuthenticatedOrg(t *testing.T) {
	r := testResolver()
	id := r.ResolveSession(context.Background(), &model.SessionMeta{
		SessionID: "chat-1",
		OrgID:     "org-derm",
		OrgSlug:   "fallback",
	})
	if id != "org-derm" {
		t.Fatalf("pre-authenticated org must win, got %s", id)
	}
}

func TestResolveSession_Slug(t *testing.T) {
	r := testResolver()
	id := r.ResolveSession(context.Background(), &model.SessionMeta{SessionID: "chat-2", OrgSlug: "derm-clinic"})
	if id != "org-derm" {
		t.Fatalf("expected org-derm, got %s", id)
	}
}

func TestRememberCaller(t *testing.T) {
	r := testResolver()
	r.RememberCaller("+15557654321", "org-derm")
	id, ok := r.CallerOrg("+1 555 765 4321")
	if !ok || id != "org-derm" {
		t.Fatalf("caller mapping lost: %q %v", id, ok)
	}
}

package org

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

// Resolver maps an inbound identifier to an organization id. Lookups are
// pure and cached; a session is never rejected for an unmapped identifier.
// It falls to the configured default org instead, logged loudly, because
// inbound telephony cannot hard-fail on a misconfigured number.
type Resolver struct {
	directory    Directory
	defaultOrgID string
	logger       *logger.Logger

	mu      sync.RWMutex
	cache   map[string]string // identifier -> org id
	callers map[string]string // caller number -> org id, learned from sessions
}

// NewResolver creates a resolver over the given directory.
func NewResolver(directory Directory, defaultOrgID string, log *logger.Logger) *Resolver {
	return &Resolver{
		directory:    directory,
		defaultOrgID: defaultOrgID,
		logger:       log,
		cache:        make(map[string]string),
		callers:      make(map[string]string),
	}
}

// ResolveNumber maps a destination phone number to an org id.
func (r *Resolver) ResolveNumber(ctx context.Context, number string) (string, error) {
	key := "num:" + normalizeNumber(number)
	if id, ok := r.cached(key); ok {
		return id, nil
	}

	o, err := r.directory.ByNumber(ctx, number)
	if err != nil {
		return "", err
	}

	r.remember(key, o.ID)
	return o.ID, nil
}

// ResolveSlug maps a routing slug to an org id.
func (r *Resolver) ResolveSlug(ctx context.Context, slug string) (string, error) {
	key := "slug:" + slug
	if id, ok := r.cached(key); ok {
		return id, nil
	}

	o, err := r.directory.BySlug(ctx, slug)
	if err != nil {
		return "", err
	}

	r.remember(key, o.ID)
	return o.ID, nil
}

// ResolveSession resolves the org for a new session from gateway metadata:
// pre-authenticated org id, then slug, then destination number, then the
// default org. It never returns NotFound to a gateway.
func (r *Resolver) ResolveSession(ctx context.Context, meta *model.SessionMeta) string {
	if meta.OrgID != "" {
		if _, err := r.directory.ByID(ctx, meta.OrgID); err == nil {
			return meta.OrgID
		}
	}
	if meta.OrgSlug != "" {
		if id, err := r.ResolveSlug(ctx, meta.OrgSlug); err == nil {
			return id
		}
	}
	if meta.To != "" {
		if id, err := r.ResolveNumber(ctx, meta.To); err == nil {
			return id
		}
	}

	metrics.OrgFallbacksTotal.Inc()
	r.logger.Error("org resolution failed, falling back to default org",
		zap.String("session_id", meta.SessionID),
		zap.String("to", meta.To),
		zap.String("slug", meta.OrgSlug),
		zap.String("default_org_id", r.defaultOrgID),
	)
	return r.defaultOrgID
}

// RememberCaller records which org a caller number last reached. The webhook
// reconciler uses it as a fallback when an event references a session the
// orchestrator never saw.
func (r *Resolver) RememberCaller(from, orgID string) {
	if from == "" || orgID == "" {
		return
	}
	r.mu.Lock()
	r.callers[normalizeNumber(from)] = orgID
	r.mu.Unlock()
}

// CallerOrg returns the org a caller number was last attributed to.
func (r *Resolver) CallerOrg(from string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.callers[normalizeNumber(from)]
	return id, ok
}

// DefaultOrgID returns the configured fallback organization.
func (r *Resolver) DefaultOrgID() string {
	return r.defaultOrgID
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[key]
	return id, ok
}

func (r *Resolver) remember(key, id string) {
	r.mu.Lock()
	r.cache[key] = id
	r.mu.Unlock()
}

package channelcfg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

// builtinDefault is the last tier of the fallback chain. Resolution must
// never fail to produce some config, even with storage down and no system
// row configured.
var builtinDefault = model.ChannelConfig{
	Enabled:      true,
	ModelBackend: "gpt-4o",
	Instructions: "You are a helpful scheduling assistant for a medical practice. Help callers book, move, or cancel appointments.",
	AgentMode:    model.AgentModeDual,
}

// BuiltinDefault returns a copy of the hardcoded last-resort config.
func BuiltinDefault() *model.ChannelConfig {
	out := builtinDefault
	return &out
}

// ConfigureBuiltin overrides the last-resort config's model backends from
// deployment settings. Called once from main before any cache exists.
func ConfigureBuiltin(frontModel, supervisorModel string) {
	if frontModel != "" {
		builtinDefault.FrontModelBackend = frontModel
	}
	if supervisorModel != "" {
		builtinDefault.ModelBackend = supervisorModel
	}
}

type cacheEntry struct {
	cfg     *model.ChannelConfig
	expires time.Time
}

// Cache is a TTL read cache over the config store. Resolution order for a
// miss: org-specific row, system-wide row, built-in constant. Concurrent
// misses for the same key are collapsed into one backend read; admin writes
// must call Invalidate so changes are not masked for a full TTL window.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewCache creates a cache with the given TTL.
func NewCache(store Store, ttl time.Duration) *Cache {
	return &Cache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(orgID string, channel model.Channel) string {
	return fmt.Sprintf("%s|%s", orgID, channel)
}

// Get returns the effective config for (org, channel). It never fails.
func (c *Cache) Get(ctx context.Context, orgID string, channel model.Channel) *model.ChannelConfig {
	key := cacheKey(orgID, channel)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expires) {
		metrics.ConfigCacheLookups.WithLabelValues("hit").Inc()
		out := *entry.cfg
		return &out
	}

	metrics.ConfigCacheLookups.WithLabelValues("miss").Inc()

	v, _, _ := c.group.Do(key, func() (any, error) {
		cfg := c.resolve(ctx, orgID, channel)

		c.mu.Lock()
		c.entries[key] = cacheEntry{cfg: cfg, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()

		return cfg, nil
	})

	out := *(v.(*model.ChannelConfig))
	return &out
}

// Invalidate drops the cache entry for (org, channel). Required after any
// admin update; TTL expiry alone would mask the write for up to a minute.
func (c *Cache) Invalidate(orgID string, channel model.Channel) {
	c.mu.Lock()
	delete(c.entries, cacheKey(orgID, channel))
	c.mu.Unlock()
}

// resolve walks the fallback tiers in order. Each tier either produces a
// config or passes to the next; adding a tier means adding a function here.
func (c *Cache) resolve(ctx context.Context, orgID string, channel model.Channel) *model.ChannelConfig {
	tiers := []func(context.Context) (*model.ChannelConfig, error){
		func(ctx context.Context) (*model.ChannelConfig, error) {
			return c.store.Get(ctx, orgID, channel)
		},
		func(ctx context.Context) (*model.ChannelConfig, error) {
			return c.store.Get(ctx, systemOrgID, channel)
		},
		func(ctx context.Context) (*model.ChannelConfig, error) {
			return BuiltinDefault(), nil
		},
	}

	for _, tier := range tiers {
		cfg, err := tier(ctx)
		if err == nil && cfg != nil {
			return cfg
		}
		if err != nil && !errors.Is(err, ErrConfigNotFound) {
			// Storage failure: keep walking the chain rather than blocking
			// session start.
			continue
		}
	}

	return BuiltinDefault()
}

// SplitInstructions divides an instruction text into the front-agent and
// supervisor segments using the separator convention. Without a separator
// both agents receive the full text.
func SplitInstructions(instructions string) (front, supervisor string) {
	parts := strings.SplitN(instructions, model.InstructionSeparator, 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	full := strings.TrimSpace(instructions)
	return full, full
}

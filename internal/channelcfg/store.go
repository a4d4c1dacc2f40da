// Package channelcfg resolves per-(organization, channel) agent settings.
package channelcfg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
)

// ErrConfigNotFound is returned when no row exists for the given key.
var ErrConfigNotFound = errors.New("channel config not found")

// systemOrgID keys the system-wide row used when no org-specific row exists.
const systemOrgID = ""

// Store is the durable config storage written by the admin surface and read
// here. An empty orgID addresses the system-wide row.
type Store interface {
	Get(ctx context.Context, orgID string, channel model.Channel) (*model.ChannelConfig, error)
	Put(ctx context.Context, cfg *model.ChannelConfig) error
}

// RedisStore keeps config rows as JSON values in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed config store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(orgID string, channel model.Channel) string {
	if orgID == systemOrgID {
		return fmt.Sprintf("chancfg:system:%s", channel)
	}
	return fmt.Sprintf("chancfg:%s:%s", orgID, channel)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, orgID string, channel model.Channel) (*model.ChannelConfig, error) {
	data, err := s.client.Get(ctx, redisKey(orgID, channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read channel config: %w", err)
	}

	var cfg model.ChannelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode channel config: %w", err)
	}
	return &cfg, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, cfg *model.ChannelConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode channel config: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(cfg.OrgID, cfg.Channel), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write channel config: %w", err)
	}
	return nil
}

// MemoryStore is the in-process Store used in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*model.ChannelConfig

	// Reads counts backend lookups; tests use it to assert stampede control.
	Reads int
}

// NewMemoryStore creates an empty config store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*model.ChannelConfig)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, orgID string, channel model.Channel) (*model.ChannelConfig, error) {
	s.mu.Lock()
	s.Reads++
	row, ok := s.rows[redisKey(orgID, channel)]
	s.mu.Unlock()

	if !ok {
		return nil, ErrConfigNotFound
	}
	out := *row
	return &out, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, cfg *model.ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *cfg
	s.rows[redisKey(cfg.OrgID, cfg.Channel)] = &row
	return nil
}

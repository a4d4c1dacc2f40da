// Package org resolves inbound identifiers to organizations.
package org

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
)

// ErrNotFound is returned when no organization matches the identifier.
var ErrNotFound = errors.New("organization not found")

// Directory is the lookup table behind the resolver: a small, cacheable,
// read-mostly set of organizations.
type Directory interface {
	ByID(ctx context.Context, id string) (*model.Organization, error)
	ByNumber(ctx context.Context, number string) (*model.Organization, error)
	BySlug(ctx context.Context, slug string) (*model.Organization, error)
}

// MemoryDirectory is an in-memory Directory. The admin surface owns the
// durable org table; the orchestrator only needs this read view.
type MemoryDirectory struct {
	mu       sync.RWMutex
	orgs     map[string]*model.Organization
	byNumber map[string]string
	bySlug   map[string]string
}

// NewMemoryDirectory creates a directory preloaded with the given orgs.
func NewMemoryDirectory(orgs ...*model.Organization) *MemoryDirectory {
	d := &MemoryDirectory{
		orgs:     make(map[string]*model.Organization),
		byNumber: make(map[string]string),
		bySlug:   make(map[string]string),
	}
	for _, o := range orgs {
		d.Put(o)
	}
	return d
}

// Put adds or replaces an organization.
func (d *MemoryDirectory) Put(o *model.Organization) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.orgs[o.ID] = o
	if o.Slug != "" {
		d.bySlug[strings.ToLower(o.Slug)] = o.ID
	}
	for _, n := range o.PhoneNumbers {
		d.byNumber[normalizeNumber(n)] = o.ID
	}
}

// ByID implements Directory.
func (d *MemoryDirectory) ByID(ctx context.Context, id string) (*model.Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if o, ok := d.orgs[id]; ok {
		return o, nil
	}
	return nil, ErrNotFound
}

// ByNumber implements Directory.
func (d *MemoryDirectory) ByNumber(ctx context.Context, number string) (*model.Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if id, ok := d.byNumber[normalizeNumber(number)]; ok {
		return d.orgs[id], nil
	}
	return nil, ErrNotFound
}

// BySlug implements Directory.
func (d *MemoryDirectory) BySlug(ctx context.Context, slug string) (*model.Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if id, ok := d.bySlug[strings.ToLower(slug)]; ok {
		return d.orgs[id], nil
	}
	return nil, ErrNotFound
}

// normalizeNumber strips formatting so "+1 (555) 010-0000" and "+15550100000"
// hit the same key. Providers are inconsistent about this.
func normalizeNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LoadDirectory seeds a MemoryDirectory from a JSON file holding an array
// of organizations.
func LoadDirectory(path string) (*MemoryDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read org directory: %w", err)
	}
	var orgs []*model.Organization
	if err := json.Unmarshal(data, &orgs); err != nil {
		return nil, fmt.Errorf("failed to decode org directory: %w", err)
	}
	return NewMemoryDirectory(orgs...), nil
}

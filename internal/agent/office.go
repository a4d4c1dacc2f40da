// Package agent implements the two-tier conversational layer: the front
// agent a caller talks to, and the supervisor that owns the function catalog.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/booking"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
)

// Invoker executes one named booking function. Satisfied by *booking.Adapter.
type Invoker interface {
	Invoke(ctx context.Context, function string, params map[string]any, sessionID, orgID string) (*booking.Result, error)
}

// Provider is one bookable practitioner, as returned by list_providers.
type Provider struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Services []string `json:"services,omitempty"`
}

// OfficeState is read-only scheduling context fetched once per session and
// handed to the supervisor. Availability questions are then answered locally
// against the occupied set instead of one remote call per candidate time.
type OfficeState struct {
	Date      time.Time
	Providers []Provider
	// Occupied maps provider id to busy slot starts on Date.
	Occupied map[string][]time.Time
	Opening  time.Time
	Closing  time.Time
}

// FirstFreeSlot scans from opening in granularity steps and returns the
// first start not present in occupied. ok is false when the day is full.
func FirstFreeSlot(occupied []time.Time, opening, closing time.Time, granularity time.Duration) (time.Time, bool) {
	if granularity <= 0 {
		granularity = time.Hour
	}

	busy := make(map[int64]bool, len(occupied))
	for _, t := range occupied {
		busy[t.Truncate(time.Minute).Unix()] = true
	}

	for slot := opening; slot.Before(closing); slot = slot.Add(granularity) {
		if !busy[slot.Truncate(time.Minute).Unix()] {
			return slot, true
		}
	}
	return time.Time{}, false
}

// FirstFreeSlotFor answers availability for one provider from local state.
func (o *OfficeState) FirstFreeSlotFor(providerID string, granularity time.Duration) (time.Time, bool) {
	return FirstFreeSlot(o.Occupied[providerID], o.Opening, o.Closing, granularity)
}

// PrefetchOfficeState loads providers and their occupied slots for one day.
// Failures degrade to partial state rather than blocking the session; the
// supervisor can still fall back to remote lookups for what is missing.
func PrefetchOfficeState(ctx context.Context, inv Invoker, sessionID, orgID string, date time.Time, log *logger.Logger) *OfficeState {
	opening := time.Date(date.Year(), date.Month(), date.Day(), 9, 0, 0, 0, date.Location())
	closing := time.Date(date.Year(), date.Month(), date.Day(), 17, 0, 0, 0, date.Location())

	state := &OfficeState{
		Date:     date,
		Occupied: make(map[string][]time.Time),
		Opening:  opening,
		Closing:  closing,
	}

	res, err := inv.Invoke(ctx, "list_providers", nil, sessionID, orgID)
	if err != nil || !res.Success {
		log.Warn("office state prefetch skipped, provider list unavailable",
			zap.String("session_id", sessionID), zap.Error(err))
		return state
	}
	if err := json.Unmarshal(res.Result, &state.Providers); err != nil {
		log.Warn("office state prefetch: bad provider payload",
			zap.String("session_id", sessionID), zap.Error(err))
		return state
	}

	day := date.Format("2006-01-02")
	for _, p := range state.Providers {
		res, err := inv.Invoke(ctx, "get_occupied_slots", map[string]any{
			"provider_id": p.ID,
			"date":        day,
		}, sessionID, orgID)
		if err != nil || !res.Success {
			continue
		}
		var raw []string
		if err := json.Unmarshal(res.Result, &raw); err != nil {
			continue
		}
		for _, s := range raw {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				state.Occupied[p.ID] = append(state.Occupied[p.ID], t)
			}
		}
	}

	return state
}

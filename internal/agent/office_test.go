package agent

import (
	"testing"
	"time"
)

func slot(hour int) time.Time {
	return time.Date(2026, 1, 5, hour, 0, 0, 0, time.UTC)
}

func TestFirstFreeSlot_SkipsOccupiedWithoutOvershooting(t *testing.T) {
	occupied := []time.Time{slot(9), slot(10), slot(14)}

	free, ok := FirstFreeSlot(occupied, slot(9), slot(17), time.Hour)
	if !ok {
		t.Fatal("expected a free slot")
	}
	if !free.Equal(slot(11)) {
		t.Fatalf("expected 11:00, got %s", free.Format("15:04"))
	}
}

func TestFirstFreeSlot_OpeningFree(t *testing.T) {
	free, ok := FirstFreeSlot(nil, slot(9), slot(17), time.Hour)
	if !ok || !free.Equal(slot(9)) {
		t.Fatalf("expected 09:00, got %s ok=%v", free.Format("15:04"), ok)
	}
}

func TestFirstFreeSlot_DayFull(t *testing.T) {
	var occupied []time.Time
	for h := 9; h < 17; h++ {
		occupied = append(occupied, slot(h))
	}
	if _, ok := FirstFreeSlot(occupied, slot(9), slot(17), time.Hour); ok {
		t.Fatal("full day must report no slot")
	}
}

func TestFirstFreeSlot_FinerGranularity(t *testing.T) {
	occupied := []time.Time{slot(9)}
	free, ok := FirstFreeSlot(occupied, slot(9), slot(17), 30*time.Minute)
	if !ok {
		t.Fatal("expected a free slot")
	}
	want := slot(9).Add(30 * time.Minute)
	if !free.Equal(want) {
		t.Fatalf("expected 09:30, got %s", free.Format("15:04"))
	}
}

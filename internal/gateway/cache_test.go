package gateway_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/tmarkov/campus-parking/internal/gateway"
)

func makeEvent(n int) gateway.Event {
	return gateway.Event{
		EventID:    fmt.Sprintf("evt-%d", n),
		SensorID:   fmt.Sprintf("sensor-1-%d", n),
		LotID:      1,
		IsOccupied: n%2 == 0,
		ObservedAt: time.Date(2026, time.March, 2, 9, 0, n, 0, time.UTC),
	}
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	cache := gateway.NewCache(3)

	for i := 0; i < 4; i++ {
		cache.Add(makeEvent(i))
	}

	if cache.Len() != 3 {
		t.Fatalf("Expected length 3 after overflow, got %d", cache.Len())
	}

	events := cache.Snapshot()
	if events[0].EventID != "evt-1" {
		t.Errorf("Expected oldest surviving event evt-1, got %s", events[0].EventID)
	}
	if events[2].EventID != "evt-3" {
		t.Errorf("Expected newest event evt-3, got %s", events[2].EventID)
	}
	for _, e := range events {
		if e.EventID == "evt-0" {
			t.Error("Oldest event should have been evicted")
		}
	}
}

func TestCache_SnapshotOrderedOldestFirst(t *testing.T) {
	cache := gateway.NewCache(5)

	for i := 0; i < 8; i++ {
		cache.Add(makeEvent(i))
	}

	events := cache.Snapshot()
	if len(events) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(events))
	}
	for i, e := range events {
		want := fmt.Sprintf("evt-%d", i+3)
		if e.EventID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, e.EventID)
		}
	}
}

func TestCache_Capacity(t *testing.T) {
	cache := gateway.NewCache(10)

	if cache.Capacity() != 10 {
		t.Errorf("Expected capacity 10, got %d", cache.Capacity())
	}
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d", cache.Len())
	}

	cache.Add(makeEvent(1))
	if cache.Len() != 1 {
		t.Errorf("Expected length 1, got %d", cache.Len())
	}
}

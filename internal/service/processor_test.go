package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/config"
	"github.com/tmarkov/campus-parking/internal/gateway"
	"github.com/tmarkov/campus-parking/internal/service"
)

type sinkForwarder struct{}

func (sinkForwarder) Forward(ctx context.Context, e gateway.Event) error { return nil }

func newTestRegistry() *gateway.Registry {
	return gateway.NewRegistry(config.GatewayConfig{
		CacheSize:     10,
		FlushInterval: time.Hour,
		RegionByLot:   map[int64]string{1: "north"},
		DefaultRegion: "campus",
	}, sinkForwarder{}, zap.NewNop())
}

func TestProcessMessage_BuffersValidReading(t *testing.T) {
	registry := newTestRegistry()
	defer registry.Close()
	svc := service.NewIngestService(registry, zap.NewNop())

	body := []byte(`{
		"request_id": "req-1",
		"sensor_id": "sensor-1-1",
		"lot_id": 1,
		"is_occupied": true,
		"timestamp": "2026-03-02T09:15:00Z"
	}`)

	if err := svc.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	gw := registry.GatewayFor(1)
	stats := gw.Statistics()
	if stats.Received != 1 || stats.PendingSize != 1 {
		t.Errorf("Expected 1 buffered event, got %+v", stats)
	}

	cached := gw.CachedEvents()
	if len(cached) != 1 {
		t.Fatalf("Expected 1 cached event, got %d", len(cached))
	}
	if cached[0].SensorID != "sensor-1-1" || !cached[0].IsOccupied {
		t.Errorf("Unexpected event: %+v", cached[0])
	}
	if cached[0].EventID == "" {
		t.Error("Expected generated event id")
	}
	if cached[0].ReceivedAt.IsZero() {
		t.Error("Expected received_at to be stamped")
	}
}

func TestProcessMessage_MalformedJSON(t *testing.T) {
	registry := newTestRegistry()
	defer registry.Close()
	svc := service.NewIngestService(registry, zap.NewNop())

	if err := svc.ProcessMessage(context.Background(), []byte("{not json")); err == nil {
		t.Error("Expected error for malformed payload")
	}
}

func TestProcessMessage_MissingOccupiedFlag(t *testing.T) {
	registry := newTestRegistry()
	defer registry.Close()
	svc := service.NewIngestService(registry, zap.NewNop())

	body := []byte(`{
		"sensor_id": "sensor-1-1",
		"lot_id": 1,
		"timestamp": "2026-03-02T09:15:00Z"
	}`)

	err := svc.ProcessMessage(context.Background(), body)
	if !errors.Is(err, gateway.ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent, got %v", err)
	}

	// The reading must not reach any gateway queue. Explicit false is
	// a valid value; only a missing flag is rejected.
	if got := registry.GatewayFor(1).Statistics().PendingSize; got != 0 {
		t.Errorf("Rejected reading was buffered, pending=%d", got)
	}
}

func TestProcessMessage_InvalidReadingRejectedByGateway(t *testing.T) {
	registry := newTestRegistry()
	defer registry.Close()
	svc := service.NewIngestService(registry, zap.NewNop())

	// Missing sensor_id passes decoding but fails gateway validation.
	body := []byte(`{
		"lot_id": 1,
		"is_occupied": false,
		"timestamp": "2026-03-02T09:15:00Z"
	}`)

	err := svc.ProcessMessage(context.Background(), body)
	if !errors.Is(err, gateway.ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent, got %v", err)
	}
}

func TestProcessMessage_RoutesByLotRegion(t *testing.T) {
	registry := newTestRegistry()
	defer registry.Close()
	svc := service.NewIngestService(registry, zap.NewNop())

	mapped := []byte(`{"sensor_id": "sensor-1-1", "lot_id": 1, "is_occupied": true, "timestamp": "2026-03-02T09:15:00Z"}`)
	unmapped := []byte(`{"sensor_id": "sensor-9-1", "lot_id": 9, "is_occupied": true, "timestamp": "2026-03-02T09:15:00Z"}`)

	if err := svc.ProcessMessage(context.Background(), mapped); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if err := svc.ProcessMessage(context.Background(), unmapped); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	north := registry.GatewayFor(1)
	fallback := registry.GatewayFor(9)

	if north == fallback {
		t.Fatal("Expected distinct gateways for distinct regions")
	}
	if north.Statistics().Received != 1 {
		t.Errorf("north: expected 1 reading, got %d", north.Statistics().Received)
	}
	if fallback.Region() != "campus" {
		t.Errorf("Expected fallback region campus, got %s", fallback.Region())
	}
}

package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/gateway"
)

// stubForwarder records forwarded events and fails on configured IDs.
type stubForwarder struct {
	failIDs   map[string]bool
	delivered []gateway.Event
}

func (f *stubForwarder) Forward(ctx context.Context, e gateway.Event) error {
	if f.failIDs[e.EventID] {
		return errors.New("central unreachable")
	}
	f.delivered = append(f.delivered, e)
	return nil
}

func newTestGateway(f gateway.Forwarder) *gateway.Gateway {
	return gateway.New(gateway.Config{
		Region:    "north",
		CacheSize: 100,
		Forwarder: f,
		Logger:    zap.NewNop(),
	})
}

func TestIngest_RejectsInvalidEvent(t *testing.T) {
	fwd := &stubForwarder{}
	gw := newTestGateway(fwd)

	err := gw.Ingest(gateway.Event{LotID: 1, ObservedAt: time.Now()})
	if err == nil {
		t.Fatal("Expected error for event without sensor_id")
	}
	if !errors.Is(err, gateway.ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent, got %v", err)
	}

	stats := gw.Statistics()
	if stats.Received != 1 {
		t.Errorf("Rejected event should still count as received, got %d", stats.Received)
	}
	if stats.PendingSize != 0 {
		t.Errorf("Rejected event must not be queued, pending=%d", stats.PendingSize)
	}
	if stats.CacheSize != 0 {
		t.Errorf("Rejected event must not be cached, cache=%d", stats.CacheSize)
	}
}

func TestFlush_RequeuesOnlyFailedEvents(t *testing.T) {
	fwd := &stubForwarder{failIDs: map[string]bool{"evt-1": true}}
	gw := newTestGateway(fwd)

	for i := 0; i < 3; i++ {
		if err := gw.Ingest(makeEvent(i)); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	res := gw.Flush(context.Background())

	if res.Forwarded != 2 {
		t.Errorf("Expected 2 forwarded, got %d", res.Forwarded)
	}
	if res.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", res.Failed)
	}

	stats := gw.Statistics()
	if stats.Forwarded != 2 {
		t.Errorf("Expected forwarded counter 2, got %d", stats.Forwarded)
	}
	if stats.Errors != 1 {
		t.Errorf("Expected error counter 1, got %d", stats.Errors)
	}
	if stats.PendingSize != 1 {
		t.Fatalf("Expected exactly the failed event pending, got %d", stats.PendingSize)
	}

	// The failed event succeeds on the next cycle.
	fwd.failIDs = nil
	res = gw.Flush(context.Background())
	if res.Forwarded != 1 || res.Failed != 0 {
		t.Errorf("Retry cycle: expected 1 forwarded, 0 failed, got %+v", res)
	}
	if got := gw.Statistics().PendingSize; got != 0 {
		t.Errorf("Expected empty pending queue after retry, got %d", got)
	}
}

func TestFlush_EmptyQueueIsNoop(t *testing.T) {
	fwd := &stubForwarder{}
	gw := newTestGateway(fwd)

	res := gw.Flush(context.Background())
	if res.Forwarded != 0 || res.Failed != 0 {
		t.Errorf("Expected no-op flush, got %+v", res)
	}
	if len(fwd.delivered) != 0 {
		t.Errorf("Nothing should have been forwarded, got %d", len(fwd.delivered))
	}
}

// chainForwarder invokes a callback on every delivery, letting a test
// inject events while a flush is in progress.
type chainForwarder struct {
	calls     int
	onForward func()
}

func (f *chainForwarder) Forward(ctx context.Context, e gateway.Event) error {
	f.calls++
	if f.onForward != nil {
		f.onForward()
	}
	return nil
}

func TestIngest_DuringFlushLandsInNextBatch(t *testing.T) {
	fwd := &chainForwarder{}
	gw := newTestGateway(fwd)

	// A sensor reading arrives while delivery of the first batch is in
	// progress; it must not join the in-flight batch.
	fwd.onForward = func() {
		if fwd.calls == 1 {
			if err := gw.Ingest(makeEvent(99)); err != nil {
				t.Errorf("Mid-flush ingest failed: %v", err)
			}
		}
	}

	if err := gw.Ingest(makeEvent(0)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	res := gw.Flush(context.Background())
	if res.Forwarded != 1 {
		t.Errorf("Expected only the pre-flush event forwarded, got %d", res.Forwarded)
	}

	stats := gw.Statistics()
	if stats.PendingSize != 1 {
		t.Errorf("Mid-flush event should wait for the next cycle, pending=%d", stats.PendingSize)
	}
}

func TestStatistics_DoesNotMutate(t *testing.T) {
	fwd := &stubForwarder{}
	gw := newTestGateway(fwd)

	for i := 0; i < 5; i++ {
		if err := gw.Ingest(makeEvent(i)); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	first := gw.Statistics()
	second := gw.Statistics()

	if first != second {
		t.Errorf("Statistics mutated state: %+v vs %+v", first, second)
	}
	if first.Received != 5 || first.PendingSize != 5 || first.CacheSize != 5 {
		t.Errorf("Unexpected stats: %+v", first)
	}
	if first.GatewayID != "gateway-north" {
		t.Errorf("Expected gateway-north, got %s", first.GatewayID)
	}
}

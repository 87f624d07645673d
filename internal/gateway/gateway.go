package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/logging"
)

// Forwarder delivers a single event to the central authority. A nil
// return confirms the update was applied; any error means the event
// must be retried on a later flush cycle.
type Forwarder interface {
	Forward(ctx context.Context, e Event) error
}

// Config holds the settings for one regional gateway
type Config struct {
	Region    string
	CacheSize int
	Forwarder Forwarder
	Logger    *zap.Logger
	// PendingWarnThreshold logs a warning when the retry queue grows
	// past it; 0 disables the check. The queue is unbounded.
	PendingWarnThreshold int
}

// Gateway buffers occupancy events for one region and delivers them to
// the central authority in periodic batches with at-least-once
// semantics. Ingest never blocks on the network; delivery happens only
// in Flush.
type Gateway struct {
	id     string
	region string

	cache *Cache

	mu      sync.Mutex
	pending []Event

	received  atomic.Int64
	forwarded atomic.Int64
	errors    atomic.Int64

	forwarder     Forwarder
	warnThreshold int
	logger        *zap.Logger
}

// Stats is a read-only snapshot of gateway counters
type Stats struct {
	GatewayID   string `json:"gateway_id"`
	Region      string `json:"region"`
	Received    int64  `json:"total_received"`
	Forwarded   int64  `json:"total_forwarded"`
	Errors      int64  `json:"total_errors"`
	CacheSize   int    `json:"cache_size"`
	PendingSize int    `json:"pending_updates"`
}

// FlushResult reports the outcome of one delivery cycle
type FlushResult struct {
	Forwarded int
	Failed    int
}

// New creates a gateway for the given region
func New(cfg Config) *Gateway {
	return &Gateway{
		id:            "gateway-" + cfg.Region,
		region:        cfg.Region,
		cache:         NewCache(cfg.CacheSize),
		forwarder:     cfg.Forwarder,
		warnThreshold: cfg.PendingWarnThreshold,
		logger:        logging.WithGateway(cfg.Logger, "gateway-"+cfg.Region),
	}
}

// ID returns the gateway identifier
func (g *Gateway) ID() string {
	return g.id
}

// Region returns the region this gateway serves
func (g *Gateway) Region() string {
	return g.region
}

// Ingest validates and buffers a sensor event. The event lands in the
// ring cache and on the pending delivery queue; no network I/O happens
// here.
func (g *Gateway) Ingest(e Event) error {
	g.received.Add(1)

	if err := e.Validate(); err != nil {
		g.logger.Warn("rejected sensor event", zap.Error(err))
		return fmt.Errorf("ingest: %w", err)
	}

	g.cache.Add(e)

	g.mu.Lock()
	g.pending = append(g.pending, e)
	pendingSize := len(g.pending)
	g.mu.Unlock()

	if g.warnThreshold > 0 && pendingSize > g.warnThreshold {
		g.logger.Warn("pending queue above threshold",
			zap.Int("pending", pendingSize),
			zap.Int("threshold", g.warnThreshold))
	}

	g.logger.Debug("buffered sensor event",
		zap.String("sensor_id", e.SensorID),
		zap.Bool("is_occupied", e.IsOccupied))
	return nil
}

// Flush swaps out the pending queue and attempts to forward each
// captured event. Failed events are re-enqueued onto the current
// pending queue for the next cycle, so an event is dropped only if the
// process dies: at-least-once, with no ordering guarantee across
// retries relative to newly arriving events.
func (g *Gateway) Flush(ctx context.Context) FlushResult {
	g.mu.Lock()
	batch := g.pending
	g.pending = nil
	g.mu.Unlock()

	if len(batch) == 0 {
		return FlushResult{}
	}

	g.logger.Info("syncing updates to central", zap.Int("count", len(batch)))

	var res FlushResult
	for _, e := range batch {
		if err := g.forwarder.Forward(ctx, e); err != nil {
			g.errors.Add(1)
			res.Failed++
			g.logger.Error("failed to forward event, will retry",
				zap.Error(err),
				zap.String("sensor_id", e.SensorID))

			g.mu.Lock()
			g.pending = append(g.pending, e)
			g.mu.Unlock()
			continue
		}
		g.forwarded.Add(1)
		res.Forwarded++
	}
	return res
}

// Statistics returns a snapshot of the gateway's counters without
// mutating them.
func (g *Gateway) Statistics() Stats {
	g.mu.Lock()
	pendingSize := len(g.pending)
	g.mu.Unlock()

	return Stats{
		GatewayID:   g.id,
		Region:      g.region,
		Received:    g.received.Load(),
		Forwarded:   g.forwarded.Load(),
		Errors:      g.errors.Load(),
		CacheSize:   g.cache.Len(),
		PendingSize: pendingSize,
	}
}

// CachedEvents returns the diagnostic ring buffer contents, oldest
// first.
func (g *Gateway) CachedEvents() []Event {
	return g.cache.Snapshot()
}

// run drives the periodic flush loop until ctx is cancelled. Retries
// are paced by the flush interval; there is no immediate re-attempt.
func (g *Gateway) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.logger.Info("flush loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("flush loop stopped")
			return
		case <-ticker.C:
			g.Flush(ctx)
		}
	}
}

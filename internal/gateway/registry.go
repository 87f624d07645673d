package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/config"
)

// Registry owns the gateways of all regions. Regions are a static
// partition of lots fixed at configuration time; gateway instances are
// created lazily on the first event for a region and live until Close.
type Registry struct {
	mu       sync.Mutex
	gateways map[string]*Gateway

	regionByLot   map[int64]string
	defaultRegion string

	cacheSize     int
	flushInterval time.Duration
	warnThreshold int
	forwarder     Forwarder
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry from gateway configuration
func NewRegistry(cfg config.GatewayConfig, forwarder Forwarder, logger *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		gateways:      make(map[string]*Gateway),
		regionByLot:   cfg.RegionByLot,
		defaultRegion: cfg.DefaultRegion,
		cacheSize:     cfg.CacheSize,
		flushInterval: cfg.FlushInterval,
		warnThreshold: cfg.PendingWarnThreshold,
		forwarder:     forwarder,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// RegionFor resolves the region a lot belongs to. The mapping is
// deterministic: the configured table, falling back to the default
// region.
func (r *Registry) RegionFor(lotID int64) string {
	if region, ok := r.regionByLot[lotID]; ok {
		return region
	}
	return r.defaultRegion
}

// GatewayFor returns the gateway serving the lot's region, creating it
// and starting its flush loop on first use.
func (r *Registry) GatewayFor(lotID int64) *Gateway {
	region := r.RegionFor(lotID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gw, ok := r.gateways[region]; ok {
		return gw
	}

	gw := New(Config{
		Region:               region,
		CacheSize:            r.cacheSize,
		Forwarder:            r.forwarder,
		Logger:               r.logger,
		PendingWarnThreshold: r.warnThreshold,
	})
	r.gateways[region] = gw

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		gw.run(r.ctx, r.flushInterval)
	}()

	r.logger.Info("created regional gateway",
		zap.String("region", region),
		zap.Int64("lot_id", lotID))
	return gw
}

// All returns the currently active gateways
func (r *Registry) All() []*Gateway {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Gateway, 0, len(r.gateways))
	for _, gw := range r.gateways {
		out = append(out, gw)
	}
	return out
}

// Close stops every flush loop and waits for them to exit
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

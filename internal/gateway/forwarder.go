package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPForwarder delivers events to the central server's occupancy
// endpoint. Only a 200 response counts as a confirmed delivery; any
// other status or a transport error is a failure and the gateway will
// retry on the next flush cycle.
type HTTPForwarder struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewHTTPForwarder creates a forwarder posting to baseURL with a
// bounded per-request timeout.
func NewHTTPForwarder(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPForwarder {
	return &HTTPForwarder{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Forward posts one event to the central occupancy endpoint
func (f *HTTPForwarder) Forward(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/api/sensor-update", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach central server: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("central server returned %d", resp.StatusCode)
	}
	return nil
}

// OccupancyApplier is the central-authority operation the local
// forwarder calls. Implemented by the ledger.
type OccupancyApplier interface {
	ApplyOccupancy(ctx context.Context, sensorID string, occupied bool) error
}

// LocalForwarder applies occupancy updates in-process. Used when the
// gateway and the central ledger run in a single binary.
type LocalForwarder struct {
	applier OccupancyApplier
}

// NewLocalForwarder creates a forwarder backed by the given applier
func NewLocalForwarder(applier OccupancyApplier) *LocalForwarder {
	return &LocalForwarder{applier: applier}
}

// Forward applies one event directly to the central ledger
func (f *LocalForwarder) Forward(ctx context.Context, e Event) error {
	return f.applier.ApplyOccupancy(ctx, e.SensorID, e.IsOccupied)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/gateway"
	"github.com/tmarkov/campus-parking/internal/logging"
)

// SensorReading is the wire shape of an inbound sensor message.
// IsOccupied is a pointer so a missing field can be told apart from an
// explicit false.
type SensorReading struct {
	RequestID  string    `json:"request_id"`
	SensorID   string    `json:"sensor_id"`
	LotID      int64     `json:"lot_id"`
	IsOccupied *bool     `json:"is_occupied"`
	Timestamp  time.Time `json:"timestamp"`
}

// IngestService routes raw sensor readings from the queue to the
// regional gateway responsible for the reading's lot.
type IngestService struct {
	registry *gateway.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewIngestService creates a new ingest service
func NewIngestService(registry *gateway.Registry, logger *zap.Logger) *IngestService {
	return &IngestService{
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessMessage decodes one sensor reading and buffers it on the
// owning gateway. A returned error sends the message to the DLQ;
// validation failures are terminal, never retried.
func (s *IngestService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg SensorReading
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal sensor reading: %w", err)
	}
	if msg.RequestID == "" {
		msg.RequestID = uuid.New().String()
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)

	if msg.IsOccupied == nil {
		reqLogger.Warn("sensor reading missing is_occupied",
			zap.String("sensor_id", msg.SensorID))
		return fmt.Errorf("sensor reading missing is_occupied: %w", gateway.ErrInvalidEvent)
	}

	event := gateway.Event{
		EventID:    uuid.New().String(),
		SensorID:   msg.SensorID,
		LotID:      msg.LotID,
		IsOccupied: *msg.IsOccupied,
		ObservedAt: msg.Timestamp,
		ReceivedAt: s.now(),
	}

	gw := s.registry.GatewayFor(msg.LotID)
	if err := gw.Ingest(event); err != nil {
		reqLogger.Warn("gateway rejected sensor reading",
			zap.Error(err),
			zap.String("sensor_id", msg.SensorID))
		return err
	}

	reqLogger.Debug("sensor reading buffered",
		zap.String("sensor_id", msg.SensorID),
		zap.String("gateway_id", gw.ID()))
	return nil
}

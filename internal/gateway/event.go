package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent marks a sensor reading rejected at the edge. Invalid
// readings are never queued and never retried.
var ErrInvalidEvent = errors.New("invalid sensor event")

// Event is a single occupancy observation produced by a sensor.
// Immutable once created.
type Event struct {
	EventID    string    `json:"event_id,omitempty"`
	SensorID   string    `json:"sensor_id"`
	LotID      int64     `json:"lot_id"`
	IsOccupied bool      `json:"is_occupied"`
	ObservedAt time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// Validate checks the required fields of an event
func (e Event) Validate() error {
	if e.SensorID == "" {
		return fmt.Errorf("%w: missing sensor_id", ErrInvalidEvent)
	}
	if e.LotID <= 0 {
		return fmt.Errorf("%w: missing or invalid lot_id", ErrInvalidEvent)
	}
	if e.ObservedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}

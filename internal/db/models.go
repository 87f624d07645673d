package db

import (
	"time"
)

// BookingStatus is the lifecycle state of a booking. Transitions are
// active -> completed and active -> cancelled; both are terminal.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// User represents a system user in the database
type User struct {
	ID        int64
	Username  string
	Email     string
	Phone     *string
	CreatedAt time.Time
}

// ParkingLot represents a parking lot in the database.
// AvailableSlots always equals TotalSlots minus the number of
// occupied slots in the lot.
type ParkingLot struct {
	ID             int64
	Name           string
	Location       string
	TotalSlots     int
	AvailableSlots int
	GatewayID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ParkingSlot represents an individual parking slot. Exactly one slot
// exists per sensor.
type ParkingSlot struct {
	ID          int64
	SlotNumber  string
	LotID       int64
	IsOccupied  bool
	SensorID    string
	LastUpdated time.Time
}

// Booking represents a parking slot booking. PricePerHour is locked
// at creation; EndTime is the projected end until the booking is
// completed, at which point it becomes the actual end.
type Booking struct {
	ID           int64
	UserID       int64
	SlotID       int64
	StartTime    time.Time
	EndTime      *time.Time
	PricePerHour float64
	TotalPrice   float64
	Status       BookingStatus
	CreatedAt    time.Time
}

// PricingLog is an append-only audit row written once per pricing
// snapshot, never updated.
type PricingLog struct {
	ID            int64
	LotID         int64
	Timestamp     time.Time
	OccupancyRate float64
	BasePrice     float64
	AdjustedPrice float64
	IsPeakHour    bool
}

// SensorLog is an append-only audit row written for every occupancy
// flip applied by the ledger.
type SensorLog struct {
	ID         int64
	SensorID   string
	Timestamp  time.Time
	IsOccupied bool
	GatewayID  string
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/tmarkov/campus-parking/internal/db"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Queries is the set of read and write operations available both on
// the store itself and inside a transaction.
type Queries interface {
	GetUser(ctx context.Context, id int64) (*db.User, error)
	ListUsers(ctx context.Context) ([]db.User, error)

	GetLot(ctx context.Context, id int64) (*db.ParkingLot, error)
	// LockLot reads a lot and holds it against concurrent writers
	// until the enclosing transaction ends.
	LockLot(ctx context.Context, id int64) (*db.ParkingLot, error)
	ListLots(ctx context.Context) ([]db.ParkingLot, error)
	AdjustLotAvailability(ctx context.Context, lotID int64, delta int, at time.Time) error

	GetSlot(ctx context.Context, id int64) (*db.ParkingSlot, error)
	LockSlot(ctx context.Context, id int64) (*db.ParkingSlot, error)
	GetSlotBySensor(ctx context.Context, sensorID string) (*db.ParkingSlot, error)
	// ListAvailableSlots returns unoccupied slots; lotID 0 means all lots.
	ListAvailableSlots(ctx context.Context, lotID int64) ([]db.ParkingSlot, error)
	SetSlotOccupied(ctx context.Context, slotID int64, occupied bool, at time.Time) error
	// TouchSlot bumps last_updated without changing occupancy.
	TouchSlot(ctx context.Context, slotID int64, at time.Time) error

	GetBooking(ctx context.Context, id int64) (*db.Booking, error)
	LockBooking(ctx context.Context, id int64) (*db.Booking, error)
	// ListUserBookings returns a user's bookings, newest first;
	// empty status means all statuses.
	ListUserBookings(ctx context.Context, userID int64, status db.BookingStatus) ([]db.Booking, error)
	CountBookings(ctx context.Context, status db.BookingStatus) (int, error)
	InsertBooking(ctx context.Context, b *db.Booking) error
	UpdateBooking(ctx context.Context, b *db.Booking) error

	AppendSensorLog(ctx context.Context, row *db.SensorLog) error
	AppendPricingLog(ctx context.Context, row *db.PricingLog) error
}

// Store is the persistence boundary of the central ledger. WithinTx
// runs fn as an all-or-nothing unit: either every write inside fn is
// applied or none is.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/db"
	"github.com/tmarkov/campus-parking/internal/pricing"
	"github.com/tmarkov/campus-parking/internal/store"
)

// SlotStateEvent is published after the ledger commits an occupancy
// flip, whichever path caused it.
type SlotStateEvent struct {
	SensorID   string    `json:"sensor_id"`
	SlotID     int64     `json:"slot_id"`
	LotID      int64     `json:"lot_id"`
	IsOccupied bool      `json:"is_occupied"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventPublisher emits slot state changes to downstream consumers.
type EventPublisher interface {
	PublishSlotState(ctx context.Context, e SlotStateEvent) error
}

// Config holds ledger settings
type Config struct {
	MaxDailyPrice float64
	// Publisher is optional; nil disables event emission.
	Publisher EventPublisher
	Logger    *zap.Logger
	// Now supplies the single time sample used per operation.
	// Defaults to time.Now.
	Now func() time.Time
}

// Ledger is the single writer of slot, lot and booking state. Every
// operation that touches a slot serializes on that slot and commits
// all-or-nothing through the store.
type Ledger struct {
	store         store.Store
	engine        *pricing.Engine
	maxDailyPrice float64
	publisher     EventPublisher
	logger        *zap.Logger
	now           func() time.Time
	locks         slotLocks
}

// New creates a ledger over the given store and pricing engine
func New(st store.Store, engine *pricing.Engine, cfg Config) *Ledger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:         st,
		engine:        engine,
		maxDailyPrice: cfg.MaxDailyPrice,
		publisher:     cfg.Publisher,
		logger:        logger,
		now:           now,
	}
}

// LotStats is the derived occupancy view of one lot.
type LotStats struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Location       string  `json:"location"`
	TotalSlots     int     `json:"total_slots"`
	AvailableSlots int     `json:"available_slots"`
	OccupiedSlots  int     `json:"occupied_slots"`
	OccupancyRate  float64 `json:"occupancy_rate"`
	GatewayID      string  `json:"gateway_id"`
}

// SystemStats aggregates occupancy and booking counts across the campus.
type SystemStats struct {
	TotalLots            int        `json:"total_parking_lots"`
	TotalSlots           int        `json:"total_slots"`
	AvailableSlots       int        `json:"available_slots"`
	OccupiedSlots        int        `json:"occupied_slots"`
	OverallOccupancyRate float64    `json:"overall_occupancy_rate"`
	TotalBookings        int        `json:"total_bookings"`
	ActiveBookings       int        `json:"active_bookings"`
	CompletedBookings    int        `json:"completed_bookings"`
	Lots                 []LotStats `json:"parking_lots"`
}

// CreateBookingRequest is the input to CreateBooking.
type CreateBookingRequest struct {
	UserID        int64
	SlotID        int64
	DurationHours int
	// PricePerHour, when set, locks a previously quoted price so the
	// committed price cannot drift from the quote. The peak flag is
	// still computed fresh for display.
	PricePerHour *float64
}

// BookingReceipt is the result of a successful CreateBooking.
type BookingReceipt struct {
	Booking    *db.Booking
	IsPeakHour bool
	SlotNumber string
	LotName    string
}

// ApplyOccupancy applies a sensor's occupancy flag to its slot.
// Idempotent by (sensor, flag): a redelivered update only bumps
// last_updated and leaves availability untouched. A changed flag
// adjusts the lot's availability and appends a sensor log row, all in
// one transaction.
func (l *Ledger) ApplyOccupancy(ctx context.Context, sensorID string, occupied bool) error {
	slot, err := l.store.GetSlotBySensor(ctx, sensorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("sensor %q: %w", sensorID, ErrNotFound)
		}
		return err
	}

	unlock := l.locks.lock(slot.ID)
	defer unlock()

	now := l.now()
	changed := false
	var lotID int64

	err = l.store.WithinTx(ctx, func(q store.Queries) error {
		s, err := q.LockSlot(ctx, slot.ID)
		if err != nil {
			return err
		}
		lotID = s.LotID

		if s.IsOccupied == occupied {
			// Redelivery of already-applied state.
			return q.TouchSlot(ctx, s.ID, now)
		}
		changed = true

		lot, err := q.LockLot(ctx, s.LotID)
		if err != nil {
			return err
		}
		if err := q.SetSlotOccupied(ctx, s.ID, occupied, now); err != nil {
			return err
		}
		delta := 1
		if occupied {
			delta = -1
		}
		if err := q.AdjustLotAvailability(ctx, lot.ID, delta, now); err != nil {
			return err
		}
		return q.AppendSensorLog(ctx, &db.SensorLog{
			SensorID:   sensorID,
			Timestamp:  now,
			IsOccupied: occupied,
			GatewayID:  lot.GatewayID,
		})
	})
	if err != nil {
		return err
	}

	if changed {
		l.logger.Info("occupancy applied",
			zap.String("sensor_id", sensorID),
			zap.Bool("is_occupied", occupied))
		l.publishSlotState(ctx, SlotStateEvent{
			SensorID:   sensorID,
			SlotID:     slot.ID,
			LotID:      lotID,
			IsOccupied: occupied,
			Source:     "sensor",
			Timestamp:  now,
		})
	}
	return nil
}

// CreateBooking books a free slot for the given duration. The price is
// either locked from the request or computed from the lot's current
// occupancy; the total is capped at the daily maximum. Slot, lot and
// booking writes commit as one unit.
func (l *Ledger) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingReceipt, error) {
	if req.DurationHours < 1 || req.DurationHours > 24 {
		return nil, fmt.Errorf("duration_hours must be between 1 and 24: %w", ErrValidation)
	}

	unlock := l.locks.lock(req.SlotID)
	defer unlock()

	now := l.now()
	var receipt *BookingReceipt
	var event SlotStateEvent

	err := l.store.WithinTx(ctx, func(q store.Queries) error {
		if _, err := q.GetUser(ctx, req.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %d: %w", req.UserID, ErrNotFound)
			}
			return err
		}

		slot, err := q.LockSlot(ctx, req.SlotID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("slot %d: %w", req.SlotID, ErrNotFound)
			}
			return err
		}
		if slot.IsOccupied {
			return fmt.Errorf("slot %d is already occupied: %w", slot.ID, ErrConflict)
		}

		lot, err := q.LockLot(ctx, slot.LotID)
		if err != nil {
			return err
		}

		rate := occupancyRate(lot.TotalSlots, lot.AvailableSlots)
		var pricePerHour float64
		var isPeak bool
		if req.PricePerHour != nil {
			// Price lock: honor the quoted price as-is.
			pricePerHour = *req.PricePerHour
			_, isPeak = l.engine.CalculatePrice(rate, now)
		} else {
			pricePerHour, isPeak = l.engine.CalculatePrice(rate, now)
		}

		totalPrice := pricing.Round2(math.Min(
			pricePerHour*float64(req.DurationHours), l.maxDailyPrice))

		end := now.Add(time.Duration(req.DurationHours) * time.Hour)
		booking := &db.Booking{
			UserID:       req.UserID,
			SlotID:       slot.ID,
			StartTime:    now,
			EndTime:      &end,
			PricePerHour: pricePerHour,
			TotalPrice:   totalPrice,
			Status:       db.BookingActive,
			CreatedAt:    now,
		}
		if err := q.InsertBooking(ctx, booking); err != nil {
			return err
		}
		if err := q.SetSlotOccupied(ctx, slot.ID, true, now); err != nil {
			return err
		}
		if err := q.AdjustLotAvailability(ctx, lot.ID, -1, now); err != nil {
			return err
		}

		receipt = &BookingReceipt{
			Booking:    booking,
			IsPeakHour: isPeak,
			SlotNumber: slot.SlotNumber,
			LotName:    lot.Name,
		}
		event = SlotStateEvent{
			SensorID:   slot.SensorID,
			SlotID:     slot.ID,
			LotID:      lot.ID,
			IsOccupied: true,
			Source:     "booking",
			Timestamp:  now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("booking created",
		zap.Int64("booking_id", receipt.Booking.ID),
		zap.Int64("slot_id", req.SlotID),
		zap.Float64("price_per_hour", receipt.Booking.PricePerHour),
		zap.Bool("price_locked", req.PricePerHour != nil))
	l.publishSlotState(ctx, event)
	return receipt, nil
}

// CompleteBooking closes an active booking, billing the elapsed hours
// capped at the daily maximum, and frees the slot.
func (l *Ledger) CompleteBooking(ctx context.Context, bookingID int64) (*db.Booking, error) {
	return l.finishBooking(ctx, bookingID, db.BookingCompleted)
}

// CancelBooking cancels an active booking and frees the slot. The
// total price is left unchanged: cancellation does not bill.
func (l *Ledger) CancelBooking(ctx context.Context, bookingID int64) (*db.Booking, error) {
	return l.finishBooking(ctx, bookingID, db.BookingCancelled)
}

func (l *Ledger) finishBooking(ctx context.Context, bookingID int64, terminal db.BookingStatus) (*db.Booking, error) {
	peek, err := l.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("booking %d: %w", bookingID, ErrNotFound)
		}
		return nil, err
	}

	unlock := l.locks.lock(peek.SlotID)
	defer unlock()

	now := l.now()
	var updated *db.Booking
	var event *SlotStateEvent

	err = l.store.WithinTx(ctx, func(q store.Queries) error {
		b, err := q.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != db.BookingActive {
			return fmt.Errorf("booking %d is %s, not active: %w", bookingID, b.Status, ErrConflict)
		}

		if terminal == db.BookingCompleted {
			elapsedHours := now.Sub(b.StartTime).Hours()
			b.TotalPrice = pricing.Round2(math.Min(
				b.PricePerHour*elapsedHours, l.maxDailyPrice))
			b.EndTime = &now
		}
		b.Status = terminal
		if err := q.UpdateBooking(ctx, b); err != nil {
			return err
		}

		slot, err := q.LockSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		// Free the slot only if it is still held; a sensor update may
		// already have reported it vacant.
		if slot.IsOccupied {
			lot, err := q.LockLot(ctx, slot.LotID)
			if err != nil {
				return err
			}
			if err := q.SetSlotOccupied(ctx, slot.ID, false, now); err != nil {
				return err
			}
			if err := q.AdjustLotAvailability(ctx, lot.ID, 1, now); err != nil {
				return err
			}
			event = &SlotStateEvent{
				SensorID:   slot.SensorID,
				SlotID:     slot.ID,
				LotID:      lot.ID,
				IsOccupied: false,
				Source:     "booking",
				Timestamp:  now,
			}
		}

		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("booking closed",
		zap.Int64("booking_id", bookingID),
		zap.String("status", string(terminal)),
		zap.Float64("total_price", updated.TotalPrice))
	if event != nil {
		l.publishSlotState(ctx, *event)
	}
	return updated, nil
}

// GetBooking returns a booking by id
func (l *Ledger) GetBooking(ctx context.Context, id int64) (*db.Booking, error) {
	b, err := l.store.GetBooking(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return b, err
}

// ListUserBookings returns a user's bookings, newest first, optionally
// filtered by status.
func (l *Ledger) ListUserBookings(ctx context.Context, userID int64, status db.BookingStatus) ([]db.Booking, error) {
	return l.store.ListUserBookings(ctx, userID, status)
}

// ListUsers returns all users
func (l *Ledger) ListUsers(ctx context.Context) ([]db.User, error) {
	return l.store.ListUsers(ctx)
}

// AvailableSlots returns unoccupied slots; lotID 0 means all lots.
func (l *Ledger) AvailableSlots(ctx context.Context, lotID int64) ([]db.ParkingSlot, error) {
	return l.store.ListAvailableSlots(ctx, lotID)
}

// LotStats returns the derived occupancy view of every lot
func (l *Ledger) LotStats(ctx context.Context) ([]LotStats, error) {
	lots, err := l.store.ListLots(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]LotStats, 0, len(lots))
	for _, lot := range lots {
		stats = append(stats, lotStats(&lot))
	}
	return stats, nil
}

// GetLotStats returns the derived occupancy view of one lot
func (l *Ledger) GetLotStats(ctx context.Context, lotID int64) (*LotStats, error) {
	lot, err := l.store.GetLot(ctx, lotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("parking lot %d: %w", lotID, ErrNotFound)
		}
		return nil, err
	}
	s := lotStats(lot)
	return &s, nil
}

// PricingSnapshot quotes every lot at the current occupancy and time,
// and appends one pricing log row per lot as an immutable audit trail.
func (l *Ledger) PricingSnapshot(ctx context.Context) ([]pricing.Quote, error) {
	lots, err := l.store.ListLots(ctx)
	if err != nil {
		return nil, err
	}

	now := l.now()
	occ := make([]pricing.LotOccupancy, 0, len(lots))
	for _, lot := range lots {
		occ = append(occ, pricing.LotOccupancy{
			LotID:          lot.ID,
			Name:           lot.Name,
			Location:       lot.Location,
			TotalSlots:     lot.TotalSlots,
			AvailableSlots: lot.AvailableSlots,
			OccupancyRate:  occupancyRate(lot.TotalSlots, lot.AvailableSlots),
		})
	}
	quotes := l.engine.Snapshot(occ, now)

	err = l.store.WithinTx(ctx, func(q store.Queries) error {
		for _, quote := range quotes {
			row := &db.PricingLog{
				LotID:         quote.LotID,
				Timestamp:     now,
				OccupancyRate: quote.OccupancyRate,
				BasePrice:     quote.BasePrice,
				AdjustedPrice: quote.PricePerHour,
				IsPeakHour:    quote.IsPeakHour,
			}
			if err := q.AppendPricingLog(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

// SystemStats aggregates occupancy and booking counters
func (l *Ledger) SystemStats(ctx context.Context) (*SystemStats, error) {
	lotStats, err := l.LotStats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &SystemStats{
		TotalLots: len(lotStats),
		Lots:      lotStats,
	}
	for _, lot := range lotStats {
		stats.TotalSlots += lot.TotalSlots
		stats.AvailableSlots += lot.AvailableSlots
	}
	stats.OccupiedSlots = stats.TotalSlots - stats.AvailableSlots
	if stats.TotalSlots > 0 {
		stats.OverallOccupancyRate = pricing.Round2(
			float64(stats.OccupiedSlots) / float64(stats.TotalSlots) * 100)
	}

	if stats.TotalBookings, err = l.store.CountBookings(ctx, ""); err != nil {
		return nil, err
	}
	if stats.ActiveBookings, err = l.store.CountBookings(ctx, db.BookingActive); err != nil {
		return nil, err
	}
	if stats.CompletedBookings, err = l.store.CountBookings(ctx, db.BookingCompleted); err != nil {
		return nil, err
	}
	return stats, nil
}

func (l *Ledger) publishSlotState(ctx context.Context, e SlotStateEvent) {
	if l.publisher == nil {
		return
	}
	// Emission is best-effort; ledger state is already committed.
	if err := l.publisher.PublishSlotState(ctx, e); err != nil {
		l.logger.Error("failed to publish slot state event",
			zap.Error(err),
			zap.String("sensor_id", e.SensorID))
	}
}

func lotStats(lot *db.ParkingLot) LotStats {
	return LotStats{
		ID:             lot.ID,
		Name:           lot.Name,
		Location:       lot.Location,
		TotalSlots:     lot.TotalSlots,
		AvailableSlots: lot.AvailableSlots,
		OccupiedSlots:  lot.TotalSlots - lot.AvailableSlots,
		OccupancyRate:  occupancyRate(lot.TotalSlots, lot.AvailableSlots),
		GatewayID:      lot.GatewayID,
	}
}

func occupancyRate(totalSlots, availableSlots int) float64 {
	if totalSlots <= 0 {
		return 0
	}
	return pricing.Round2(float64(totalSlots-availableSlots) / float64(totalSlots) * 100)
}

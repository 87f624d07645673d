package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmarkov/campus-parking/internal/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	pgQueries
}

// NewPostgres creates a new Postgres store
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, pgQueries: pgQueries{db: pool}}
}

// WithinTx runs fn inside a database transaction
func (s *Postgres) WithinTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgQueries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgQueries struct {
	db querier
}

const userColumns = `id, username, email, phone, created_at`

func (q *pgQueries) GetUser(ctx context.Context, id int64) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var u db.User
	err := q.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (q *pgQueries) ListUsers(ctx context.Context) ([]db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return users, nil
}

const lotColumns = `id, name, location, total_slots, available_slots, gateway_id, created_at, updated_at`

func (q *pgQueries) scanLot(row pgx.Row) (*db.ParkingLot, error) {
	var l db.ParkingLot
	err := row.Scan(&l.ID, &l.Name, &l.Location, &l.TotalSlots, &l.AvailableSlots,
		&l.GatewayID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (q *pgQueries) GetLot(ctx context.Context, id int64) (*db.ParkingLot, error) {
	query := `SELECT ` + lotColumns + ` FROM parking_lots WHERE id = $1`

	lot, err := q.scanLot(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("parking lot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query parking lot: %w", err)
	}
	return lot, nil
}

func (q *pgQueries) LockLot(ctx context.Context, id int64) (*db.ParkingLot, error) {
	query := `SELECT ` + lotColumns + ` FROM parking_lots WHERE id = $1 FOR UPDATE`

	lot, err := q.scanLot(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("parking lot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock parking lot: %w", err)
	}
	return lot, nil
}

func (q *pgQueries) ListLots(ctx context.Context) ([]db.ParkingLot, error) {
	query := `SELECT ` + lotColumns + ` FROM parking_lots ORDER BY id`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query parking lots: %w", err)
	}
	defer rows.Close()

	var lots []db.ParkingLot
	for rows.Next() {
		var l db.ParkingLot
		if err := rows.Scan(&l.ID, &l.Name, &l.Location, &l.TotalSlots, &l.AvailableSlots,
			&l.GatewayID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan parking lot: %w", err)
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return lots, nil
}

func (q *pgQueries) AdjustLotAvailability(ctx context.Context, lotID int64, delta int, at time.Time) error {
	query := `
		UPDATE parking_lots
		SET available_slots = available_slots + $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := q.db.Exec(ctx, query, lotID, delta, at)
	if err != nil {
		return fmt.Errorf("failed to adjust lot availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("parking lot %d: %w", lotID, ErrNotFound)
	}
	return nil
}

const slotColumns = `id, slot_number, lot_id, is_occupied, sensor_id, last_updated`

func (q *pgQueries) scanSlot(row pgx.Row) (*db.ParkingSlot, error) {
	var s db.ParkingSlot
	err := row.Scan(&s.ID, &s.SlotNumber, &s.LotID, &s.IsOccupied, &s.SensorID, &s.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *pgQueries) GetSlot(ctx context.Context, id int64) (*db.ParkingSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM parking_slots WHERE id = $1`

	slot, err := q.scanSlot(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("parking slot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query parking slot: %w", err)
	}
	return slot, nil
}

func (q *pgQueries) LockSlot(ctx context.Context, id int64) (*db.ParkingSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM parking_slots WHERE id = $1 FOR UPDATE`

	slot, err := q.scanSlot(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("parking slot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock parking slot: %w", err)
	}
	return slot, nil
}

func (q *pgQueries) GetSlotBySensor(ctx context.Context, sensorID string) (*db.ParkingSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM parking_slots WHERE sensor_id = $1`

	slot, err := q.scanSlot(q.db.QueryRow(ctx, query, sensorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sensor %q: %w", sensorID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query slot by sensor: %w", err)
	}
	return slot, nil
}

func (q *pgQueries) ListAvailableSlots(ctx context.Context, lotID int64) ([]db.ParkingSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM parking_slots WHERE is_occupied = FALSE`
	args := []any{}
	if lotID != 0 {
		query += ` AND lot_id = $1`
		args = append(args, lotID)
	}
	query += ` ORDER BY id`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query available slots: %w", err)
	}
	defer rows.Close()

	var slots []db.ParkingSlot
	for rows.Next() {
		var s db.ParkingSlot
		if err := rows.Scan(&s.ID, &s.SlotNumber, &s.LotID, &s.IsOccupied, &s.SensorID, &s.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan parking slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return slots, nil
}

func (q *pgQueries) SetSlotOccupied(ctx context.Context, slotID int64, occupied bool, at time.Time) error {
	query := `
		UPDATE parking_slots
		SET is_occupied = $2, last_updated = $3
		WHERE id = $1
	`

	tag, err := q.db.Exec(ctx, query, slotID, occupied, at)
	if err != nil {
		return fmt.Errorf("failed to update slot occupancy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("parking slot %d: %w", slotID, ErrNotFound)
	}
	return nil
}

func (q *pgQueries) TouchSlot(ctx context.Context, slotID int64, at time.Time) error {
	query := `
		UPDATE parking_slots
		SET last_updated = $2
		WHERE id = $1
	`

	tag, err := q.db.Exec(ctx, query, slotID, at)
	if err != nil {
		return fmt.Errorf("failed to touch slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("parking slot %d: %w", slotID, ErrNotFound)
	}
	return nil
}

const bookingColumns = `id, user_id, slot_id, start_time, end_time, price_per_hour, total_price, status, created_at`

func (q *pgQueries) scanBooking(row pgx.Row) (*db.Booking, error) {
	var b db.Booking
	err := row.Scan(&b.ID, &b.UserID, &b.SlotID, &b.StartTime, &b.EndTime,
		&b.PricePerHour, &b.TotalPrice, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (q *pgQueries) GetBooking(ctx context.Context, id int64) (*db.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b, err := q.scanBooking(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query booking: %w", err)
	}
	return b, nil
}

func (q *pgQueries) LockBooking(ctx context.Context, id int64) (*db.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	b, err := q.scanBooking(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return b, nil
}

func (q *pgQueries) ListUserBookings(ctx context.Context, userID int64, status db.BookingStatus) ([]db.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user bookings: %w", err)
	}
	defer rows.Close()

	var bookings []db.Booking
	for rows.Next() {
		var b db.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.SlotID, &b.StartTime, &b.EndTime,
			&b.PricePerHour, &b.TotalPrice, &b.Status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return bookings, nil
}

func (q *pgQueries) CountBookings(ctx context.Context, status db.BookingStatus) (int, error) {
	query := `SELECT COUNT(*) FROM bookings`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}

	var count int
	if err := q.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (q *pgQueries) InsertBooking(ctx context.Context, b *db.Booking) error {
	query := `
		INSERT INTO bookings (user_id, slot_id, start_time, end_time, price_per_hour, total_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := q.db.QueryRow(ctx, query,
		b.UserID, b.SlotID, b.StartTime, b.EndTime,
		b.PricePerHour, b.TotalPrice, b.Status, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (q *pgQueries) UpdateBooking(ctx context.Context, b *db.Booking) error {
	query := `
		UPDATE bookings
		SET end_time = $2, total_price = $3, status = $4
		WHERE id = $1
	`

	tag, err := q.db.Exec(ctx, query, b.ID, b.EndTime, b.TotalPrice, b.Status)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %d: %w", b.ID, ErrNotFound)
	}
	return nil
}

func (q *pgQueries) AppendSensorLog(ctx context.Context, row *db.SensorLog) error {
	query := `
		INSERT INTO sensor_logs (sensor_id, timestamp, is_occupied, gateway_id)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := q.db.Exec(ctx, query, row.SensorID, row.Timestamp, row.IsOccupied, row.GatewayID); err != nil {
		return fmt.Errorf("failed to append sensor log: %w", err)
	}
	return nil
}

func (q *pgQueries) AppendPricingLog(ctx context.Context, row *db.PricingLog) error {
	query := `
		INSERT INTO pricing_logs (lot_id, timestamp, occupancy_rate, base_price, adjusted_price, is_peak_hour)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := q.db.Exec(ctx, query,
		row.LotID, row.Timestamp, row.OccupancyRate, row.BasePrice, row.AdjustedPrice, row.IsPeakHour); err != nil {
		return fmt.Errorf("failed to append pricing log: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tmarkov/campus-parking/internal/db"
)

// Memory implements Store with in-process maps. It backs local
// development (STORE_DRIVER=memory) and tests; semantics mirror the
// Postgres store, including all-or-nothing WithinTx.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

// WithinTx runs fn under the store lock; on error every write made by
// fn is rolled back by restoring a pre-transaction snapshot.
func (m *Memory) WithinTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id int64) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetUser(ctx, id)
}

func (m *Memory) ListUsers(ctx context.Context) ([]db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListUsers(ctx)
}

func (m *Memory) GetLot(ctx context.Context, id int64) (*db.ParkingLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetLot(ctx, id)
}

func (m *Memory) LockLot(ctx context.Context, id int64) (*db.ParkingLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LockLot(ctx, id)
}

func (m *Memory) ListLots(ctx context.Context) ([]db.ParkingLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListLots(ctx)
}

func (m *Memory) AdjustLotAvailability(ctx context.Context, lotID int64, delta int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AdjustLotAvailability(ctx, lotID, delta, at)
}

func (m *Memory) GetSlot(ctx context.Context, id int64) (*db.ParkingSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetSlot(ctx, id)
}

func (m *Memory) LockSlot(ctx context.Context, id int64) (*db.ParkingSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LockSlot(ctx, id)
}

func (m *Memory) GetSlotBySensor(ctx context.Context, sensorID string) (*db.ParkingSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetSlotBySensor(ctx, sensorID)
}

func (m *Memory) ListAvailableSlots(ctx context.Context, lotID int64) ([]db.ParkingSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListAvailableSlots(ctx, lotID)
}

func (m *Memory) SetSlotOccupied(ctx context.Context, slotID int64, occupied bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetSlotOccupied(ctx, slotID, occupied, at)
}

func (m *Memory) TouchSlot(ctx context.Context, slotID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TouchSlot(ctx, slotID, at)
}

func (m *Memory) GetBooking(ctx context.Context, id int64) (*db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetBooking(ctx, id)
}

func (m *Memory) LockBooking(ctx context.Context, id int64) (*db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LockBooking(ctx, id)
}

func (m *Memory) ListUserBookings(ctx context.Context, userID int64, status db.BookingStatus) ([]db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListUserBookings(ctx, userID, status)
}

func (m *Memory) CountBookings(ctx context.Context, status db.BookingStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CountBookings(ctx, status)
}

func (m *Memory) InsertBooking(ctx context.Context, b *db.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertBooking(ctx, b)
}

func (m *Memory) UpdateBooking(ctx context.Context, b *db.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateBooking(ctx, b)
}

func (m *Memory) AppendSensorLog(ctx context.Context, row *db.SensorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendSensorLog(ctx, row)
}

func (m *Memory) AppendPricingLog(ctx context.Context, row *db.PricingLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendPricingLog(ctx, row)
}

// AddUser inserts a user and assigns an ID. Seeding/test helper.
func (m *Memory) AddUser(u db.User) db.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		m.state.nextUserID++
		u.ID = m.state.nextUserID
	} else if u.ID > m.state.nextUserID {
		m.state.nextUserID = u.ID
	}
	m.state.users[u.ID] = u
	return u
}

// AddLot inserts a parking lot and assigns an ID. Seeding/test helper.
func (m *Memory) AddLot(l db.ParkingLot) db.ParkingLot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == 0 {
		m.state.nextLotID++
		l.ID = m.state.nextLotID
	} else if l.ID > m.state.nextLotID {
		m.state.nextLotID = l.ID
	}
	m.state.lots[l.ID] = l
	return l
}

// AddSlot inserts a parking slot and assigns an ID. Seeding/test helper.
func (m *Memory) AddSlot(s db.ParkingSlot) db.ParkingSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		m.state.nextSlotID++
		s.ID = m.state.nextSlotID
	} else if s.ID > m.state.nextSlotID {
		m.state.nextSlotID = s.ID
	}
	m.state.slots[s.ID] = s
	m.state.slotBySensor[s.SensorID] = s.ID
	return s
}

// SensorLogs returns a copy of the sensor audit trail. Test helper.
func (m *Memory) SensorLogs() []db.SensorLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.SensorLog, len(m.state.sensorLogs))
	copy(out, m.state.sensorLogs)
	return out
}

// PricingLogs returns a copy of the pricing audit trail. Test helper.
func (m *Memory) PricingLogs() []db.PricingLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.PricingLog, len(m.state.pricingLogs))
	copy(out, m.state.pricingLogs)
	return out
}

// SeedCampus populates the store with a demo campus: numLots lots of
// slotsPerLot slots each plus a handful of test users, mirroring a
// fresh deployment's bootstrap data.
func (m *Memory) SeedCampus(numLots, slotsPerLot int, now time.Time) {
	for i := 1; i <= numLots; i++ {
		lot := m.AddLot(db.ParkingLot{
			Name:           fmt.Sprintf("Lot %c", 'A'+i-1),
			Location:       fmt.Sprintf("Campus Zone %d", i),
			TotalSlots:     slotsPerLot,
			AvailableSlots: slotsPerLot,
			GatewayID:      fmt.Sprintf("gateway-%d", i),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		for j := 1; j <= slotsPerLot; j++ {
			m.AddSlot(db.ParkingSlot{
				SlotNumber:  fmt.Sprintf("%c-%02d", 'A'+i-1, j),
				LotID:       lot.ID,
				SensorID:    fmt.Sprintf("sensor-%d-%d", lot.ID, j),
				LastUpdated: now,
			})
		}
	}
	for i := 1; i <= 3; i++ {
		m.AddUser(db.User{
			Username:  fmt.Sprintf("demo-user-%d", i),
			Email:     fmt.Sprintf("demo%d@campus.test", i),
			CreatedAt: now,
		})
	}
}

type memState struct {
	users        map[int64]db.User
	lots         map[int64]db.ParkingLot
	slots        map[int64]db.ParkingSlot
	slotBySensor map[string]int64
	bookings     map[int64]db.Booking
	sensorLogs   []db.SensorLog
	pricingLogs  []db.PricingLog

	nextUserID    int64
	nextLotID     int64
	nextSlotID    int64
	nextBookingID int64
}

func newMemState() *memState {
	return &memState{
		users:        make(map[int64]db.User),
		lots:         make(map[int64]db.ParkingLot),
		slots:        make(map[int64]db.ParkingSlot),
		slotBySensor: make(map[string]int64),
		bookings:     make(map[int64]db.Booking),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:         make(map[int64]db.User, len(s.users)),
		lots:          make(map[int64]db.ParkingLot, len(s.lots)),
		slots:         make(map[int64]db.ParkingSlot, len(s.slots)),
		slotBySensor:  make(map[string]int64, len(s.slotBySensor)),
		bookings:      make(map[int64]db.Booking, len(s.bookings)),
		sensorLogs:    make([]db.SensorLog, len(s.sensorLogs)),
		pricingLogs:   make([]db.PricingLog, len(s.pricingLogs)),
		nextUserID:    s.nextUserID,
		nextLotID:     s.nextLotID,
		nextSlotID:    s.nextSlotID,
		nextBookingID: s.nextBookingID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.slotBySensor {
		c.slotBySensor[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	copy(c.sensorLogs, s.sensorLogs)
	copy(c.pricingLogs, s.pricingLogs)
	return c
}

func (s *memState) GetUser(ctx context.Context, id int64) (*db.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (s *memState) ListUsers(ctx context.Context) ([]db.User, error) {
	users := make([]db.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *memState) GetLot(ctx context.Context, id int64) (*db.ParkingLot, error) {
	l, ok := s.lots[id]
	if !ok {
		return nil, fmt.Errorf("parking lot %d: %w", id, ErrNotFound)
	}
	return &l, nil
}

// LockLot is equivalent to GetLot here; the store mutex already
// serializes writers.
func (s *memState) LockLot(ctx context.Context, id int64) (*db.ParkingLot, error) {
	return s.GetLot(ctx, id)
}

func (s *memState) ListLots(ctx context.Context) ([]db.ParkingLot, error) {
	lots := make([]db.ParkingLot, 0, len(s.lots))
	for _, l := range s.lots {
		lots = append(lots, l)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].ID < lots[j].ID })
	return lots, nil
}

func (s *memState) AdjustLotAvailability(ctx context.Context, lotID int64, delta int, at time.Time) error {
	l, ok := s.lots[lotID]
	if !ok {
		return fmt.Errorf("parking lot %d: %w", lotID, ErrNotFound)
	}
	next := l.AvailableSlots + delta
	if next < 0 || next > l.TotalSlots {
		return fmt.Errorf("lot %d availability %d out of range [0, %d]", lotID, next, l.TotalSlots)
	}
	l.AvailableSlots = next
	l.UpdatedAt = at
	s.lots[lotID] = l
	return nil
}

func (s *memState) GetSlot(ctx context.Context, id int64) (*db.ParkingSlot, error) {
	sl, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("parking slot %d: %w", id, ErrNotFound)
	}
	return &sl, nil
}

func (s *memState) LockSlot(ctx context.Context, id int64) (*db.ParkingSlot, error) {
	return s.GetSlot(ctx, id)
}

func (s *memState) GetSlotBySensor(ctx context.Context, sensorID string) (*db.ParkingSlot, error) {
	id, ok := s.slotBySensor[sensorID]
	if !ok {
		return nil, fmt.Errorf("sensor %q: %w", sensorID, ErrNotFound)
	}
	return s.GetSlot(ctx, id)
}

func (s *memState) ListAvailableSlots(ctx context.Context, lotID int64) ([]db.ParkingSlot, error) {
	var slots []db.ParkingSlot
	for _, sl := range s.slots {
		if sl.IsOccupied {
			continue
		}
		if lotID != 0 && sl.LotID != lotID {
			continue
		}
		slots = append(slots, sl)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	return slots, nil
}

func (s *memState) SetSlotOccupied(ctx context.Context, slotID int64, occupied bool, at time.Time) error {
	sl, ok := s.slots[slotID]
	if !ok {
		return fmt.Errorf("parking slot %d: %w", slotID, ErrNotFound)
	}
	sl.IsOccupied = occupied
	sl.LastUpdated = at
	s.slots[slotID] = sl
	return nil
}

func (s *memState) TouchSlot(ctx context.Context, slotID int64, at time.Time) error {
	sl, ok := s.slots[slotID]
	if !ok {
		return fmt.Errorf("parking slot %d: %w", slotID, ErrNotFound)
	}
	sl.LastUpdated = at
	s.slots[slotID] = sl
	return nil
}

func (s *memState) GetBooking(ctx context.Context, id int64) (*db.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return &b, nil
}

func (s *memState) LockBooking(ctx context.Context, id int64) (*db.Booking, error) {
	return s.GetBooking(ctx, id)
}

func (s *memState) ListUserBookings(ctx context.Context, userID int64, status db.BookingStatus) ([]db.Booking, error) {
	var bookings []db.Booking
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		bookings = append(bookings, b)
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (s *memState) CountBookings(ctx context.Context, status db.BookingStatus) (int, error) {
	count := 0
	for _, b := range s.bookings {
		if status == "" || b.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *memState) InsertBooking(ctx context.Context, b *db.Booking) error {
	s.nextBookingID++
	b.ID = s.nextBookingID
	s.bookings[b.ID] = *b
	return nil
}

func (s *memState) UpdateBooking(ctx context.Context, b *db.Booking) error {
	if _, ok := s.bookings[b.ID]; !ok {
		return fmt.Errorf("booking %d: %w", b.ID, ErrNotFound)
	}
	s.bookings[b.ID] = *b
	return nil
}

func (s *memState) AppendSensorLog(ctx context.Context, row *db.SensorLog) error {
	row.ID = int64(len(s.sensorLogs) + 1)
	s.sensorLogs = append(s.sensorLogs, *row)
	return nil
}

func (s *memState) AppendPricingLog(ctx context.Context, row *db.PricingLog) error {
	row.ID = int64(len(s.pricingLogs) + 1)
	s.pricingLogs = append(s.pricingLogs, *row)
	return nil
}

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmarkov/campus-parking/internal/db"
	"github.com/tmarkov/campus-parking/internal/store"
)

var seedTime = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func seededStore() *store.Memory {
	mem := store.NewMemory()
	mem.SeedCampus(1, 3, seedTime)
	return mem
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	mem := seededStore()
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := mem.WithinTx(ctx, func(q store.Queries) error {
		if err := q.SetSlotOccupied(ctx, 1, true, seedTime); err != nil {
			return err
		}
		if err := q.AdjustLotAvailability(ctx, 1, -1, seedTime); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected sentinel error, got %v", err)
	}

	slot, err := mem.GetSlot(ctx, 1)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if slot.IsOccupied {
		t.Error("Slot write should have been rolled back")
	}

	lot, err := mem.GetLot(ctx, 1)
	if err != nil {
		t.Fatalf("GetLot failed: %v", err)
	}
	if lot.AvailableSlots != 3 {
		t.Errorf("Lot write should have been rolled back, available=%d", lot.AvailableSlots)
	}
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	mem := seededStore()
	ctx := context.Background()

	err := mem.WithinTx(ctx, func(q store.Queries) error {
		if err := q.SetSlotOccupied(ctx, 1, true, seedTime); err != nil {
			return err
		}
		return q.AdjustLotAvailability(ctx, 1, -1, seedTime)
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	slot, _ := mem.GetSlot(ctx, 1)
	if !slot.IsOccupied {
		t.Error("Expected committed slot write")
	}
	lot, _ := mem.GetLot(ctx, 1)
	if lot.AvailableSlots != 2 {
		t.Errorf("Expected committed lot write, available=%d", lot.AvailableSlots)
	}
}

func TestAdjustLotAvailability_Bounds(t *testing.T) {
	mem := seededStore()
	ctx := context.Background()

	if err := mem.AdjustLotAvailability(ctx, 1, 1, seedTime); err == nil {
		t.Error("Expected error raising availability above total")
	}
	if err := mem.AdjustLotAvailability(ctx, 1, -4, seedTime); err == nil {
		t.Error("Expected error lowering availability below zero")
	}

	lot, _ := mem.GetLot(ctx, 1)
	if lot.AvailableSlots != 3 {
		t.Errorf("Out-of-range adjustment changed state: %d", lot.AvailableSlots)
	}
}

func TestGetSlotBySensor(t *testing.T) {
	mem := seededStore()
	ctx := context.Background()

	slot, err := mem.GetSlotBySensor(ctx, "sensor-1-2")
	if err != nil {
		t.Fatalf("GetSlotBySensor failed: %v", err)
	}
	if slot.LotID != 1 || slot.SlotNumber != "A-02" {
		t.Errorf("Unexpected slot: %+v", slot)
	}

	_, err = mem.GetSlotBySensor(ctx, "sensor-nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListAvailableSlots_FiltersOccupiedAndLot(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedCampus(2, 2, seedTime)
	ctx := context.Background()

	if err := mem.SetSlotOccupied(ctx, 1, true, seedTime); err != nil {
		t.Fatalf("SetSlotOccupied failed: %v", err)
	}

	all, err := mem.ListAvailableSlots(ctx, 0)
	if err != nil {
		t.Fatalf("ListAvailableSlots failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 available slots across lots, got %d", len(all))
	}

	lotOnly, err := mem.ListAvailableSlots(ctx, 1)
	if err != nil {
		t.Fatalf("ListAvailableSlots failed: %v", err)
	}
	if len(lotOnly) != 1 {
		t.Errorf("Expected 1 available slot in lot 1, got %d", len(lotOnly))
	}
}

func TestListUserBookings_StatusFilterAndOrder(t *testing.T) {
	mem := seededStore()
	ctx := context.Background()

	insert := func(status db.BookingStatus, createdAt time.Time) {
		t.Helper()
		err := mem.InsertBooking(ctx, &db.Booking{
			UserID:    1,
			SlotID:    1,
			StartTime: createdAt,
			Status:    status,
			CreatedAt: createdAt,
		})
		if err != nil {
			t.Fatalf("InsertBooking failed: %v", err)
		}
	}
	insert(db.BookingCompleted, seedTime)
	insert(db.BookingActive, seedTime.Add(time.Hour))

	all, err := mem.ListUserBookings(ctx, 1, "")
	if err != nil {
		t.Fatalf("ListUserBookings failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 bookings, got %d", len(all))
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Error("Expected newest booking first")
	}

	active, err := mem.ListUserBookings(ctx, 1, db.BookingActive)
	if err != nil {
		t.Fatalf("ListUserBookings failed: %v", err)
	}
	if len(active) != 1 || active[0].Status != db.BookingActive {
		t.Errorf("Unexpected filtered result: %+v", active)
	}
}

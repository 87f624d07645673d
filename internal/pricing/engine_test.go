package pricing_test

import (
	"testing"
	"time"

	"github.com/tmarkov/campus-parking/internal/config"
	"github.com/tmarkov/campus-parking/internal/pricing"
)

func testEngine() *pricing.Engine {
	return pricing.NewEngine(config.PricingConfig{
		BasePricePerHour:  5.0,
		PeakMultiplier:    1.5,
		OffPeakMultiplier: 0.75,
		PeakHours: []config.HourRange{
			{Start: 7, End: 10},
			{Start: 16, End: 19},
		},
		MaxDailyPrice: 25.0,
	})
}

func at(hour int) time.Time {
	return time.Date(2026, time.March, 2, hour, 30, 0, 0, time.UTC)
}

func TestIsPeakHour_Boundaries(t *testing.T) {
	engine := testEngine()

	cases := []struct {
		hour int
		want bool
	}{
		{6, false},
		{7, true}, // start hour is inclusive
		{9, true},
		{10, false}, // end hour is exclusive
		{15, false},
		{16, true},
		{18, true},
		{19, false},
		{23, false},
	}

	for _, c := range cases {
		got := engine.IsPeakHour(at(c.hour))
		if got != c.want {
			t.Errorf("IsPeakHour(hour=%d) = %v, want %v", c.hour, got, c.want)
		}
	}
}

func TestDemandMultiplier_Bands(t *testing.T) {
	engine := testEngine()

	cases := []struct {
		rate float64
		want float64
	}{
		{0, 0.8},
		{49.99, 0.8},
		{50, 1.0},
		{79.99, 1.0},
		{80, 1.3},
		{100, 1.3},
	}

	for _, c := range cases {
		got := engine.DemandMultiplier(c.rate)
		if got != c.want {
			t.Errorf("DemandMultiplier(%.2f) = %v, want %v", c.rate, got, c.want)
		}
	}
}

func TestCalculatePrice_PeakHighDemand(t *testing.T) {
	engine := testEngine()

	// 5.0 * 1.5 (peak) * 1.3 (>= 80%) = 9.75
	price, isPeak := engine.CalculatePrice(85, at(8))

	if !isPeak {
		t.Error("Expected peak hour at 8:30")
	}
	if price != 9.75 {
		t.Errorf("Expected price 9.75, got %v", price)
	}
}

func TestCalculatePrice_OffPeakDiscountOnlyBelowHalf(t *testing.T) {
	engine := testEngine()

	// Off-peak, low occupancy: 5.0 * 0.75 * 0.8 = 3.0
	price, isPeak := engine.CalculatePrice(30, at(12))
	if isPeak {
		t.Error("Expected off-peak at 12:30")
	}
	if price != 3.0 {
		t.Errorf("Expected discounted price 3.0, got %v", price)
	}

	// Off-peak but occupancy at 50%: no discount, 5.0 * 1.0 = 5.0
	price, _ = engine.CalculatePrice(50, at(12))
	if price != 5.0 {
		t.Errorf("Expected undiscounted price 5.0, got %v", price)
	}
}

func TestCalculatePrice_PeakOverridesDiscount(t *testing.T) {
	engine := testEngine()

	// Peak with low occupancy: the peak multiplier applies, not the
	// off-peak discount. 5.0 * 1.5 * 0.8 = 6.0
	price, isPeak := engine.CalculatePrice(20, at(17))

	if !isPeak {
		t.Error("Expected peak hour at 17:30")
	}
	if price != 6.0 {
		t.Errorf("Expected price 6.0, got %v", price)
	}
}

func TestCalculatePrice_Deterministic(t *testing.T) {
	engine := testEngine()
	when := at(9)

	first, _ := engine.CalculatePrice(64.2, when)
	for i := 0; i < 10; i++ {
		price, _ := engine.CalculatePrice(64.2, when)
		if price != first {
			t.Fatalf("Price changed between identical calls: %v vs %v", first, price)
		}
	}

	if first <= 0 {
		t.Errorf("Expected positive price, got %v", first)
	}
}

func TestSnapshot_OneQuotePerLot(t *testing.T) {
	engine := testEngine()

	lots := []pricing.LotOccupancy{
		{LotID: 1, Name: "Lot A", TotalSlots: 10, AvailableSlots: 1, OccupancyRate: 90},
		{LotID: 2, Name: "Lot B", TotalSlots: 10, AvailableSlots: 9, OccupancyRate: 10},
	}

	quotes := engine.Snapshot(lots, at(12))

	if len(quotes) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(quotes))
	}
	if quotes[0].PricePerHour <= quotes[1].PricePerHour {
		t.Errorf("Expected busier lot to cost more: %v vs %v",
			quotes[0].PricePerHour, quotes[1].PricePerHour)
	}
	for _, q := range quotes {
		if q.BasePrice != 5.0 {
			t.Errorf("Quote for lot %d lost base price: %v", q.LotID, q.BasePrice)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{3.004, 3.0},
		{3.006, 3.01},
		{9.749999, 9.75},
		{-2.676, -2.68},
	}

	for _, c := range cases {
		got := pricing.Round2(c.in)
		if got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

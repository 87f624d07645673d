package pricing

import (
	"math"
	"time"

	"github.com/tmarkov/campus-parking/internal/config"
)

// LotOccupancy is the per-lot input to a pricing snapshot.
type LotOccupancy struct {
	LotID          int64
	Name           string
	Location       string
	TotalSlots     int
	AvailableSlots int
	// OccupancyRate is a percentage in [0, 100].
	OccupancyRate float64
}

// Quote is an ephemeral price derivation for one lot. Quotes are never
// persisted as authoritative state, only logged.
type Quote struct {
	LotID          int64   `json:"parking_lot_id"`
	Name           string  `json:"parking_lot_name"`
	Location       string  `json:"location"`
	PricePerHour   float64 `json:"current_price"`
	BasePrice      float64 `json:"base_price"`
	OccupancyRate  float64 `json:"occupancy_rate"`
	IsPeakHour     bool    `json:"is_peak_hour"`
	AvailableSlots int     `json:"available_slots"`
	TotalSlots     int     `json:"total_slots"`
}

// Engine derives prices from occupancy rate and time of day. It is
// deterministic and performs no I/O.
type Engine struct {
	basePrice         float64
	peakMultiplier    float64
	offPeakMultiplier float64
	peakHours         []config.HourRange
}

// NewEngine creates a pricing engine from configuration
func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{
		basePrice:         cfg.BasePricePerHour,
		peakMultiplier:    cfg.PeakMultiplier,
		offPeakMultiplier: cfg.OffPeakMultiplier,
		peakHours:         cfg.PeakHours,
	}
}

// BasePrice returns the configured base price per hour
func (e *Engine) BasePrice() float64 {
	return e.basePrice
}

// IsPeakHour reports whether t's hour of day falls within any
// configured half-open peak interval [start, end).
func (e *Engine) IsPeakHour(t time.Time) bool {
	hour := t.Hour()
	for _, r := range e.peakHours {
		if hour >= r.Start && hour < r.End {
			return true
		}
	}
	return false
}

// DemandMultiplier maps an occupancy rate (0-100) to a demand band:
// rate >= 80 -> 1.3, 50 <= rate < 80 -> 1.0, rate < 50 -> 0.8.
func (e *Engine) DemandMultiplier(occupancyRate float64) float64 {
	switch {
	case occupancyRate >= 80:
		return 1.3
	case occupancyRate >= 50:
		return 1.0
	default:
		return 0.8
	}
}

// CalculatePrice derives the hourly price for the given occupancy rate
// at time t. The peak/off-peak adjustment applies first: during peak
// hours the peak multiplier applies regardless of occupancy; off-peak,
// the discount applies only under 50% occupancy. The demand multiplier
// then composes multiplicatively. The result is rounded to 2 decimals.
func (e *Engine) CalculatePrice(occupancyRate float64, t time.Time) (float64, bool) {
	price := e.basePrice

	isPeak := e.IsPeakHour(t)
	if isPeak {
		price *= e.peakMultiplier
	} else if occupancyRate < 50 {
		price *= e.offPeakMultiplier
	}

	price *= e.DemandMultiplier(occupancyRate)

	return Round2(price), isPeak
}

// Snapshot applies CalculatePrice to every lot at time t.
func (e *Engine) Snapshot(lots []LotOccupancy, t time.Time) []Quote {
	quotes := make([]Quote, 0, len(lots))
	for _, lot := range lots {
		price, isPeak := e.CalculatePrice(lot.OccupancyRate, t)
		quotes = append(quotes, Quote{
			LotID:          lot.LotID,
			Name:           lot.Name,
			Location:       lot.Location,
			PricePerHour:   price,
			BasePrice:      e.basePrice,
			OccupancyRate:  lot.OccupancyRate,
			IsPeakHour:     isPeak,
			AvailableSlots: lot.AvailableSlots,
			TotalSlots:     lot.TotalSlots,
		})
	}
	return quotes
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

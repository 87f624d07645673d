package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/db"
	"github.com/tmarkov/campus-parking/internal/gateway"
	"github.com/tmarkov/campus-parking/internal/ledger"
)

type handlers struct {
	ledger   *ledger.Ledger
	registry *gateway.Registry
	logger   *zap.Logger
}

type sensorUpdateRequest struct {
	SensorID   string `json:"sensor_id" binding:"required"`
	IsOccupied *bool  `json:"is_occupied" binding:"required"`
}

type createBookingRequest struct {
	UserID        int64    `json:"user_id" binding:"required"`
	SlotID        int64    `json:"slot_id" binding:"required"`
	DurationHours int      `json:"duration_hours" binding:"required"`
	PricePerHour  *float64 `json:"price_per_hour"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "campus-parking",
	})
}

func (h *handlers) listLots(c *gin.Context) {
	stats, err := h.ledger.LotStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats, "count": len(stats)})
}

func (h *handlers) getLot(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	stats, err := h.ledger.GetLotStats(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

func (h *handlers) availableSlots(c *gin.Context) {
	var lotID int64
	if raw := c.Query("lot_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid lot_id"})
			return
		}
		lotID = parsed
	}

	slots, err := h.ledger.AvailableSlots(c.Request.Context(), lotID)
	if err != nil {
		h.fail(c, err)
		return
	}

	type slotView struct {
		ID         int64  `json:"id"`
		SlotNumber string `json:"slot_number"`
		LotID      int64  `json:"lot_id"`
		SensorID   string `json:"sensor_id"`
	}
	data := make([]slotView, 0, len(slots))
	for _, s := range slots {
		data = append(data, slotView{ID: s.ID, SlotNumber: s.SlotNumber, LotID: s.LotID, SensorID: s.SensorID})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": len(data)})
}

func (h *handlers) pricing(c *gin.Context) {
	quotes, err := h.ledger.PricingSnapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      quotes,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) sensorUpdate(c *gin.Context) {
	var req sensorUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "missing required fields: sensor_id and is_occupied",
		})
		return
	}

	if err := h.ledger.ApplyOccupancy(c.Request.Context(), req.SensorID, *req.IsOccupied); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "sensor data updated"})
}

func (h *handlers) createBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "missing required fields: user_id, slot_id, duration_hours",
		})
		return
	}

	receipt, err := h.ledger.CreateBooking(c.Request.Context(), ledger.CreateBookingRequest{
		UserID:        req.UserID,
		SlotID:        req.SlotID,
		DurationHours: req.DurationHours,
		PricePerHour:  req.PricePerHour,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	b := receipt.Booking
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"booking_id":       b.ID,
			"slot_number":      receipt.SlotNumber,
			"parking_lot_name": receipt.LotName,
			"start_time":       b.StartTime,
			"end_time":         b.EndTime,
			"price_per_hour":   b.PricePerHour,
			"total_price":      b.TotalPrice,
			"duration_hours":   req.DurationHours,
			"is_peak_hour":     receipt.IsPeakHour,
		},
	})
}

func (h *handlers) getBooking(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	b, err := h.ledger.GetBooking(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bookingView(b)})
}

func (h *handlers) completeBooking(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	b, err := h.ledger.CompleteBooking(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "booking completed",
		"data":    bookingView(b),
	})
}

func (h *handlers) cancelBooking(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	b, err := h.ledger.CancelBooking(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "booking cancelled",
		"data":    bookingView(b),
	})
}

func (h *handlers) userBookings(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	status := db.BookingStatus(c.Query("status"))

	bookings, err := h.ledger.ListUserBookings(c.Request.Context(), id, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	data := make([]gin.H, 0, len(bookings))
	for i := range bookings {
		data = append(data, bookingView(&bookings[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": len(data)})
}

func (h *handlers) listUsers(c *gin.Context) {
	users, err := h.ledger.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	type userView struct {
		ID       int64   `json:"id"`
		Username string  `json:"username"`
		Email    string  `json:"email"`
		Phone    *string `json:"phone,omitempty"`
	}
	data := make([]userView, 0, len(users))
	for _, u := range users {
		data = append(data, userView{ID: u.ID, Username: u.Username, Email: u.Email, Phone: u.Phone})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": len(data)})
}

func (h *handlers) systemStats(c *gin.Context) {
	stats, err := h.ledger.SystemStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

func (h *handlers) gatewayStats(c *gin.Context) {
	gateways := h.registry.All()
	data := make([]gateway.Stats, 0, len(gateways))
	for _, gw := range gateways {
		data = append(data, gw.Statistics())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": len(data)})
}

func (h *handlers) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid id"})
		return 0, false
	}
	return id, true
}

// fail maps the ledger error taxonomy to HTTP statuses.
func (h *handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict):
		status = http.StatusConflict
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func bookingView(b *db.Booking) gin.H {
	return gin.H{
		"id":             b.ID,
		"user_id":        b.UserID,
		"slot_id":        b.SlotID,
		"start_time":     b.StartTime,
		"end_time":       b.EndTime,
		"price_per_hour": b.PricePerHour,
		"total_price":    b.TotalPrice,
		"status":         b.Status,
		"created_at":     b.CreatedAt,
	}
}

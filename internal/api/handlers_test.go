package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/api"
	"github.com/tmarkov/campus-parking/internal/config"
	"github.com/tmarkov/campus-parking/internal/gateway"
	"github.com/tmarkov/campus-parking/internal/ledger"
	"github.com/tmarkov/campus-parking/internal/pricing"
	"github.com/tmarkov/campus-parking/internal/store"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	mem := store.NewMemory()
	mem.SeedCampus(2, 3, time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC))

	engine := pricing.NewEngine(config.PricingConfig{
		BasePricePerHour:  5.0,
		PeakMultiplier:    1.5,
		OffPeakMultiplier: 0.75,
		PeakHours:         []config.HourRange{{Start: 7, End: 10}},
		MaxDailyPrice:     25.0,
	})
	led := ledger.New(mem, engine, ledger.Config{MaxDailyPrice: 25.0})

	registry := gateway.NewRegistry(config.GatewayConfig{
		CacheSize:     10,
		FlushInterval: time.Hour,
		DefaultRegion: "campus",
	}, gateway.NewLocalForwarder(led), zap.NewNop())
	t.Cleanup(registry.Close)

	return api.NewRouter(led, registry, zap.NewNop())
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Response is not JSON: %v\n%s", err, w.Body.String())
	}
	return w, payload
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, payload := doRequest(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if payload["status"] != "healthy" {
		t.Errorf("Unexpected health payload: %v", payload)
	}
}

func TestListLots(t *testing.T) {
	router := newTestRouter(t)

	w, payload := doRequest(t, router, http.MethodGet, "/api/parking-lots", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if payload["count"] != float64(2) {
		t.Errorf("Expected 2 lots, got %v", payload["count"])
	}
}

func TestSensorUpdate(t *testing.T) {
	router := newTestRouter(t)

	w, payload := doRequest(t, router, http.MethodPost, "/api/sensor-update",
		`{"sensor_id": "sensor-1-1", "is_occupied": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, payload)
	}

	// The lot view reflects the applied update.
	_, lots := doRequest(t, router, http.MethodGet, "/api/parking-lots/1", "")
	data := lots["data"].(map[string]any)
	if data["available_slots"] != float64(2) {
		t.Errorf("Expected 2 available slots, got %v", data["available_slots"])
	}
}

func TestSensorUpdate_MissingFields(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doRequest(t, router, http.MethodPost, "/api/sensor-update",
		`{"sensor_id": "sensor-1-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing is_occupied, got %d", w.Code)
	}
}

func TestSensorUpdate_UnknownSensor(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doRequest(t, router, http.MethodPost, "/api/sensor-update",
		`{"sensor_id": "sensor-ghost", "is_occupied": true}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown sensor, got %d", w.Code)
	}
}

func TestBookingLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w, payload := doRequest(t, router, http.MethodPost, "/api/bookings",
		`{"user_id": 1, "slot_id": 1, "duration_hours": 2}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", w.Code, payload)
	}
	data := payload["data"].(map[string]any)
	bookingID := data["booking_id"].(float64)
	if bookingID == 0 {
		t.Fatal("Expected booking id")
	}

	// Booking the same slot again conflicts.
	w, _ = doRequest(t, router, http.MethodPost, "/api/bookings",
		`{"user_id": 2, "slot_id": 1, "duration_hours": 1}`)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for double booking, got %d", w.Code)
	}

	w, payload = doRequest(t, router, http.MethodPost, "/api/bookings/1/complete", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 completing booking, got %d: %v", w.Code, payload)
	}

	// Completing twice conflicts.
	w, _ = doRequest(t, router, http.MethodPost, "/api/bookings/1/complete", "")
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 completing non-active booking, got %d", w.Code)
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doRequest(t, router, http.MethodPost, "/api/bookings",
		`{"user_id": 1, "slot_id": 1, "duration_hours": 48}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for out-of-range duration, got %d", w.Code)
	}

	w, _ = doRequest(t, router, http.MethodPost, "/api/bookings",
		`{"user_id": 1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", w.Code)
	}

	w, _ = doRequest(t, router, http.MethodPost, "/api/bookings",
		`{"user_id": 999, "slot_id": 1, "duration_hours": 2}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user, got %d", w.Code)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doRequest(t, router, http.MethodGet, "/api/bookings/99", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w, _ = doRequest(t, router, http.MethodGet, "/api/bookings/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric id, got %d", w.Code)
	}
}

func TestAvailableSlots_LotFilter(t *testing.T) {
	router := newTestRouter(t)

	w, payload := doRequest(t, router, http.MethodGet, "/api/available-slots?lot_id=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if payload["count"] != float64(3) {
		t.Errorf("Expected 3 slots in lot 1, got %v", payload["count"])
	}

	w, _ = doRequest(t, router, http.MethodGet, "/api/available-slots?lot_id=nope", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid lot_id, got %d", w.Code)
	}
}

func TestPricingEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, payload := doRequest(t, router, http.MethodGet, "/api/pricing", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	quotes := payload["data"].([]any)
	if len(quotes) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(quotes))
	}
	first := quotes[0].(map[string]any)
	if first["current_price"].(float64) <= 0 {
		t.Errorf("Expected positive price, got %v", first["current_price"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, payload := doRequest(t, router, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	data := payload["data"].(map[string]any)
	if data["total_slots"] != float64(6) {
		t.Errorf("Expected 6 slots, got %v", data["total_slots"])
	}
}

package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/gateway"
	"github.com/tmarkov/campus-parking/internal/ledger"
)

// NewRouter wires the HTTP routes over the core. Everything here is
// thin glue: decode, call the ledger or registry, encode.
func NewRouter(ledger *ledger.Ledger, registry *gateway.Registry, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{ledger: ledger, registry: registry, logger: logger}

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/health", h.health)

		apiGroup.GET("/parking-lots", h.listLots)
		apiGroup.GET("/parking-lots/:id", h.getLot)
		apiGroup.GET("/available-slots", h.availableSlots)
		apiGroup.GET("/pricing", h.pricing)
		apiGroup.GET("/stats", h.systemStats)
		apiGroup.GET("/users", h.listUsers)
		apiGroup.GET("/users/:id/bookings", h.userBookings)

		apiGroup.POST("/sensor-update", h.sensorUpdate)

		apiGroup.POST("/bookings", h.createBooking)
		apiGroup.GET("/bookings/:id", h.getBooking)
		apiGroup.POST("/bookings/:id/complete", h.completeBooking)
		apiGroup.POST("/bookings/:id/cancel", h.cancelBooking)

		apiGroup.GET("/gateways", h.gatewayStats)
	}

	return router
}

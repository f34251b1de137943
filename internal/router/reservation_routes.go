package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/handler"
)

// registerReservations mounts /api/reservations.  Listing everything and
// deleting records are admin operations.
func registerReservations(api *echo.Group, h *handler.ReservationHandler, admin []echo.MiddlewareFunc) {
	g := api.Group("/reservations")
	g.POST("", h.Create)
	g.GET("/user/:userId", h.ListByUser)
	g.GET("/code/:code", h.GetByCode)
	g.GET("/:id", h.Get)
	g.PUT("/:id/cancel", h.Cancel)

	g.GET("", h.List, admin...)
	g.DELETE("/:id", h.Delete, admin...)
}

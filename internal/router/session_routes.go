package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/handler"
)

// registerSessions mounts /api/sessions.  Reads are public; writes need an
// ADMIN token.
func registerSessions(api *echo.Group, h *handler.SessionHandler, admin []echo.MiddlewareFunc) {
	g := api.Group("/sessions")
	g.GET("", h.List)
	g.GET("/movie/:movieId", h.ListByMovie)
	g.GET("/:id", h.Get)

	g.POST("", h.Create, admin...)
	g.PUT("/:id", h.Update, admin...)
	g.DELETE("/:id", h.Delete, admin...)
}

package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/handler"
)

// registerMovies mounts the catalog proxy behind the response cache.
func registerMovies(api *echo.Group, h *handler.MovieHandler, cache echo.MiddlewareFunc) {
	g := api.Group("/movies", cache)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/catalog"
	"github.com/iliyamo/cinema-sessions/internal/logger"
)

// MovieCatalog is the read API of the movie catalog client.
type MovieCatalog interface {
	Get(ctx context.Context, movieID string) (*catalog.Movie, error)
	List(ctx context.Context) ([]catalog.Movie, error)
}

// MovieHandler proxies the movie catalog under /api/movies so clients see
// one origin and one field naming.
type MovieHandler struct {
	Catalog MovieCatalog
}

// List handles GET /api/movies.
func (h *MovieHandler) List(c echo.Context) error {
	movies, err := h.Catalog.List(c.Request().Context())
	if err != nil {
		return catalogError(c, err)
	}
	return c.JSON(http.StatusOK, movies)
}

// Get handles GET /api/movies/:id.
func (h *MovieHandler) Get(c echo.Context) error {
	m, err := h.Catalog.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return catalogError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func catalogError(c echo.Context, err error) error {
	if errors.Is(err, catalog.ErrMovieNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": "movie not found"})
	}
	logger.FromContext(c.Request().Context()).Warn("movie catalog request failed", "error", err)
	return c.JSON(http.StatusServiceUnavailable, echo.Map{
		"error":   "service_unavailable",
		"message": "the movie catalog is temporarily unavailable",
	})
}

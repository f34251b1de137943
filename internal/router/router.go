// Package router registers the HTTP routes of the service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-sessions/internal/config"
	"github.com/iliyamo/cinema-sessions/internal/handler"
	"github.com/iliyamo/cinema-sessions/internal/middleware"
)

// Deps bundles what the route groups need.  Redis may be nil, in which case
// caching and rate limiting are skipped.
type Deps struct {
	JWTSecret    string
	Redis        *redis.Client
	Cache        config.CacheConfig
	RateLimit    config.RateLimitConfig
	Health       *handler.HealthHandler
	Sessions     *handler.SessionHandler
	Reservations *handler.ReservationHandler
	Movies       *handler.MovieHandler
}

// RegisterRoutes mounts operational endpoints at the root and the API
// under /api.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Identify runs first so the limiter can key on the caller.
	api := e.Group("/api", middleware.Identify(d.JWTSecret), middleware.NewTokenBucket(d.RateLimit, d.Redis))
	admin := []echo.MiddlewareFunc{middleware.JWTAuth(d.JWTSecret), middleware.RequireRole(middleware.RoleAdmin)}

	registerSessions(api, d.Sessions, admin)
	registerReservations(api, d.Reservations, admin)
	registerMovies(api, d.Movies, middleware.NewRedisCache(d.Cache, d.Redis))
}

package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/logger"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestLogger assigns every request an ID (reusing an incoming
// X-Request-ID), stores a logger carrying it in the request context and
// logs the outcome once the handler returns.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			id := req.Header.Get(HeaderRequestID)
			if id == "" {
				id = logger.NewRequestID()
			}
			c.Response().Header().Set(HeaderRequestID, id)

			log := logger.WithFields("request_id", id)
			c.SetRequest(req.WithContext(logger.NewContext(req.Context(), log)))

			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is known.
				c.Error(err)
			}

			fields := []any{
				"method", req.Method,
				"path", c.Path(),
				"status_code", c.Response().Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", c.RealIP(),
			}
			if uid := UserID(c); uid != "" {
				fields = append(fields, "user_id", uid)
			}
			switch status := c.Response().Status; {
			case status >= 500:
				if err != nil {
					fields = append(fields, "error", err.Error())
				}
				log.Error("request failed", fields...)
			case status >= 400:
				log.Warn("request rejected", fields...)
			default:
				log.Info("request completed", fields...)
			}
			return nil
		}
	}
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/logger"
	"github.com/iliyamo/cinema-sessions/internal/service"
)

// statusByKind is the single place service error kinds become HTTP codes.
var statusByKind = map[service.Kind]int{
	service.KindValidation:          http.StatusBadRequest,
	service.KindNotFound:            http.StatusNotFound,
	service.KindInsufficientSeats:   http.StatusBadRequest,
	service.KindAlreadyCancelled:    http.StatusBadRequest,
	service.KindServiceUnavailable:  http.StatusServiceUnavailable,
	service.KindInternalConsistency: http.StatusInternalServerError,
	service.KindContention:          http.StatusConflict,
}

// writeError renders err as {"error": code, "message": text}.  Errors that
// are not service errors become a generic 500 and are logged.
func writeError(c echo.Context, err error) error {
	log := logger.FromContext(c.Request().Context())

	var se *service.Error
	if !errors.As(err, &se) {
		log.Error("unhandled error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal server error"})
	}

	status, ok := statusByKind[se.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := echo.Map{"error": string(se.Kind), "message": se.Message}
	if se.Kind == service.KindInsufficientSeats {
		body["available"] = se.Available
		body["requested"] = se.Requested
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", se.Kind, "error", err)
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": string(service.KindValidation), "message": msg})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

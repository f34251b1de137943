package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/model"
	"github.com/iliyamo/cinema-sessions/internal/service"
)

// Booker runs the reservation flows that move seats.
type Booker interface {
	CreateReservation(ctx context.Context, in service.CreateReservationInput) (*service.ReservationResult, error)
	CancelReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	DeleteReservation(ctx context.Context, id uint64) error
}

// ReservationReader looks reservations up.
type ReservationReader interface {
	FindByID(ctx context.Context, id uint64) (*model.Reservation, error)
	FindByCode(ctx context.Context, code string) (*model.Reservation, error)
	FindByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	List(ctx context.Context) ([]model.Reservation, error)
}

// ReservationHandler serves /api/reservations.
type ReservationHandler struct {
	Booker Booker
	Ledger ReservationReader
}

type createReservationRequest struct {
	SessionID     uint64 `json:"session_id" validate:"required"`
	UserID        uint64 `json:"user_id"`
	UserName      string `json:"user_name"`
	UserEmail     string `json:"user_email" validate:"omitempty,email"`
	NumberOfSeats int    `json:"number_of_seats"` // range checked after the session lookup
	UserType      string `json:"user_type"`
}

// Create handles POST /api/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.Booker.CreateReservation(c.Request().Context(), service.CreateReservationInput{
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		UserName:      strings.TrimSpace(req.UserName),
		UserEmail:     strings.TrimSpace(req.UserEmail),
		NumberOfSeats: req.NumberOfSeats,
		UserType:      req.UserType,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":         "reservation created",
		"reservation":     res.Reservation,
		"pricing_details": res.PricingDetails,
	})
}

// Cancel handles PUT /api/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	r, err := h.Booker.CancelReservation(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "reservation cancelled", "reservation": r})
}

// Delete handles DELETE /api/reservations/:id (admin).
func (h *ReservationHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.Booker.DeleteReservation(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "reservation deleted"})
}

// Get handles GET /api/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	r, err := h.Ledger.FindByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// GetByCode handles GET /api/reservations/code/:code.
func (h *ReservationHandler) GetByCode(c echo.Context) error {
	r, err := h.Ledger.FindByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// ListByUser handles GET /api/reservations/user/:userId.
func (h *ReservationHandler) ListByUser(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid user id")
	}
	rs, err := h.Ledger.FindByUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rs)
}

// List handles GET /api/reservations (admin).
func (h *ReservationHandler) List(c echo.Context) error {
	rs, err := h.Ledger.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rs)
}

package handler

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-sessions/internal/model"
	"github.com/iliyamo/cinema-sessions/internal/service"
)

// SessionReader is the read side of the session registry.
type SessionReader interface {
	List(ctx context.Context, q service.SessionQuery) ([]model.Session, error)
	ListUpcomingByMovie(ctx context.Context, movieID string) ([]model.Session, error)
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
	Update(ctx context.Context, id uint64, p service.SessionPatch) (*model.Session, error)
}

// SessionScheduler creates and removes sessions.
type SessionScheduler interface {
	CreateSession(ctx context.Context, in service.CreateSessionInput) (*model.Session, error)
	DeleteSession(ctx context.Context, id uint64) (service.DeleteSessionResult, error)
}

// SessionHandler serves /api/sessions.
type SessionHandler struct {
	Registry  SessionReader    // lookups and admin edits
	Scheduler SessionScheduler // create/delete with catalog and reservation checks
}

type createSessionRequest struct {
	MovieID    string   `json:"movie_id" validate:"required"`
	MovieName  string   `json:"movie_name"`
	RoomNumber string   `json:"room_number" validate:"required"`
	Date       string   `json:"date" validate:"required"`
	StartTime  string   `json:"start_time" validate:"required"`
	EndTime    string   `json:"end_time" validate:"required"`
	TotalSeats int      `json:"total_seats" validate:"required,min=1"`
	BasePrice  *float64 `json:"base_price" validate:"omitempty,min=0"`
	IsActive   *bool    `json:"is_active"`
}

type updateSessionRequest struct {
	RoomNumber *string  `json:"room_number"`
	Date       *string  `json:"date"`
	StartTime  *string  `json:"start_time"`
	EndTime    *string  `json:"end_time"`
	TotalSeats *int     `json:"total_seats" validate:"omitempty,min=1"`
	BasePrice  *float64 `json:"base_price" validate:"omitempty,min=0"`
	IsActive   *bool    `json:"is_active"`
}

// parseDate accepts a calendar day or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(model.DateLayout, s); err == nil {
		return d, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func amountToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// List handles GET /api/sessions?date=&room=&active=&upcoming=.
func (h *SessionHandler) List(c echo.Context) error {
	var q service.SessionQuery
	if raw := c.QueryParam("date"); raw != "" {
		d, ok := parseDate(raw)
		if !ok {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		q.Date = &d
	}
	q.Room = strings.TrimSpace(c.QueryParam("room"))
	if raw := c.QueryParam("active"); raw != "" {
		active := raw == "true" // any other value filters for inactive
		q.Active = &active
	}
	q.Upcoming = c.QueryParam("upcoming") == "true"

	sessions, err := h.Registry.List(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// ListByMovie handles GET /api/sessions/movie/:movieId.
func (h *SessionHandler) ListByMovie(c echo.Context) error {
	sessions, err := h.Registry.ListUpcomingByMovie(c.Request().Context(), c.Param("movieId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	s, err := h.Registry.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Create handles POST /api/sessions (admin).
func (h *SessionHandler) Create(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}
	date, ok := parseDate(req.Date)
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	in := service.CreateSessionInput{
		MovieID:    strings.TrimSpace(req.MovieID),
		MovieName:  strings.TrimSpace(req.MovieName),
		RoomNumber: strings.TrimSpace(req.RoomNumber),
		Date:       date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		TotalSeats: req.TotalSeats,
		IsActive:   req.IsActive,
	}
	if req.BasePrice != nil {
		cents := amountToCents(*req.BasePrice)
		in.BasePriceCents = &cents
	}

	s, err := h.Scheduler.CreateSession(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// Update handles PUT /api/sessions/:id (admin).  Only the fields present in
// the body change.
func (h *SessionHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}
	p := service.SessionPatch{
		RoomNumber: req.RoomNumber,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		TotalSeats: req.TotalSeats,
		IsActive:   req.IsActive,
	}
	if req.Date != nil {
		d, ok := parseDate(*req.Date)
		if !ok {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		p.Date = &d
	}
	if req.BasePrice != nil {
		cents := amountToCents(*req.BasePrice)
		p.BasePriceCents = &cents
	}

	s, err := h.Registry.Update(c.Request().Context(), id, p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Delete handles DELETE /api/sessions/:id (admin).  A session with
// confirmed reservations is deactivated rather than removed.
func (h *SessionHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	res, err := h.Scheduler.DeleteSession(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	msg := "session deleted"
	if res.Deactivated {
		msg = "session has confirmed reservations and was deactivated"
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg, "deleted": res.Deleted, "deactivated": res.Deactivated})
}

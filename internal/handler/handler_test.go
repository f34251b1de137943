package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-sessions/internal/catalog"
	"github.com/iliyamo/cinema-sessions/internal/model"
	"github.com/iliyamo/cinema-sessions/internal/pricing"
	"github.com/iliyamo/cinema-sessions/internal/service"
)

type stubBooker struct {
	calls  int
	create func(service.CreateReservationInput) (*service.ReservationResult, error)
	cancel func(uint64) (*model.Reservation, error)
	delete func(uint64) error
}

func (s *stubBooker) CreateReservation(_ context.Context, in service.CreateReservationInput) (*service.ReservationResult, error) {
	s.calls++
	return s.create(in)
}

func (s *stubBooker) CancelReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	s.calls++
	return s.cancel(id)
}

func (s *stubBooker) DeleteReservation(_ context.Context, id uint64) error {
	s.calls++
	return s.delete(id)
}

type stubLedger struct {
	byID map[uint64]model.Reservation
}

func (s stubLedger) FindByID(_ context.Context, id uint64) (*model.Reservation, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &r, nil
}

func (s stubLedger) FindByCode(_ context.Context, code string) (*model.Reservation, error) {
	for _, r := range s.byID {
		if strings.EqualFold(r.ReservationCode, code) {
			return &r, nil
		}
	}
	return nil, service.ErrNotFound
}

func (s stubLedger) FindByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	out := []model.Reservation{}
	for _, r := range s.byID {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s stubLedger) List(context.Context) ([]model.Reservation, error) {
	return nil, errors.New("db down")
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func reservationRoutes(b *stubBooker, l stubLedger) *echo.Echo {
	e := newEcho()
	h := &ReservationHandler{Booker: b, Ledger: l}
	e.POST("/api/reservations", h.Create)
	e.GET("/api/reservations", h.List)
	e.GET("/api/reservations/:id", h.Get)
	e.GET("/api/reservations/code/:code", h.GetByCode)
	e.GET("/api/reservations/user/:userId", h.ListByUser)
	e.PUT("/api/reservations/:id/cancel", h.Cancel)
	e.DELETE("/api/reservations/:id", h.Delete)
	return e
}

func TestCreateReservation(t *testing.T) {
	b := &stubBooker{create: func(in service.CreateReservationInput) (*service.ReservationResult, error) {
		assert.Equal(t, uint64(7), in.SessionID)
		assert.Equal(t, "student", in.UserType)
		p := pricing.Quote(1000, model.UserTypeStudent, in.NumberOfSeats)
		return &service.ReservationResult{
			Reservation: &model.Reservation{
				ID: 1, SessionID: 7, NumberOfSeats: 3, UnitPriceCents: p.UnitPriceCents,
				TotalPriceCents: p.TotalPriceCents, DiscountPercent: p.DiscountPercent,
				UserType: model.UserTypeStudent, Status: model.StatusConfirmed, ReservationCode: "RES-ABC",
			},
			PricingDetails: p,
		}, nil
	}}
	e := reservationRoutes(b, stubLedger{})

	rec := do(e, http.MethodPost, "/api/reservations",
		`{"session_id":7,"user_id":42,"user_name":"Ana","user_email":"ana@example.com","number_of_seats":3,"user_type":"student"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	res := body["reservation"].(map[string]any)
	assert.Equal(t, "RES-ABC", res["reservation_code"])
	assert.Equal(t, 24.0, res["total_price"])
	details := body["pricing_details"].(map[string]any)
	assert.Equal(t, 8.0, details["unit_price"])
	assert.Equal(t, 20.0, details["discount_percent"])
}

func TestCreateReservationErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing session", service.ErrNotFound, http.StatusNotFound, "not_found"},
		{"insufficient", &service.Error{Kind: service.KindInsufficientSeats, Message: "only 2", Available: 2, Requested: 5}, http.StatusBadRequest, "insufficient_seats"},
		{"contention", service.ErrContention, http.StatusConflict, "contention"},
		{"broken", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &stubBooker{create: func(service.CreateReservationInput) (*service.ReservationResult, error) { return nil, tt.err }}
			rec := do(reservationRoutes(b, stubLedger{}), http.MethodPost, "/api/reservations", `{"session_id":7,"number_of_seats":5}`)

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.code, body["error"])
			if tt.code == "insufficient_seats" {
				assert.Equal(t, 2.0, body["available"])
				assert.Equal(t, 5.0, body["requested"])
			}
		})
	}
}

func TestCreateReservationValidation(t *testing.T) {
	b := &stubBooker{}
	e := reservationRoutes(b, stubLedger{})

	for _, body := range []string{
		`{"number_of_seats":2}`,
		`{"session_id":7,"number_of_seats":2,"user_email":"nope"}`,
		`{not json`,
	} {
		rec := do(e, http.MethodPost, "/api/reservations", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, b.calls)
}

func TestCreateReservationSeatRangeCheckedAfterSessionLookup(t *testing.T) {
	var got int
	b := &stubBooker{create: func(in service.CreateReservationInput) (*service.ReservationResult, error) {
		got = in.NumberOfSeats
		return nil, service.ErrNotFound
	}}
	rec := do(reservationRoutes(b, stubLedger{}), http.MethodPost, "/api/reservations", `{"session_id":404,"number_of_seats":11}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 11, got)
}

func TestCancelReservation(t *testing.T) {
	b := &stubBooker{cancel: func(id uint64) (*model.Reservation, error) {
		if id == 1 {
			return &model.Reservation{ID: 1, Status: model.StatusCancelled}, nil
		}
		return nil, service.ErrAlreadyCancelled
	}}
	e := reservationRoutes(b, stubLedger{})

	rec := do(e, http.MethodPut, "/api/reservations/1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode(t, rec)["reservation"].(map[string]any)["status"])

	rec = do(e, http.MethodPut, "/api/reservations/2/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "already_cancelled", decode(t, rec)["error"])

	rec = do(e, http.MethodPut, "/api/reservations/abc/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationLookups(t *testing.T) {
	l := stubLedger{byID: map[uint64]model.Reservation{
		5: {ID: 5, UserID: 42, ReservationCode: "RES-XYZ", Status: model.StatusConfirmed},
	}}
	e := reservationRoutes(&stubBooker{}, l)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/reservations/5", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/reservations/6", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/reservations/code/res-xyz", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(e, http.MethodGet, "/api/reservations", "").Code)

	rec := do(e, http.MethodGet, "/api/reservations/user/42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

type stubRegistry struct {
	lastQuery service.SessionQuery
	sessions  []model.Session
}

func (s *stubRegistry) List(_ context.Context, q service.SessionQuery) ([]model.Session, error) {
	s.lastQuery = q
	return s.sessions, nil
}

func (s *stubRegistry) ListUpcomingByMovie(context.Context, string) ([]model.Session, error) {
	return s.sessions, nil
}

func (s *stubRegistry) GetByID(_ context.Context, id uint64) (*model.Session, error) {
	for _, ss := range s.sessions {
		if ss.ID == id {
			return &ss, nil
		}
	}
	return nil, service.ErrNotFound
}

func (s *stubRegistry) Update(_ context.Context, id uint64, p service.SessionPatch) (*model.Session, error) {
	if p.TotalSeats != nil && *p.TotalSeats < 3 {
		return nil, &service.Error{Kind: service.KindValidation, Message: "below booked"}
	}
	return s.GetByID(context.Background(), id)
}

type stubScheduler struct {
	createErr error
	got       service.CreateSessionInput
	deleteRes service.DeleteSessionResult
}

func (s *stubScheduler) CreateSession(_ context.Context, in service.CreateSessionInput) (*model.Session, error) {
	s.got = in
	if s.createErr != nil {
		return nil, s.createErr
	}
	base := int64(1000)
	if in.BasePriceCents != nil {
		base = *in.BasePriceCents
	}
	return &model.Session{
		ID: 3, MovieID: in.MovieID, MovieName: "Arrival", RoomNumber: in.RoomNumber, Date: in.Date,
		StartTime: in.StartTime, EndTime: in.EndTime, TotalSeats: in.TotalSeats, AvailableSeats: in.TotalSeats,
		BasePriceCents: base, IsActive: true,
	}, nil
}

func (s *stubScheduler) DeleteSession(context.Context, uint64) (service.DeleteSessionResult, error) {
	return s.deleteRes, nil
}

func sessionRoutes(r *stubRegistry, s *stubScheduler) *echo.Echo {
	e := newEcho()
	h := &SessionHandler{Registry: r, Scheduler: s}
	e.GET("/api/sessions", h.List)
	e.GET("/api/sessions/movie/:movieId", h.ListByMovie)
	e.GET("/api/sessions/:id", h.Get)
	e.POST("/api/sessions", h.Create)
	e.PUT("/api/sessions/:id", h.Update)
	e.DELETE("/api/sessions/:id", h.Delete)
	return e
}

func TestListSessionsParsesFilters(t *testing.T) {
	r := &stubRegistry{sessions: []model.Session{}}
	e := sessionRoutes(r, &stubScheduler{})

	rec := do(e, http.MethodGet, "/api/sessions?date=2026-03-14&room=A1&active=false&upcoming=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	require.NotNil(t, r.lastQuery.Date)
	assert.Equal(t, "2026-03-14", r.lastQuery.Date.Format(model.DateLayout))
	assert.Equal(t, "A1", r.lastQuery.Room)
	require.NotNil(t, r.lastQuery.Active)
	assert.False(t, *r.lastQuery.Active)
	assert.True(t, r.lastQuery.Upcoming)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/sessions?date=14/03/2026", "").Code)
}

func TestCreateSession(t *testing.T) {
	s := &stubScheduler{}
	e := sessionRoutes(&stubRegistry{}, s)

	rec := do(e, http.MethodPost, "/api/sessions",
		`{"movie_id":"m-1","room_number":"A1","date":"2026-03-14","start_time":"19:00","end_time":"21:00","total_seats":40,"base_price":12.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "2026-03-14", body["date"])
	assert.Equal(t, 12.5, body["base_price"])
	assert.Equal(t, 40.0, body["available_seats"])
	require.NotNil(t, s.got.BasePriceCents)
	assert.Equal(t, int64(1250), *s.got.BasePriceCents)
	assert.True(t, s.got.Date.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)))
}

func TestCreateSessionCatalogErrors(t *testing.T) {
	body := `{"movie_id":"m-1","room_number":"A1","date":"2026-03-14","start_time":"19:00","end_time":"21:00","total_seats":40}`

	s := &stubScheduler{createErr: &service.Error{Kind: service.KindNotFound, Message: "movie not found"}}
	assert.Equal(t, http.StatusNotFound, do(sessionRoutes(&stubRegistry{}, s), http.MethodPost, "/api/sessions", body).Code)

	s = &stubScheduler{createErr: &service.Error{Kind: service.KindServiceUnavailable, Message: "catalog down"}}
	assert.Equal(t, http.StatusServiceUnavailable, do(sessionRoutes(&stubRegistry{}, s), http.MethodPost, "/api/sessions", body).Code)

	bad := strings.Replace(body, `"total_seats":40`, `"total_seats":0`, 1)
	assert.Equal(t, http.StatusBadRequest, do(sessionRoutes(&stubRegistry{}, &stubScheduler{}), http.MethodPost, "/api/sessions", bad).Code)
}

func TestUpdateAndDeleteSession(t *testing.T) {
	r := &stubRegistry{sessions: []model.Session{{ID: 3, TotalSeats: 10, AvailableSeats: 7}}}
	s := &stubScheduler{deleteRes: service.DeleteSessionResult{Deactivated: true}}
	e := sessionRoutes(r, s)

	assert.Equal(t, http.StatusOK, do(e, http.MethodPut, "/api/sessions/3", `{"total_seats":12}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPut, "/api/sessions/3", `{"total_seats":2}`).Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPut, "/api/sessions/4", `{}`).Code)

	rec := do(e, http.MethodDelete, "/api/sessions/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["deactivated"])
}

type stubCatalog struct {
	err error
}

func (s stubCatalog) Get(_ context.Context, id string) (*catalog.Movie, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &catalog.Movie{ID: id, Name: "Arrival"}, nil
}

func (s stubCatalog) List(context.Context) ([]catalog.Movie, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []catalog.Movie{{ID: "1", Name: "Arrival"}}, nil
}

func TestMovieProxy(t *testing.T) {
	routes := func(c MovieCatalog) *echo.Echo {
		e := newEcho()
		h := &MovieHandler{Catalog: c}
		e.GET("/api/movies", h.List)
		e.GET("/api/movies/:id", h.Get)
		return e
	}

	assert.Equal(t, http.StatusOK, do(routes(stubCatalog{}), http.MethodGet, "/api/movies", "").Code)
	assert.Equal(t, http.StatusOK, do(routes(stubCatalog{}), http.MethodGet, "/api/movies/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(routes(stubCatalog{err: catalog.ErrMovieNotFound}), http.MethodGet, "/api/movies/9", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(routes(stubCatalog{err: catalog.ErrCatalogUnavailable}), http.MethodGet, "/api/movies", "").Code)
}

type pingFunc func(context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	e := newEcho()
	up := &HealthHandler{DB: pingFunc(func(context.Context) error { return nil })}
	down := &HealthHandler{DB: pingFunc(func(context.Context) error { return errors.New("refused") })}
	e.GET("/up", up.Health)
	e.GET("/down", down.Health)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/up", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/down", "").Code)
}

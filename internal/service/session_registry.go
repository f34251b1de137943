package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-sessions/internal/logger"
	"github.com/iliyamo/cinema-sessions/internal/metrics"
	"github.com/iliyamo/cinema-sessions/internal/model"
	"github.com/iliyamo/cinema-sessions/internal/repository"
)

// DefaultSeatMaxAttempts bounds the read/compare/write loop on a seat counter.
const DefaultSeatMaxAttempts = 5

const clockLayout = "15:04"

// clock accepts "H:MM" or "HH:MM" and returns the zero-padded form, which
// sorts correctly as a string.
func clock(v string) (string, bool) {
	t, err := time.Parse(clockLayout, v)
	if err != nil {
		return "", false
	}
	return t.Format(clockLayout), true
}

// SessionStore is the persistence the registry needs.  It is satisfied by
// *repository.SessionRepo.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
	List(ctx context.Context, f repository.SessionFilter) ([]model.Session, error)
	ListUpcomingByMovie(ctx context.Context, movieID string, today time.Time) ([]model.Session, error)
	CompareAndSetSeats(ctx context.Context, id, version uint64, available int) (bool, error)
	UpdateIfVersion(ctx context.Context, s *model.Session, version uint64) (bool, error)
	SetActive(ctx context.Context, id uint64, active bool) error
	Delete(ctx context.Context, id uint64) error
}

// SessionRegistry owns sessions and their seat counters.  It is the only
// component that writes available_seats; every write is a version-guarded
// update retried a bounded number of times.
type SessionRegistry struct {
	store            SessionStore
	metrics          *metrics.Metrics
	maxAttempts      int
	defaultBaseCents int64
	now              func() time.Time
}

// NewSessionRegistry builds a registry.  maxAttempts below one falls back to
// DefaultSeatMaxAttempts.  m may be nil.
func NewSessionRegistry(store SessionStore, m *metrics.Metrics, maxAttempts int, defaultBaseCents int64) *SessionRegistry {
	if maxAttempts < 1 {
		maxAttempts = DefaultSeatMaxAttempts
	}
	return &SessionRegistry{
		store:            store,
		metrics:          m,
		maxAttempts:      maxAttempts,
		defaultBaseCents: defaultBaseCents,
		now:              time.Now,
	}
}

// NewSessionInput carries the fields accepted when scheduling a session.
// BasePriceCents nil means the configured default; IsActive nil means true.
type NewSessionInput struct {
	MovieID        string
	MovieName      string
	RoomNumber     string
	Date           time.Time
	StartTime      string
	EndTime        string
	TotalSeats     int
	BasePriceCents *int64
	IsActive       *bool
}

// SessionPatch is an administrative edit.  Nil fields are left unchanged.
type SessionPatch struct {
	RoomNumber     *string
	Date           *time.Time
	StartTime      *string
	EndTime        *string
	TotalSeats     *int
	BasePriceCents *int64
	IsActive       *bool
}

// SessionQuery narrows List.
type SessionQuery struct {
	Date     *time.Time
	Room     string
	Active   *bool
	Upcoming bool
}

func (r *SessionRegistry) today() time.Time {
	y, m, d := r.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Create validates in and persists a session with every seat available.
func (r *SessionRegistry) Create(ctx context.Context, in NewSessionInput) (*model.Session, error) {
	if in.MovieID == "" {
		return nil, validationError("movie_id is required")
	}
	if in.RoomNumber == "" {
		return nil, validationError("room_number is required")
	}
	if in.Date.IsZero() {
		return nil, validationError("date is required")
	}
	start, okStart := clock(in.StartTime)
	end, okEnd := clock(in.EndTime)
	if !okStart || !okEnd {
		return nil, validationError("start_time and end_time must be HH:MM")
	}
	if in.TotalSeats < 1 {
		return nil, validationError("total_seats must be at least 1")
	}
	base := r.defaultBaseCents
	if in.BasePriceCents != nil {
		base = *in.BasePriceCents
	}
	if base < 0 {
		return nil, validationError("base_price must not be negative")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	y, m, d := in.Date.UTC().Date()
	s := &model.Session{
		MovieID:        in.MovieID,
		MovieName:      in.MovieName,
		RoomNumber:     in.RoomNumber,
		Date:           time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		StartTime:      start,
		EndTime:        end,
		TotalSeats:     in.TotalSeats,
		AvailableSeats: in.TotalSeats,
		BasePriceCents: base,
		IsActive:       active,
	}
	if err := r.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger.FromContext(ctx).Info("session created", "session_id", s.ID, "movie_id", s.MovieID, "total_seats", s.TotalSeats)
	return s, nil
}

// GetByID returns a session or a not-found error.
func (r *SessionRegistry) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	s, err := r.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, notFoundError("session", err)
		}
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return s, nil
}

// List returns sessions matching q sorted by date then start time.
func (r *SessionRegistry) List(ctx context.Context, q SessionQuery) ([]model.Session, error) {
	sessions, err := r.store.List(ctx, repository.SessionFilter{
		Date:     q.Date,
		Room:     q.Room,
		Active:   q.Active,
		Upcoming: q.Upcoming,
		Today:    r.today(),
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListUpcomingByMovie returns active sessions of a movie from today on.
func (r *SessionRegistry) ListUpcomingByMovie(ctx context.Context, movieID string) ([]model.Session, error) {
	sessions, err := r.store.ListUpcomingByMovie(ctx, movieID, r.today())
	if err != nil {
		return nil, fmt.Errorf("list sessions of movie %s: %w", movieID, err)
	}
	return sessions, nil
}

// ReserveSeats atomically takes n seats from a session and returns the new
// available count.  When fewer than n seats are free it fails with an
// insufficient-seats error and leaves the counter untouched.
func (r *SessionRegistry) ReserveSeats(ctx context.Context, id uint64, n int) (int, error) {
	return r.reserve(ctx, id, n, false)
}

// ReserveActiveSeats is ReserveSeats for new bookings: it also fails when
// the session is inactive at the moment of the write.  Deactivation bumps
// the version, so a booking racing it re-reads and is refused.
func (r *SessionRegistry) ReserveActiveSeats(ctx context.Context, id uint64, n int) (int, error) {
	return r.reserve(ctx, id, n, true)
}

func (r *SessionRegistry) reserve(ctx context.Context, id uint64, n int, requireActive bool) (int, error) {
	if n < 1 {
		return 0, validationError("seat count must be positive")
	}
	return r.adjustSeats(ctx, "reserve", id, func(s *model.Session) (int, error) {
		if requireActive && !s.IsActive {
			return 0, validationError("session %d is not accepting reservations", s.ID)
		}
		if s.AvailableSeats < n {
			return 0, insufficientSeatsError(s.AvailableSeats, n)
		}
		return s.AvailableSeats - n, nil
	})
}

// ReleaseSeats atomically returns n seats to a session.  A release that
// would push available above total is never clamped: it fails with an
// internal consistency error because it means bookkeeping is already wrong.
func (r *SessionRegistry) ReleaseSeats(ctx context.Context, id uint64, n int) (int, error) {
	if n < 1 {
		return 0, validationError("seat count must be positive")
	}
	return r.adjustSeats(ctx, "release", id, func(s *model.Session) (int, error) {
		if s.AvailableSeats+n > s.TotalSeats {
			logger.FromContext(ctx).Error("seat release exceeds capacity",
				"session_id", s.ID, "available", s.AvailableSeats, "release", n, "total", s.TotalSeats)
			return 0, internalConsistencyError("releasing %d seats on session %d would exceed its capacity of %d", n, s.ID, s.TotalSeats)
		}
		return s.AvailableSeats + n, nil
	})
}

// adjustSeats runs the read/compute/compare-and-set loop shared by reserve
// and release.
func (r *SessionRegistry) adjustSeats(ctx context.Context, op string, id uint64, next func(*model.Session) (int, error)) (int, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s, err := r.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		available, err := next(s)
		if err != nil {
			return 0, err
		}
		ok, err := r.store.CompareAndSetSeats(ctx, id, s.Version, available)
		if err != nil {
			return 0, fmt.Errorf("%s seats on session %d: %w", op, id, err)
		}
		if ok {
			return available, nil
		}
		r.metrics.SeatConflict(op)
		logger.FromContext(ctx).Debug("seat counter version conflict", "op", op, "session_id", id, "attempt", attempt)
	}
	return 0, &Error{
		Kind:    KindContention,
		Message: fmt.Sprintf("could not %s seats on session %d after %d attempts", op, id, r.maxAttempts),
	}
}

// Update applies an administrative patch under the same version guard as the
// seat counter.  Changing total_seats shifts available_seats by the same
// delta and is refused when fewer seats than are already booked would remain.
func (r *SessionRegistry) Update(ctx context.Context, id uint64, p SessionPatch) (*model.Session, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		s, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		version := s.Version
		if err := applyPatch(s, p); err != nil {
			return nil, err
		}
		ok, err := r.store.UpdateIfVersion(ctx, s, version)
		if err != nil {
			return nil, fmt.Errorf("update session %d: %w", id, err)
		}
		if ok {
			return r.GetByID(ctx, id)
		}
		r.metrics.SeatConflict("update")
	}
	return nil, &Error{
		Kind:    KindContention,
		Message: fmt.Sprintf("could not update session %d after %d attempts", id, r.maxAttempts),
	}
}

func applyPatch(s *model.Session, p SessionPatch) error {
	if p.RoomNumber != nil {
		if *p.RoomNumber == "" {
			return validationError("room_number must not be empty")
		}
		s.RoomNumber = *p.RoomNumber
	}
	if p.Date != nil {
		y, m, d := p.Date.UTC().Date()
		s.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if p.StartTime != nil {
		v, ok := clock(*p.StartTime)
		if !ok {
			return validationError("start_time must be HH:MM")
		}
		s.StartTime = v
	}
	if p.EndTime != nil {
		v, ok := clock(*p.EndTime)
		if !ok {
			return validationError("end_time must be HH:MM")
		}
		s.EndTime = v
	}
	if p.BasePriceCents != nil {
		if *p.BasePriceCents < 0 {
			return validationError("base_price must not be negative")
		}
		s.BasePriceCents = *p.BasePriceCents
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.TotalSeats != nil && *p.TotalSeats != s.TotalSeats {
		total := *p.TotalSeats
		if total < 1 {
			return validationError("total_seats must be at least 1")
		}
		if booked := s.BookedSeats(); total < booked {
			return validationError("total_seats %d is below the %d seats already booked", total, booked)
		}
		s.AvailableSeats += total - s.TotalSeats
		s.TotalSeats = total
	}
	return nil
}

// SetActive toggles whether a session accepts new reservations.
func (r *SessionRegistry) SetActive(ctx context.Context, id uint64, active bool) error {
	if err := r.store.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return notFoundError("session", err)
		}
		return fmt.Errorf("set session %d active=%t: %w", id, active, err)
	}
	return nil
}

// Delete removes a session row.  Callers check for live reservations first.
func (r *SessionRegistry) Delete(ctx context.Context, id uint64) error {
	if err := r.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return notFoundError("session", err)
		}
		return fmt.Errorf("delete session %d: %w", id, err)
	}
	return nil
}

package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for sentinel comparisons
	"strings"      // strings builds dynamic WHERE clauses
	"time"         // time for date filters

	"github.com/iliyamo/cinema-sessions/internal/model"
)

// sessionColumns is the column list shared by every SELECT on sessions.  The
// order must match scanSession.
const sessionColumns = `id, movie_id, movie_name, room_number, session_date, start_time, end_time,
       total_seats, available_seats, base_price_cents, is_active, version, created_at, updated_at`

// SessionFilter narrows List.  Zero values disable a filter.  When Upcoming
// is set it replaces Date, so "upcoming" always wins over a specific day.
type SessionFilter struct {
	Date     *time.Time // only sessions on this calendar day
	Room     string     // exact room number
	Active   *bool      // is_active equals this value
	Upcoming bool       // session_date >= Today
	Today    time.Time  // reference day for Upcoming; callers pass the current UTC day
}

// SessionRepo manages persistence for sessions.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo constructs a SessionRepo with the given DB handle.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	if err := row.Scan(
		&s.ID, &s.MovieID, &s.MovieName, &s.RoomNumber, &s.Date, &s.StartTime, &s.EndTime,
		&s.TotalSeats, &s.AvailableSeats, &s.BasePriceCents, &s.IsActive, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session and assigns the generated ID and DB-default
// fields back to s.  The caller is responsible for AvailableSeats being
// equal to TotalSeats.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO sessions (movie_id, movie_name, room_number, session_date, start_time, end_time,
                                     total_seats, available_seats, base_price_cents, is_active)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		s.MovieID, s.MovieName, s.RoomNumber, s.Date.UTC().Format(model.DateLayout), s.StartTime, s.EndTime,
		s.TotalSeats, s.AvailableSeats, s.BasePriceCents, s.IsActive,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*s = *fresh
	return nil
}

// GetByID retrieves a session by its ID.  It returns ErrSessionNotFound if
// there is no matching row.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// List returns the sessions matching f ordered by date then start time.
// When nothing matches it returns an empty slice and nil error.
func (r *SessionRepo) List(ctx context.Context, f SessionFilter) ([]model.Session, error) {
	where := []string{}
	args := []any{}

	switch {
	case f.Upcoming:
		where = append(where, "session_date >= ?")
		args = append(args, f.Today.UTC().Format(model.DateLayout))
	case f.Date != nil:
		where = append(where, "session_date = ?")
		args = append(args, f.Date.UTC().Format(model.DateLayout))
	}
	if f.Room != "" {
		where = append(where, "room_number = ?")
		args = append(args, f.Room)
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.Active)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + cond + ` ORDER BY session_date ASC, start_time ASC`
	return r.query(ctx, q, args...)
}

// ListUpcomingByMovie returns the active sessions of a movie scheduled on or
// after today, ordered by date then start time.
func (r *SessionRepo) ListUpcomingByMovie(ctx context.Context, movieID string, today time.Time) ([]model.Session, error) {
	q := `SELECT ` + sessionColumns + `
          FROM sessions
          WHERE movie_id = ? AND is_active = TRUE AND session_date >= ?
          ORDER BY session_date ASC, start_time ASC`
	return r.query(ctx, q, movieID, today.UTC().Format(model.DateLayout))
}

func (r *SessionRepo) query(ctx context.Context, q string, args ...any) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CompareAndSetSeats writes a new available_seats value only if the row
// still carries the version the caller read.  It reports false when another
// writer got there first (or the row vanished); the caller re-reads and
// retries.  This is the only statement that changes available_seats on its
// own.
func (r *SessionRepo) CompareAndSetSeats(ctx context.Context, id, version uint64, available int) (bool, error) {
	const q = `UPDATE sessions
               SET available_seats = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
               WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q, available, id, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateIfVersion writes every mutable column of s guarded by the version
// the caller read.  It is used for administrative edits, including changes
// to total_seats that shift available_seats by the same delta.  It reports
// false on a version conflict.
func (r *SessionRepo) UpdateIfVersion(ctx context.Context, s *model.Session, version uint64) (bool, error) {
	const q = `UPDATE sessions
               SET room_number = ?, session_date = ?, start_time = ?, end_time = ?,
                   total_seats = ?, available_seats = ?, base_price_cents = ?, is_active = ?,
                   version = version + 1, updated_at = CURRENT_TIMESTAMP
               WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q,
		s.RoomNumber, s.Date.UTC().Format(model.DateLayout), s.StartTime, s.EndTime,
		s.TotalSeats, s.AvailableSeats, s.BasePriceCents, s.IsActive,
		s.ID, version,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetActive toggles is_active.  Seat counters are untouched.  It returns
// ErrSessionNotFound when the row does not exist.
func (r *SessionRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	const q = `UPDATE sessions SET is_active = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session row.  It returns ErrSessionNotFound when the row
// does not exist.  Whether deletion is allowed is decided by the caller.
func (r *SessionRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

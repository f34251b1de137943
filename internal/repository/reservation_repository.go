package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-sessions/internal/model"
)

const reservationColumns = `id, session_id, user_id, user_name, user_email, number_of_seats,
       unit_price_cents, total_price_cents, discount_percent, user_type, status, reservation_code,
       created_at, updated_at`

// ReservationRepo provides persistence for reservations.  Seat bookkeeping
// is never done here; the session registry owns available_seats.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r        model.Reservation
		userType string
		status   string
	)
	if err := row.Scan(
		&r.ID, &r.SessionID, &r.UserID, &r.UserName, &r.UserEmail, &r.NumberOfSeats,
		&r.UnitPriceCents, &r.TotalPriceCents, &r.DiscountPercent, &userType, &status, &r.ReservationCode,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.UserType = model.UserType(userType)
	r.Status = model.ReservationStatus(status)
	return &r, nil
}

// Create inserts res and fills in the generated ID and timestamps.  A
// collision on the unique reservation_code index is reported as
// ErrDuplicateCode so the caller can regenerate the code and try again.
// Once the INSERT has succeeded Create does not fail: the read-back of
// defaults is best effort and falls back to values known on this side.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (session_id, user_id, user_name, user_email, number_of_seats,
                                         unit_price_cents, total_price_cents, discount_percent,
                                         user_type, status, reservation_code)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q,
		res.SessionID, res.UserID, res.UserName, res.UserEmail, res.NumberOfSeats,
		res.UnitPriceCents, res.TotalPriceCents, res.DiscountPercent,
		string(res.UserType), string(res.Status), res.ReservationCode,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateCode
		}
		return err
	}

	now := time.Now().UTC()
	res.CreatedAt, res.UpdatedAt = now, now
	readCtx := context.WithoutCancel(ctx)
	var fresh *model.Reservation
	if id, err := result.LastInsertId(); err == nil {
		res.ID = uint64(id)
		fresh, _ = r.GetByID(readCtx, res.ID)
	} else {
		// the code is unique, so it identifies the row just written
		fresh, _ = r.GetByCode(readCtx, res.ReservationCode)
	}
	if fresh != nil {
		*res = *fresh
	}
	return nil
}

// GetByID returns the reservation with the given ID or ErrReservationNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	return r.one(ctx, q, id)
}

// GetByCode looks a reservation up by its public code.  Codes are stored
// upper-case, so the lookup upper-cases its input.
func (r *ReservationRepo) GetByCode(ctx context.Context, code string) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE reservation_code = ?`
	return r.one(ctx, q, strings.ToUpper(strings.TrimSpace(code)))
}

// ListByUser returns every reservation of a user, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	return r.many(ctx, q, userID)
}

// ListAll returns every reservation, newest first.
func (r *ReservationRepo) ListAll(ctx context.Context) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations ORDER BY created_at DESC, id DESC`
	return r.many(ctx, q)
}

// TransitionStatus moves a reservation from one status to another only if
// it is currently in from.  It reports whether a row changed; false means
// the reservation is missing or no longer in from.
func (r *ReservationRepo) TransitionStatus(ctx context.Context, id uint64, from, to model.ReservationStatus) (bool, error) {
	const q = `UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes a reservation row.  It returns ErrReservationNotFound when
// nothing was deleted.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// CountConfirmedBySession counts confirmed reservations held against a session.
func (r *ReservationRepo) CountConfirmedBySession(ctx context.Context, sessionID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations WHERE session_id = ? AND status = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, sessionID, string(model.StatusConfirmed)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ReservationRepo) one(ctx context.Context, q string, args ...any) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return res, nil
}

func (r *ReservationRepo) many(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

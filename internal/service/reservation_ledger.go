package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/cinema-sessions/internal/logger"
	"github.com/iliyamo/cinema-sessions/internal/model"
	"github.com/iliyamo/cinema-sessions/internal/repository"
)

// codeAttempts bounds regeneration after a reservation code collision.
const codeAttempts = 5

const base36Digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ReservationStore is the persistence the ledger needs.  It is satisfied by
// *repository.ReservationRepo.
type ReservationStore interface {
	Create(ctx context.Context, r *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	GetByCode(ctx context.Context, code string) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	ListAll(ctx context.Context) ([]model.Reservation, error)
	TransitionStatus(ctx context.Context, id uint64, from, to model.ReservationStatus) (bool, error)
	Delete(ctx context.Context, id uint64) error
	CountConfirmedBySession(ctx context.Context, sessionID uint64) (int, error)
}

// ReservationLedger owns reservation records.  It never touches seat
// counters.
type ReservationLedger struct {
	store   ReservationStore
	newCode func() (string, error)
}

// NewReservationLedger returns a ledger backed by store.
func NewReservationLedger(store ReservationStore) *ReservationLedger {
	return &ReservationLedger{
		store:   store,
		newCode: func() (string, error) { return NewReservationCode(time.Now()) },
	}
}

// NewReservationCode returns "RES-" followed by the upper-case base-36
// millisecond timestamp and four random base-36 characters.
func NewReservationCode(now time.Time) (string, error) {
	var suffix [4]byte
	max := big.NewInt(int64(len(base36Digits)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random code suffix: %w", err)
		}
		suffix[i] = base36Digits[n.Int64()]
	}
	return "RES-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)) + string(suffix[:]), nil
}

// Create persists r as confirmed under a fresh code.  A collision on the
// unique code index regenerates the code, up to codeAttempts times.
//
// Any other store error is ambiguous: the insert may have committed before a
// later step failed.  The code is unique, so Create looks it up and reports
// success when the row is there.  If even that lookup fails it returns an
// error matching ErrWriteUnconfirmed, and the caller must not assume the
// reservation is absent.
func (l *ReservationLedger) Create(ctx context.Context, r *model.Reservation) error {
	r.Status = model.StatusConfirmed
	var lastErr error
	for attempt := 1; attempt <= codeAttempts; attempt++ {
		code, err := l.newCode()
		if err != nil {
			return err
		}
		r.ReservationCode = code
		err = l.store.Create(ctx, r)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return l.confirmCreate(ctx, r, err)
		}
		lastErr = err
		logger.FromContext(ctx).Warn("reservation code collision", "code", code, "attempt", attempt)
	}
	return fmt.Errorf("create reservation after %d code attempts: %w", codeAttempts, lastErr)
}

func (l *ReservationLedger) confirmCreate(ctx context.Context, r *model.Reservation, cause error) error {
	log := logger.FromContext(ctx)
	stored, err := l.store.GetByCode(context.WithoutCancel(ctx), r.ReservationCode)
	switch {
	case err == nil:
		log.Warn("reservation stored despite write error", "code", r.ReservationCode, "reservation_id", stored.ID, "error", cause)
		*r = *stored
		return nil
	case errors.Is(err, repository.ErrReservationNotFound):
		return fmt.Errorf("create reservation: %w", cause)
	default:
		log.Error("cannot tell whether reservation was stored", "code", r.ReservationCode, "error", cause, "lookup_error", err)
		return fmt.Errorf("create reservation: %w", errors.Join(ErrWriteUnconfirmed, cause, err))
	}
}

// FindByID returns a reservation or a not-found error.
func (l *ReservationLedger) FindByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := l.store.GetByID(ctx, id)
	return r, mapReservationErr(err, "get reservation")
}

// FindByCode looks a reservation up by code, ignoring case.
func (l *ReservationLedger) FindByCode(ctx context.Context, code string) (*model.Reservation, error) {
	r, err := l.store.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	return r, mapReservationErr(err, "get reservation by code")
}

// FindByUser returns a user's reservations, newest first.
func (l *ReservationLedger) FindByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	rs, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reservations of user %d: %w", userID, err)
	}
	return rs, nil
}

// List returns every reservation, newest first.
func (l *ReservationLedger) List(ctx context.Context) ([]model.Reservation, error) {
	rs, err := l.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return rs, nil
}

// Cancel moves a confirmed reservation to cancelled with a conditional
// update, so of two concurrent cancels exactly one succeeds.  A second
// cancel fails with an already-cancelled error.  Once the update has
// matched, Cancel never fails: a failed read-back returns the record read
// before the update with its status switched.
func (l *ReservationLedger) Cancel(ctx context.Context, id uint64) (*model.Reservation, error) {
	before, err := l.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := l.store.TransitionStatus(ctx, id, model.StatusConfirmed, model.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel reservation %d: %w", id, err)
	}
	if !ok {
		r, err := l.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Status == model.StatusCancelled {
			return nil, ErrAlreadyCancelled
		}
		return nil, validationError("reservation in status %q cannot be cancelled", r.Status)
	}

	r, err := l.FindByID(context.WithoutCancel(ctx), id)
	if err != nil {
		logger.FromContext(ctx).Warn("cancelled reservation read-back failed", "reservation_id", id, "error", err)
		r = before
		r.Status = model.StatusCancelled
		r.UpdatedAt = time.Now().UTC()
	}
	return r, nil
}

// Delete removes a reservation record without any seat bookkeeping.
func (l *ReservationLedger) Delete(ctx context.Context, id uint64) error {
	return mapReservationErr(l.store.Delete(ctx, id), "delete reservation")
}

// CountConfirmedBySession counts confirmed reservations on a session.
func (l *ReservationLedger) CountConfirmedBySession(ctx context.Context, sessionID uint64) (int, error) {
	n, err := l.store.CountConfirmedBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("count reservations of session %d: %w", sessionID, err)
	}
	return n, nil
}

func mapReservationErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrReservationNotFound):
		return notFoundError("reservation", err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

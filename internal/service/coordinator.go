// Package service holds the booking core: the session registry (seat
// counters), the reservation ledger and the coordinator that keeps the two
// consistent.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-sessions/internal/catalog"
	"github.com/iliyamo/cinema-sessions/internal/logger"
	"github.com/iliyamo/cinema-sessions/internal/metrics"
	"github.com/iliyamo/cinema-sessions/internal/model"
	"github.com/iliyamo/cinema-sessions/internal/pricing"
	"github.com/iliyamo/cinema-sessions/internal/queue"
)

// Seat count bounds for a single reservation.
const (
	MinSeatsPerReservation = 1
	MaxSeatsPerReservation = 10
)

// MovieResolver looks movies up in the external catalog.
type MovieResolver interface {
	Get(ctx context.Context, movieID string) (*catalog.Movie, error)
}

// EventPublisher sends reservation events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// Coordinator orchestrates the session registry and the reservation ledger.
// Whenever the second step of an operation fails after the first one
// changed a seat counter, it undoes the counter change.
type Coordinator struct {
	sessions *SessionRegistry
	ledger   *ReservationLedger
	movies   MovieResolver
	events   EventPublisher
	metrics  *metrics.Metrics
	inFlight *keyedMutex // serializes cancel/delete per reservation
}

// NewCoordinator wires the coordinator.  events and m may be nil.
func NewCoordinator(sessions *SessionRegistry, ledger *ReservationLedger, movies MovieResolver, events EventPublisher, m *metrics.Metrics) *Coordinator {
	return &Coordinator{sessions: sessions, ledger: ledger, movies: movies, events: events, metrics: m, inFlight: newKeyedMutex()}
}

// Sessions exposes the registry for read-only lookups by the HTTP layer.
func (c *Coordinator) Sessions() *SessionRegistry { return c.sessions }

// Ledger exposes the ledger for read-only lookups by the HTTP layer.
func (c *Coordinator) Ledger() *ReservationLedger { return c.ledger }

// CreateReservationInput is a booking request.  UserType is the raw tier
// string from the client; unknown tiers pay full price.
type CreateReservationInput struct {
	SessionID     uint64
	UserID        uint64
	UserName      string
	UserEmail     string
	NumberOfSeats int
	UserType      string
}

// ReservationResult is returned by CreateReservation.
type ReservationResult struct {
	Reservation    *model.Reservation `json:"reservation"`
	PricingDetails pricing.Price      `json:"pricing_details"`
}

// CreateReservation books seats on a session.  Seats are taken before the
// record is written; if the write fails the seats are released again.
func (c *Coordinator) CreateReservation(ctx context.Context, in CreateReservationInput) (*ReservationResult, error) {
	log := logger.FromContext(ctx)

	session, err := c.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		c.metrics.Reservation("create", outcome(err))
		return nil, err
	}
	if !session.IsActive {
		c.metrics.Reservation("create", string(KindValidation))
		return nil, validationError("session %d is not accepting reservations", session.ID)
	}
	if in.NumberOfSeats < MinSeatsPerReservation || in.NumberOfSeats > MaxSeatsPerReservation {
		c.metrics.Reservation("create", string(KindValidation))
		return nil, validationError("number_of_seats must be between %d and %d", MinSeatsPerReservation, MaxSeatsPerReservation)
	}

	tier := pricing.ParseUserType(in.UserType)
	price := pricing.Quote(session.BasePriceCents, tier, in.NumberOfSeats)

	if _, err := c.sessions.ReserveActiveSeats(ctx, session.ID, in.NumberOfSeats); err != nil {
		c.metrics.Reservation("create", outcome(err))
		return nil, err
	}

	r := &model.Reservation{
		SessionID:       session.ID,
		UserID:          in.UserID,
		UserName:        in.UserName,
		UserEmail:       in.UserEmail,
		NumberOfSeats:   in.NumberOfSeats,
		UnitPriceCents:  price.UnitPriceCents,
		TotalPriceCents: price.TotalPriceCents,
		DiscountPercent: price.DiscountPercent,
		UserType:        tier,
	}
	if err := c.ledger.Create(ctx, r); err != nil {
		if errors.Is(err, ErrWriteUnconfirmed) {
			// The row may exist; releasing could oversell the session.
			c.metrics.Reservation("create", "error")
			return nil, &Error{
				Kind:    KindInternalConsistency,
				Message: fmt.Sprintf("reservation on session %d may not have been stored; its %d seats stay held", session.ID, in.NumberOfSeats),
				Err:     err,
			}
		}
		log.Error("reservation write failed, releasing seats", "session_id", session.ID, "seats", in.NumberOfSeats, "error", err)
		c.metrics.Reservation("create", "error")
		if cerr := c.compensate(ctx, "create", func(ctx context.Context) error {
			_, err := c.sessions.ReleaseSeats(ctx, session.ID, in.NumberOfSeats)
			return err
		}); cerr != nil {
			return nil, &Error{
				Kind:    KindInternalConsistency,
				Message: fmt.Sprintf("reservation failed and %d seats could not be returned to session %d", in.NumberOfSeats, session.ID),
				Err:     errors.Join(err, cerr),
			}
		}
		return nil, err
	}

	c.metrics.Reservation("create", "ok")
	log.Info("reservation created", "reservation_id", r.ID, "code", r.ReservationCode, "session_id", session.ID, "seats", r.NumberOfSeats)
	c.publish(ctx, queue.EventReservationCreated, r, session)
	return &ReservationResult{Reservation: r, PricingDetails: price}, nil
}

// CancelReservation cancels a confirmed reservation and returns its seats.
// Cancelling twice fails with an already-cancelled error.  When the session
// no longer exists the seat release is skipped and the record is still
// cancelled.  Cancels of the same reservation run one at a time in this
// process, so a racing second cancel sees the first one's result.
func (c *Coordinator) CancelReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	log := logger.FromContext(ctx)
	defer c.inFlight.lock(id)()

	r, err := c.ledger.FindByID(ctx, id)
	if err != nil {
		c.metrics.Reservation("cancel", outcome(err))
		return nil, err
	}
	if r.Status == model.StatusCancelled {
		c.metrics.Reservation("cancel", string(KindAlreadyCancelled))
		return nil, ErrAlreadyCancelled
	}
	if !r.Status.CanTransitionTo(model.StatusCancelled) {
		c.metrics.Reservation("cancel", string(KindValidation))
		return nil, validationError("reservation in status %q cannot be cancelled", r.Status)
	}

	session, released, err := c.releaseFor(ctx, r)
	if err != nil {
		err = c.recheckCancelled(ctx, id, err)
		c.metrics.Reservation("cancel", outcome(err))
		return nil, err
	}

	cancelled, err := c.ledger.Cancel(ctx, id)
	if err != nil {
		c.metrics.Reservation("cancel", outcome(err))
		if released {
			log.Warn("cancel failed after seat release, re-reserving", "reservation_id", id, "error", err)
			if cerr := c.rereserve(ctx, "cancel", r); cerr != nil {
				return nil, &Error{
					Kind:    KindInternalConsistency,
					Message: fmt.Sprintf("cancel of reservation %d failed and its seats could not be re-reserved", id),
					Err:     errors.Join(err, cerr),
				}
			}
		}
		return nil, err
	}

	c.metrics.Reservation("cancel", "ok")
	log.Info("reservation cancelled", "reservation_id", id, "session_id", r.SessionID, "seats_released", released)
	c.publish(ctx, queue.EventReservationCancelled, cancelled, session)
	return cancelled, nil
}

// DeleteReservation removes a reservation record.  Seats of a confirmed
// reservation are returned first and taken back if the delete fails.
func (c *Coordinator) DeleteReservation(ctx context.Context, id uint64) error {
	log := logger.FromContext(ctx)
	defer c.inFlight.lock(id)()

	r, err := c.ledger.FindByID(ctx, id)
	if err != nil {
		c.metrics.Reservation("delete", outcome(err))
		return err
	}

	var (
		session  *model.Session
		released bool
	)
	if r.Status == model.StatusConfirmed {
		if session, released, err = c.releaseFor(ctx, r); err != nil {
			c.metrics.Reservation("delete", outcome(err))
			return err
		}
	}

	if err := c.ledger.Delete(ctx, id); err != nil {
		c.metrics.Reservation("delete", outcome(err))
		if released {
			log.Warn("delete failed after seat release, re-reserving", "reservation_id", id, "error", err)
			if cerr := c.rereserve(ctx, "delete", r); cerr != nil {
				return &Error{
					Kind:    KindInternalConsistency,
					Message: fmt.Sprintf("delete of reservation %d failed and its seats could not be re-reserved", id),
					Err:     errors.Join(err, cerr),
				}
			}
		}
		return err
	}

	c.metrics.Reservation("delete", "ok")
	log.Info("reservation deleted", "reservation_id", id, "seats_released", released)
	c.publish(ctx, queue.EventReservationDeleted, r, session)
	return nil
}

// outcome labels a failed operation for metrics.
func outcome(err error) string {
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// releaseFor returns a reservation's seats to its session.  A missing
// session is logged and skipped; released reports whether seats moved.
func (c *Coordinator) releaseFor(ctx context.Context, r *model.Reservation) (*model.Session, bool, error) {
	session, err := c.sessions.GetByID(ctx, r.SessionID)
	if errors.Is(err, ErrNotFound) {
		logger.FromContext(ctx).Warn("session of reservation is gone, skipping seat release",
			"reservation_id", r.ID, "session_id", r.SessionID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if _, err := c.sessions.ReleaseSeats(ctx, r.SessionID, r.NumberOfSeats); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// recheckCancelled turns a release refused for exceeding capacity into
// AlreadyCancelled when another instance cancelled the reservation first.
func (c *Coordinator) recheckCancelled(ctx context.Context, id uint64, err error) error {
	if !errors.Is(err, ErrInternalConsistency) {
		return err
	}
	if cur, ferr := c.ledger.FindByID(ctx, id); ferr == nil && cur.Status == model.StatusCancelled {
		return ErrAlreadyCancelled
	}
	return err
}

func (c *Coordinator) rereserve(ctx context.Context, op string, r *model.Reservation) error {
	return c.compensate(ctx, op, func(ctx context.Context) error {
		_, err := c.sessions.ReserveSeats(ctx, r.SessionID, r.NumberOfSeats)
		return err
	})
}

// compensate runs undo on a context detached from the request so a client
// disconnect cannot stop it half way.
func (c *Coordinator) compensate(ctx context.Context, op string, undo func(context.Context) error) error {
	err := undo(context.WithoutCancel(ctx))
	c.metrics.Compensation(op, err == nil)
	if err != nil {
		logger.FromContext(ctx).Error("compensation failed, seat counter needs reconciliation", "op", op, "error", err)
	}
	return err
}

func (c *Coordinator) publish(ctx context.Context, typ string, r *model.Reservation, s *model.Session) {
	if c.events == nil {
		return
	}
	ev := queue.ReservationEvent{
		Type:            typ,
		ReservationID:   r.ID,
		ReservationCode: r.ReservationCode,
		SessionID:       r.SessionID,
		UserID:          r.UserID,
		NumberOfSeats:   r.NumberOfSeats,
		TotalPriceCents: r.TotalPriceCents,
		Status:          string(r.Status),
		OccurredAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if s != nil {
		ev.MovieID = s.MovieID
		ev.MovieName = s.MovieName
		ev.RoomNumber = s.RoomNumber
	}
	// Publishers must not block on the broker; see queue.Publisher.
	if err := c.events.Publish(ctx, ev); err != nil {
		logger.FromContext(ctx).Warn("publish reservation event failed", "type", typ, "reservation_id", r.ID, "error", err)
	}
}

// CreateSessionInput schedules a session for a catalog movie.  MovieName is
// only used when the catalog entry carries no name.
type CreateSessionInput = NewSessionInput

// CreateSession checks the movie against the catalog, snapshots its name and
// stores the session.
func (c *Coordinator) CreateSession(ctx context.Context, in CreateSessionInput) (*model.Session, error) {
	if in.MovieID == "" {
		return nil, validationError("movie_id is required")
	}
	movie, err := c.movies.Get(ctx, in.MovieID)
	switch {
	case errors.Is(err, catalog.ErrMovieNotFound):
		return nil, notFoundError("movie", err)
	case err != nil:
		logger.FromContext(ctx).Warn("movie catalog lookup failed", "movie_id", in.MovieID, "error", err)
		return nil, &Error{Kind: KindServiceUnavailable, Message: "movie catalog is temporarily unavailable", Err: err}
	}
	if movie.Name != "" {
		in.MovieName = movie.Name
	}
	return c.sessions.Create(ctx, in)
}

// DeleteSessionResult reports what DeleteSession did.
type DeleteSessionResult struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}

// DeleteSession hard-deletes a session with no confirmed reservations.
// Otherwise the session is only deactivated so existing bookings keep their
// seat accounting.  The session is deactivated before reservations are
// counted, so no booking can land between the count and the delete.
func (c *Coordinator) DeleteSession(ctx context.Context, id uint64) (DeleteSessionResult, error) {
	log := logger.FromContext(ctx)

	s, err := c.sessions.GetByID(ctx, id)
	if err != nil {
		return DeleteSessionResult{}, err
	}
	wasActive := s.IsActive
	if wasActive {
		if err := c.sessions.SetActive(ctx, id, false); err != nil {
			return DeleteSessionResult{}, err
		}
	}
	restore := func(cause error) (DeleteSessionResult, error) {
		if wasActive {
			if rerr := c.sessions.SetActive(context.WithoutCancel(ctx), id, true); rerr != nil {
				log.Error("could not reactivate session", "session_id", id, "error", rerr)
			}
		}
		return DeleteSessionResult{}, cause
	}

	n, err := c.ledger.CountConfirmedBySession(ctx, id)
	if err != nil {
		return restore(err)
	}
	// Seats taken by a booking whose record is not written yet still count.
	if s, err = c.sessions.GetByID(ctx, id); err != nil {
		return restore(err)
	}
	if n > 0 || s.BookedSeats() > 0 {
		log.Info("session deactivated instead of deleted", "session_id", id, "confirmed_reservations", n, "booked_seats", s.BookedSeats())
		return DeleteSessionResult{Deactivated: true}, nil
	}
	if err := c.sessions.Delete(ctx, id); err != nil {
		return restore(err)
	}
	log.Info("session deleted", "session_id", id)
	return DeleteSessionResult{Deleted: true}, nil
}

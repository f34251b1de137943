// Package queue carries reservation events over RabbitMQ and the consumer
// that records them in logs/booking.log.
package queue

// ReservationsQueue is the durable queue all reservation events go to.
const ReservationsQueue = "reservation.events"

// Event types.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationDeleted   = "reservation.deleted"
)

// ReservationEvent is published after a reservation changes.  It carries
// enough for downstream consumers to log or notify without querying the
// database.
type ReservationEvent struct {
	Type            string `json:"type"`
	ReservationID   uint64 `json:"reservation_id"`
	ReservationCode string `json:"reservation_code"`
	SessionID       uint64 `json:"session_id"`
	UserID          uint64 `json:"user_id"`
	MovieID         string `json:"movie_id,omitempty"`
	MovieName       string `json:"movie_name,omitempty"`
	RoomNumber      string `json:"room_number,omitempty"`
	NumberOfSeats   int    `json:"number_of_seats"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Status          string `json:"status"`
	OccurredAt      string `json:"occurred_at"`
}

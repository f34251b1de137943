package model

import (
	"encoding/json"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.  Only
// StatusConfirmed and StatusCancelled are reachable today; StatusPending is
// reserved for a future hold-then-confirm flow and no code path produces it.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
)

// CanTransitionTo reports whether moving from s to next is permitted.  The
// only transition is confirmed -> cancelled; cancelled is terminal.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return s == StatusConfirmed && next == StatusCancelled
}

// UserType is the pricing tier a reservation was booked under.
type UserType string

const (
	UserTypeStandard     UserType = "standard"
	UserTypeStudent      UserType = "student"
	UserTypeMinor        UserType = "minor"
	UserTypeUnemployed   UserType = "unemployed"
	UserTypeUnrecognized UserType = "unrecognized"
)

// Reservation records a booking of NumberOfSeats seats against one session.
// Price fields are computed once at creation and never change afterwards.
// It corresponds to a row in the `reservations` table.
type Reservation struct {
	ID              uint64            `json:"id"`                // reservations.id
	SessionID       uint64            `json:"session_id"`        // reservations.session_id
	UserID          uint64            `json:"user_id"`           // reservations.user_id
	UserName        string            `json:"user_name"`         // reservations.user_name
	UserEmail       string            `json:"user_email"`        // reservations.user_email
	NumberOfSeats   int               `json:"number_of_seats"`   // reservations.number_of_seats
	UnitPriceCents  int64             `json:"unit_price_cents"`  // reservations.unit_price_cents
	TotalPriceCents int64             `json:"total_price_cents"` // reservations.total_price_cents
	DiscountPercent int               `json:"discount_percent"`  // reservations.discount_percent
	UserType        UserType          `json:"user_type"`         // reservations.user_type
	Status          ReservationStatus `json:"status"`            // reservations.status
	ReservationCode string            `json:"reservation_code"`  // reservations.reservation_code (unique)
	CreatedAt       time.Time         `json:"created_at"`        // reservations.created_at
	UpdatedAt       time.Time         `json:"updated_at"`        // reservations.updated_at
}

// MarshalJSON adds decimal renderings of the price fields.
func (r Reservation) MarshalJSON() ([]byte, error) {
	type alias Reservation
	return json.Marshal(struct {
		alias
		UnitPrice  float64 `json:"unit_price"`
		TotalPrice float64 `json:"total_price"`
	}{
		alias:      alias(r),
		UnitPrice:  CentsToAmount(r.UnitPriceCents),
		TotalPrice: CentsToAmount(r.TotalPriceCents),
	})
}

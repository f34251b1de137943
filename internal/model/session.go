package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire and storage format of Session.Date.
const DateLayout = "2006-01-02"

// Session represents a scheduled screening of a movie in a room with a fixed
// seat capacity.  It corresponds to a row in the `sessions` table.
//
// MovieName is a snapshot of the catalog name taken when the session was
// created.  It is never re-fetched, so later renames in the catalog do not
// reach existing sessions.
//
// AvailableSeats is owned by the session registry: every write goes through
// its version-guarded update, so Version must be read together with it.
type Session struct {
	ID             uint64    `json:"id"`               // sessions.id
	MovieID        string    `json:"movie_id"`         // sessions.movie_id
	MovieName      string    `json:"movie_name"`       // sessions.movie_name (snapshot)
	RoomNumber     string    `json:"room_number"`      // sessions.room_number
	Date           time.Time `json:"date"`             // sessions.session_date (UTC midnight)
	StartTime      string    `json:"start_time"`       // sessions.start_time (HH:MM)
	EndTime        string    `json:"end_time"`         // sessions.end_time (HH:MM)
	TotalSeats     int       `json:"total_seats"`      // sessions.total_seats
	AvailableSeats int       `json:"available_seats"`  // sessions.available_seats
	BasePriceCents int64     `json:"base_price_cents"` // sessions.base_price_cents
	IsActive       bool      `json:"is_active"`        // sessions.is_active
	Version        uint64    `json:"-"`                // sessions.version
	CreatedAt      time.Time `json:"created_at"`       // sessions.created_at
	UpdatedAt      time.Time `json:"updated_at"`       // sessions.updated_at
}

// BookedSeats returns the number of seats held by confirmed reservations.
func (s Session) BookedSeats() int {
	return s.TotalSeats - s.AvailableSeats
}

// MarshalJSON adds the decimal base price and renders Date as a calendar day.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	return json.Marshal(struct {
		alias
		Date      string  `json:"date"`
		BasePrice float64 `json:"base_price"`
	}{
		alias:     alias(s),
		Date:      s.Date.UTC().Format(DateLayout),
		BasePrice: CentsToAmount(s.BasePriceCents),
	})
}

// CentsToAmount converts an integer amount of cents to currency units.
func CentsToAmount(cents int64) float64 {
	return float64(cents) / 100.0
}

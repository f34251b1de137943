// Package repository defines the MySQL persistence for sessions and
// reservations together with the sentinel errors shared by both
// repositories.  Higher layers translate these into domain errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrSessionNotFound indicates that no session row matched the given ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrReservationNotFound indicates that no reservation row matched the
// given ID or code.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrDuplicateCode is returned when an insert collides with the unique
// reservation_code index.  Callers regenerate the code and retry.
var ErrDuplicateCode = errors.New("duplicate reservation code")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.  The HTTP layer maps each kind to a
// status code in one place.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindInsufficientSeats   Kind = "insufficient_seats"
	KindAlreadyCancelled    Kind = "already_cancelled"
	KindServiceUnavailable  Kind = "service_unavailable"
	KindInternalConsistency Kind = "internal_consistency"
	KindContention          Kind = "contention"
)

// Error is the typed error returned by the service layer.  Available and
// Requested are set only for KindInsufficientSeats.
type Error struct {
	Kind      Kind
	Message   string
	Available int
	Requested int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, service.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientSeats   = &Error{Kind: KindInsufficientSeats, Message: "insufficient seats"}
	ErrAlreadyCancelled    = &Error{Kind: KindAlreadyCancelled, Message: "reservation already cancelled"}
	ErrServiceUnavailable  = &Error{Kind: KindServiceUnavailable, Message: "service unavailable"}
	ErrInternalConsistency = &Error{Kind: KindInternalConsistency, Message: "internal consistency error"}
	ErrContention          = &Error{Kind: KindContention, Message: "too much contention"}
)

// ErrWriteUnconfirmed marks a reservation write whose outcome is unknown:
// the store failed and the row could not be looked up afterwards.
var ErrWriteUnconfirmed = errors.New("reservation write unconfirmed")

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(what string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found", Err: err}
}

func insufficientSeatsError(available, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientSeats,
		Message:   fmt.Sprintf("only %d seats available, %d requested", available, requested),
		Available: available,
		Requested: requested,
	}
}

func internalConsistencyError(format string, args ...any) *Error {
	return &Error{Kind: KindInternalConsistency, Message: fmt.Sprintf(format, args...)}
}

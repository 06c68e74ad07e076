package consult

import "errors"

var (
	// ErrValidation marks requests rejected before any external call.
	ErrValidation = errors.New("consult: invalid request")
	// ErrTooManyBookings is returned when a patient exceeds the booking velocity limit.
	ErrTooManyBookings = errors.New("consult: too many bookings")
)

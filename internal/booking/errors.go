package booking

import "errors"

var (
	ErrSlotConflict           = errors.New("requested window overlaps an active booking")
	ErrInvalidTransition      = errors.New("status transition not allowed")
	ErrForbidden              = errors.New("not allowed to act on this booking")
	ErrAlreadyTerminal        = errors.New("booking is already cancelled or completed")
	ErrNotFound               = errors.New("booking not found")
	ErrInvalidRequest         = errors.New("invalid booking request")
	ErrOutsideHours           = errors.New("window is outside opening hours")
	ErrPastDate               = errors.New("cannot book in the past")
	ErrDateTooFar             = errors.New("date is too far in the future")
	ErrTooManyActive          = errors.New("too many active bookings")
	ErrConcurrentModification = errors.New("concurrent modification")
)

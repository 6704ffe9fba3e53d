package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/spacebook/internal/domain"
)

var (
	ErrAreaNotFound    = errors.New("area not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrAreaFull        = errors.New("area is at capacity")
	ErrInvalidWindow   = errors.New("invalid booking window")
	ErrInvalidGuests   = errors.New("guest count must be positive")
	// ErrWindowStarted covers windows that began at or before now; a held
	// booking for such a window would be expired by the next reconcile run.
	ErrWindowStarted      = errors.New("booking window has already started")
	ErrPaymentNotCaptured = errors.New("payment not captured")
	ErrPreconditionLost   = errors.New("booking is in a different state")
	ErrRateLimited        = errors.New("too many booking requests")
)

// PreconditionLostError reports that a guarded transition applied to nothing.
// Status is the state read back afterwards and is informational only.
type PreconditionLostError struct {
	BookingID uuid.UUID
	Status    domain.BookingStatus
}

func (e PreconditionLostError) Error() string {
	return fmt.Sprintf("booking %s is %s", e.BookingID, e.Status)
}

func (e PreconditionLostError) Unwrap() error {
	return ErrPreconditionLost
}

type NotCancellableError struct {
	BookingID uuid.UUID
	Status    domain.BookingStatus
}

func (e NotCancellableError) Error() string {
	return fmt.Sprintf("booking %s is %s and cannot be cancelled", e.BookingID, e.Status)
}

func (e NotCancellableError) Unwrap() error {
	return ErrPreconditionLost
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

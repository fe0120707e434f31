package entity

import (
	"errors"
	"fmt"
)

var (
	// Event errors
	ErrEventNotFound    = errors.New("event not found")
	ErrCategoryNotFound = errors.New("ticket category not found")
	ErrEventDatePast    = errors.New("event has already started")

	// Capacity errors
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrSoldOut              = errors.New("sold out")
	ErrLedgerUnderflow      = errors.New("release would drive sold below zero")

	// Promo errors
	ErrPromoNotFound  = errors.New("promo code not found")
	ErrPromoExhausted = errors.New("promo code usage limit reached")

	// Booking errors
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrTooLateToCancel   = errors.New("too late to cancel booking")
	ErrWrongStatus       = errors.New("booking is not in a status that allows this operation")
	ErrAlreadyCheckedIn  = errors.New("booking already checked in")
	ErrInvalidQuantity   = errors.New("invalid ticket quantity")

	// Payment errors
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrUnknownProviderStatus = errors.New("unknown provider transaction status")
	ErrInvalidSignature      = errors.New("invalid payment notification signature")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")

	// Waitlist errors
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrAlreadyOnWaitlist     = errors.New("already on waitlist")
	ErrTicketsAvailable      = errors.New("tickets are still available, book directly")

	// General errors
	ErrInvalidInput        = errors.New("invalid input")
	ErrTransactionConflict = errors.New("transaction conflict, retries exhausted")
	ErrUnauthorized        = errors.New("unauthorized access")
	ErrForbidden           = errors.New("forbidden operation")
)

// CapacityError carries the remaining count observed at the moment the
// reservation was attempted. It matches ErrSoldOut when nothing is left and
// ErrInsufficientCapacity otherwise.
type CapacityError struct {
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	if e.Remaining <= 0 {
		return fmt.Sprintf("sold out: requested %d", e.Requested)
	}
	return fmt.Sprintf("insufficient capacity: requested %d, remaining %d", e.Requested, e.Remaining)
}

func (e *CapacityError) Is(target error) bool {
	switch target {
	case ErrInsufficientCapacity:
		return e.Remaining > 0
	case ErrSoldOut:
		return e.Remaining <= 0
	}
	return false
}

// TransitionError reports a refused state change together with the state the
// booking is actually in, so clients can resynchronize.
type TransitionError struct {
	Op      string
	Current BookingStatus
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s booking in status %q: %v", e.Op, e.Current, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOutOfStock                  = errors.New("not enough tickets available")
	ErrTicketTypeNotActive         = errors.New("ticket type is not on sale")
	ErrReservationExpired          = errors.New("reservation has expired")
	ErrPaymentRejected             = errors.New("payment was rejected")
	ErrCloseWithActiveReservations = errors.New("ticket type has active reservations")

	ErrTicketTypeNotFound  = errors.New("ticket type not found")
	ErrTicketTypeClosed    = errors.New("ticket type is already closed")
	ErrTicketTypeInUse     = errors.New("ticket type has sales or holds")
	ErrInvalidTicketType   = errors.New("invalid ticket type")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrCheckoutNotFound    = errors.New("checkout not found")
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrPurchaseFinalized   = errors.New("purchase is already finalized")

	ErrInvalidQuantity      = errors.New("invalid ticket quantity")
	ErrNoTicketsSelected    = errors.New("no tickets selected")
	ErrInvalidAttendee      = errors.New("invalid attendee data")
	ErrInvalidCheckoutState = errors.New("checkout is not in the expected state")
	ErrInvalidPayment       = errors.New("invalid payment reference")

	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not allowed")
)

// CloseBlockedError is returned by Close while holds are still live on the type.
type CloseBlockedError struct {
	ActiveReservations int
	RetryAfter         time.Duration
}

func (e *CloseBlockedError) Error() string {
	return fmt.Sprintf("%s: %d live, retry after %s", ErrCloseWithActiveReservations, e.ActiveReservations, e.RetryAfter)
}

func (e *CloseBlockedError) Unwrap() error {
	return ErrCloseWithActiveReservations
}

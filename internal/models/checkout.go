package models

import "time"

type CheckoutState string

const (
	CheckoutSelectingTickets       CheckoutState = "selecting_tickets"
	CheckoutCollectingAttendeeData CheckoutState = "collecting_attendee_data"
	CheckoutAwaitingPayment        CheckoutState = "awaiting_payment"
	CheckoutCompleted              CheckoutState = "completed"
	CheckoutFailed                 CheckoutState = "failed"
	CheckoutExpired                CheckoutState = "expired"
	CheckoutCancelled              CheckoutState = "cancelled"
)

// Checkout is one pass through the purchase workflow. It owns exactly one reservation.
type Checkout struct {
	ID            string        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string        `gorm:"not null;index" json:"userId"`
	EventID       uint          `gorm:"not null" json:"eventId"`
	TicketTypeID  uint          `gorm:"not null" json:"ticketTypeId"`
	ReservationID string        `gorm:"type:uuid;not null;uniqueIndex" json:"reservationId"`
	PurchaseID    *uint         `json:"purchaseId,omitempty"`
	State         CheckoutState `gorm:"type:varchar(32);not null" json:"state"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (c *Checkout) IsOpen() bool {
	return c.State == CheckoutCollectingAttendeeData || c.State == CheckoutAwaitingPayment
}

package service

import (
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/monitoring"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	RoutingTicketTypePrefix   = "ticket_type."
	RoutingPurchaseApproved   = "purchase.approved"
	RoutingPurchaseRejected   = "purchase.rejected"
	RoutingReservationExpired = "reservation.expired"
	RoutingPaymentNeedsRefund = "payment.refund_required"
)

// Publisher delivers domain events after the owning transaction committed.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

type StatusChange struct {
	TicketType models.TicketType
	From       models.TicketTypeStatus
	To         models.TicketTypeStatus
}

type TicketTypeEvent struct {
	TicketTypeID     uint                    `json:"ticketTypeId"`
	EventID          uint                    `json:"eventId"`
	Name             string                  `json:"ticketTypeName"`
	From             models.TicketTypeStatus `json:"from"`
	To               models.TicketTypeStatus `json:"to"`
	AvailableTickets int                     `json:"availableTickets"`
	MaxQuantity      int                     `json:"maxQuantity"`
	OccurredAt       time.Time               `json:"occurredAt"`
}

type PurchaseEvent struct {
	PurchaseID     uint                 `json:"purchaseId"`
	UserID         string               `json:"userId"`
	TicketTypeID   uint                 `json:"ticketTypeId"`
	TicketQuantity int                  `json:"ticketQuantity"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	PaymentID      string               `json:"paymentId,omitempty"`
	TotalPrice     decimal.Decimal      `json:"totalPrice"`
	OccurredAt     time.Time            `json:"occurredAt"`
}

type ReservationEvent struct {
	ReservationID string    `json:"reservationId"`
	TicketTypeID  uint      `json:"ticketTypeId"`
	Quantity      int       `json:"quantity"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func publish(p Publisher, routingKey string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(routingKey, payload); err != nil {
		logrus.WithError(err).WithField("routing_key", routingKey).Warn("failed to publish domain event")
	}
}

func publishStatusChanges(p Publisher, changes []StatusChange, at time.Time) {
	for _, c := range changes {
		monitoring.RecordTicketTypeTransition(string(c.To))
		logrus.WithFields(logrus.Fields{
			"event_id":       c.TicketType.EventID,
			"ticket_type_id": c.TicketType.ID,
			"from":           c.From,
			"to":             c.To,
		}).Info("ticket type transitioned")
		publish(p, RoutingTicketTypePrefix+string(c.To), TicketTypeEvent{
			TicketTypeID:     c.TicketType.ID,
			EventID:          c.TicketType.EventID,
			Name:             c.TicketType.Name,
			From:             c.From,
			To:               c.To,
			AvailableTickets: c.TicketType.AvailableTickets,
			MaxQuantity:      c.TicketType.MaxQuantity,
			OccurredAt:       at,
		})
	}
}

func publishPurchase(p Publisher, purchase *models.Purchase, at time.Time) {
	monitoring.RecordPurchase(string(purchase.PaymentStatus))
	key := RoutingPurchaseRejected
	if purchase.PaymentStatus == models.PaymentApproved {
		key = RoutingPurchaseApproved
	}
	ev := PurchaseEvent{
		PurchaseID:     purchase.ID,
		UserID:         purchase.UserID,
		TicketTypeID:   purchase.TicketTypeID,
		TicketQuantity: purchase.TicketQuantity,
		PaymentStatus:  purchase.PaymentStatus,
		TotalPrice:     purchase.TotalPrice,
		OccurredAt:     at,
	}
	if purchase.PaymentID != nil {
		ev.PaymentID = *purchase.PaymentID
	}
	publish(p, key, ev)
}

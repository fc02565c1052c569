package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/Eursukkul/ticketing-service/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// PaymentHandler finalizes purchases from provider notifications.
type PaymentHandler interface {
	HandlePaymentNotification(ctx context.Context, paymentID string) error
}

// ErrDeliveriesClosed means the broker connection went away; the process should
// exit so it can be restarted with a fresh connection.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

type paymentNotification struct {
	PaymentID string `json:"paymentId"`
}

type MessageConsumer struct {
	events   repository.EventRepository
	payments PaymentHandler
}

func NewMessageConsumer(events repository.EventRepository, payments PaymentHandler) *MessageConsumer {
	return &MessageConsumer{events: events, payments: payments}
}

// Run handles deliveries until ctx is done. A closed channel is an error.
func (mc *MessageConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Message consumer stopped.")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			mc.handleMessage(ctx, msg)
		}
	}
}

func (mc *MessageConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	log := logrus.WithField("routing_key", msg.RoutingKey)

	switch {
	case strings.HasPrefix(msg.RoutingKey, "event."):
		mc.handleEvent(ctx, msg, log)
	case msg.RoutingKey == "payment.updated":
		mc.handlePayment(ctx, msg, log)
	default:
		log.Debug("ignoring message with unknown routing key")
		msg.Ack(false)
	}
}

func (mc *MessageConsumer) handleEvent(ctx context.Context, msg amqp.Delivery, log *logrus.Entry) {
	var event models.Event
	if err := json.Unmarshal(msg.Body, &event); err != nil || event.ID == 0 {
		log.WithError(err).Error("failed to decode event message")
		msg.Nack(false, false)
		return
	}

	if err := mc.events.Upsert(ctx, &event); err != nil {
		log.WithError(err).WithField("event_id", event.ID).Error("failed to upsert event")
		msg.Nack(false, true) // requeue
		return
	}

	log.WithFields(logrus.Fields{"event_id": event.ID, "name": event.Name}).Info("event synced")
	msg.Ack(false)
}

func (mc *MessageConsumer) handlePayment(ctx context.Context, msg amqp.Delivery, log *logrus.Entry) {
	var n paymentNotification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		log.WithError(err).Error("failed to decode payment notification")
		msg.Nack(false, false)
		return
	}
	log = log.WithField("payment_id", n.PaymentID)

	err := mc.payments.HandlePaymentNotification(ctx, n.PaymentID)
	switch {
	case err == nil:
		msg.Ack(false)
	case errors.Is(err, service.ErrInvalidPayment), errors.Is(err, service.ErrPurchaseNotFound):
		log.WithError(err).Warn("dropping payment notification")
		msg.Nack(false, false)
	default:
		log.WithError(err).Error("payment notification failed, requeueing")
		msg.Nack(false, true)
	}
}

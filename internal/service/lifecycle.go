package service

import (
	"context"
	"errors"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/monitoring"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// Lifecycle drives the per-event ticket type queue.
type Lifecycle interface {
	ActivateNext(ctx context.Context, eventID uint) (*models.TicketType, error)
	Close(ctx context.Context, eventID, ticketTypeID uint) (*CloseResult, error)
	Tick(ctx context.Context) error
	Run(ctx context.Context, interval time.Duration) error
}

type lifecycle struct {
	tx           repository.TxManager
	ticketTypes  repository.TicketTypeRepository
	reservations repository.ReservationRepository
	publisher    Publisher
	clock        Clock
}

func NewLifecycle(
	tx repository.TxManager,
	ticketTypes repository.TicketTypeRepository,
	reservations repository.ReservationRepository,
	publisher Publisher,
	clock Clock,
) Lifecycle {
	return &lifecycle{
		tx:           tx,
		ticketTypes:  ticketTypes,
		reservations: reservations,
		publisher:    publisher,
		clock:        orSystem(clock),
	}
}

func (l *lifecycle) ActivateNext(ctx context.Context, eventID uint) (*models.TicketType, error) {
	var (
		active  *models.TicketType
		changes []StatusChange
	)
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, l.ticketTypes, eventID)
		if err != nil {
			return err
		}
		cur, err := q.activateNext(ctx, l.clock.Now())
		if err != nil {
			return err
		}
		if cur != nil {
			copied := *cur
			active = &copied
		}
		changes = q.changes
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishStatusChanges(l.publisher, changes, l.clock.Now())
	return active, nil
}

// Close permanently closes a ticket type and rolls its remaining stock over. It is
// refused while holds on the type are live.
func (l *lifecycle) Close(ctx context.Context, eventID, ticketTypeID uint) (*CloseResult, error) {
	var (
		result  *CloseResult
		changes []StatusChange
	)
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, l.ticketTypes, eventID)
		if err != nil {
			return err
		}
		tt := q.find(ticketTypeID)
		if tt == nil {
			return ErrTicketTypeNotFound
		}
		if tt.Status == models.TicketTypeClosed {
			return ErrTicketTypeClosed
		}

		now := l.clock.Now()
		if err := l.ensureNoHolds(ctx, tt.ID, now); err != nil {
			return err
		}

		wasActive := tt.Status == models.TicketTypeActive
		result, err = q.closeAndRollOver(ctx, tt)
		if err != nil {
			return err
		}
		if wasActive {
			if _, err := q.activateNext(ctx, now); err != nil {
				return err
			}
		}
		changes = q.changes
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logClose(result)
	publishStatusChanges(l.publisher, changes, l.clock.Now())
	return result, nil
}

func (l *lifecycle) ensureNoHolds(ctx context.Context, ticketTypeID uint, now time.Time) error {
	holds, err := l.reservations.FindActiveByTicketType(ctx, ticketTypeID)
	if err != nil {
		return err
	}
	if len(holds) == 0 {
		return nil
	}
	latest := holds[0].ExpiresAt
	for _, h := range holds[1:] {
		if h.ExpiresAt.After(latest) {
			latest = h.ExpiresAt
		}
	}
	retry := latest.Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return &CloseBlockedError{ActiveReservations: len(holds), RetryAfter: retry.Round(time.Second)}
}

func (l *lifecycle) logClose(r *CloseResult) {
	fields := logrus.Fields{
		"event_id":       r.Closed.EventID,
		"ticket_type_id": r.Closed.ID,
		"remaining":      r.Remaining,
	}
	switch {
	case r.RolledOverTo != nil:
		fields["rolled_over_to"] = r.RolledOverTo.ID
		logrus.WithFields(fields).Info("ticket type closed, stock rolled over")
	case r.Forfeited:
		monitoring.RecordForfeited(r.Remaining)
		logrus.WithFields(fields).Warn("ticket type closed with no pending successor, stock forfeited")
	default:
		logrus.WithFields(fields).Info("ticket type closed")
	}
}

// Tick closes scheduled types whose window finished and activates the next type
// for every event that still has pending or active types.
func (l *lifecycle) Tick(ctx context.Context) error {
	eventIDs, err := l.ticketTypes.FindOpenEventIDs(ctx)
	if err != nil {
		return err
	}
	for _, eventID := range eventIDs {
		if err := l.tickEvent(ctx, eventID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.WithError(err).WithField("event_id", eventID).Error("lifecycle tick failed")
		}
	}
	return nil
}

func (l *lifecycle) tickEvent(ctx context.Context, eventID uint) error {
	var (
		closed  []*CloseResult
		changes []StatusChange
	)
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, l.ticketTypes, eventID)
		if err != nil {
			return err
		}
		now := l.clock.Now()
		for i := range q.types {
			tt := &q.types[i]
			if tt.Status != models.TicketTypePending && tt.Status != models.TicketTypeActive {
				continue
			}
			if !tt.WindowFinished(now) {
				continue
			}
			if err := l.ensureNoHolds(ctx, tt.ID, now); err != nil {
				var blocked *CloseBlockedError
				if errors.As(err, &blocked) {
					continue
				}
				return err
			}
			res, err := q.closeAndRollOver(ctx, tt)
			if err != nil {
				return err
			}
			closed = append(closed, res)
		}
		if cur := q.active(); cur != nil {
			if err := q.soldOutIfDrained(ctx, cur, l.reservations, now); err != nil {
				return err
			}
		}
		if _, err := q.activateNext(ctx, now); err != nil {
			return err
		}
		changes = q.changes
		return nil
	})
	if err != nil {
		return err
	}
	for _, r := range closed {
		l.logClose(r)
	}
	publishStatusChanges(l.publisher, changes, l.clock.Now())
	return nil
}

func (l *lifecycle) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval).Info("Starting ticket type scheduler...")
	for {
		if err := l.Tick(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("ticket type scheduler tick failed")
		}
		select {
		case <-ctx.Done():
			logrus.Info("Ticket type scheduler stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/monitoring"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultReservationTTL = 10 * time.Minute

// Ledger owns availableTickets of every ticket type. Each call runs in its own
// transaction, or joins the caller's when ctx already carries one.
type Ledger interface {
	TryReserve(ctx context.Context, ticketTypeID uint, userID string, quantity int) (*models.Reservation, error)
	Release(ctx context.Context, reservationID string) (bool, error)
	Expire(ctx context.Context, reservationID string) (bool, error)
	Confirm(ctx context.Context, reservationID string) (*ConfirmResult, error)
	Extend(ctx context.Context, reservationID string, until time.Time) error
}

type ConfirmResult struct {
	Reservation      models.Reservation
	TicketType       models.TicketType
	AlreadyConfirmed bool
	Changes          []StatusChange
}

type ledger struct {
	tx           repository.TxManager
	ticketTypes  repository.TicketTypeRepository
	reservations repository.ReservationRepository
	clock        Clock
	ttl          time.Duration
}

func NewLedger(
	tx repository.TxManager,
	ticketTypes repository.TicketTypeRepository,
	reservations repository.ReservationRepository,
	clock Clock,
	ttl time.Duration,
) Ledger {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &ledger{
		tx:           tx,
		ticketTypes:  ticketTypes,
		reservations: reservations,
		clock:        orSystem(clock),
		ttl:          ttl,
	}
}

func (l *ledger) TryReserve(ctx context.Context, ticketTypeID uint, userID string, quantity int) (*models.Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	tt, err := l.findTicketType(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}

	var reservation *models.Reservation
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, l.ticketTypes, tt.EventID)
		if err != nil {
			return err
		}
		locked := q.find(ticketTypeID)
		if locked == nil {
			return ErrTicketTypeNotFound
		}

		now := l.clock.Now()
		if !locked.OnSale(now) {
			return ErrTicketTypeNotActive
		}
		if locked.AvailableTickets < quantity {
			return ErrOutOfStock
		}

		locked.AvailableTickets -= quantity
		if err := q.save(ctx, locked); err != nil {
			return err
		}

		reservation = &models.Reservation{
			ID:           uuid.NewString(),
			TicketTypeID: ticketTypeID,
			UserID:       userID,
			Quantity:     quantity,
			State:        models.ReservationActive,
			CreatedAt:    now,
			ExpiresAt:    now.Add(l.ttl),
		}
		return l.reservations.Create(ctx, reservation)
	})

	switch {
	case errors.Is(err, ErrOutOfStock):
		monitoring.RecordReservationAttempt("out_of_stock")
	case errors.Is(err, ErrTicketTypeNotActive):
		monitoring.RecordReservationAttempt("not_active")
	case err == nil:
		monitoring.RecordReservationAttempt("reserved")
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": reservation.ID,
		"ticket_type_id": ticketTypeID,
		"quantity":       quantity,
		"expires_at":     reservation.ExpiresAt,
	}).Debug("tickets reserved")
	return reservation, nil
}

// Release returns the held stock. It reports false when the reservation had already
// left the active state.
func (l *ledger) Release(ctx context.Context, reservationID string) (bool, error) {
	return l.returnStock(ctx, reservationID, models.ReservationReleased)
}

// Expire is Release for holds that ran out of time.
func (l *ledger) Expire(ctx context.Context, reservationID string) (bool, error) {
	return l.returnStock(ctx, reservationID, models.ReservationExpired)
}

func (l *ledger) returnStock(ctx context.Context, reservationID string, target models.ReservationState) (bool, error) {
	res, err := l.findReservation(ctx, reservationID)
	if err != nil {
		return false, err
	}
	if res.IsTerminal() {
		return false, nil
	}
	tt, err := l.findTicketType(ctx, res.TicketTypeID)
	if err != nil {
		return false, err
	}

	changed := false
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, l.ticketTypes, tt.EventID)
		if err != nil {
			return err
		}
		cur, err := l.reservations.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if cur.IsTerminal() {
			return nil
		}
		cur.State = target
		if err := l.reservations.Save(ctx, cur); err != nil {
			return err
		}
		if locked := q.find(cur.TicketTypeID); locked != nil {
			locked.AvailableTickets += cur.Quantity
			if err := q.save(ctx, locked); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		monitoring.RecordReservationTransition(string(target))
	}
	return changed, nil
}

// Confirm turns the hold into a sale. A hold past its deadline is expired in the
// same transaction and the call fails with ErrReservationExpired.
func (l *ledger) Confirm(ctx context.Context, reservationID string) (*ConfirmResult, error) {
	res, err := l.findReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	tt, err := l.findTicketType(ctx, res.TicketTypeID)
	if err != nil {
		return nil, err
	}

	var (
		result  *ConfirmResult
		expired bool
		lapsed  bool
	)
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, l.ticketTypes, tt.EventID)
		if err != nil {
			return err
		}
		cur, err := l.reservations.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		locked := q.find(cur.TicketTypeID)
		if locked == nil {
			return ErrTicketTypeNotFound
		}

		switch cur.State {
		case models.ReservationConfirmed:
			result = &ConfirmResult{Reservation: *cur, TicketType: *locked, AlreadyConfirmed: true}
			return nil
		case models.ReservationExpired, models.ReservationReleased:
			expired = true
			return nil
		}

		now := l.clock.Now()
		if cur.ExpiredAt(now) {
			cur.State = models.ReservationExpired
			if err := l.reservations.Save(ctx, cur); err != nil {
				return err
			}
			locked.AvailableTickets += cur.Quantity
			expired, lapsed = true, true
			return q.save(ctx, locked)
		}

		cur.State = models.ReservationConfirmed
		if err := l.reservations.Save(ctx, cur); err != nil {
			return err
		}

		if err := q.soldOutIfDrained(ctx, locked, l.reservations, now); err != nil {
			return err
		}

		result = &ConfirmResult{Reservation: *cur, TicketType: *locked, Changes: q.changes}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lapsed {
		monitoring.RecordReservationTransition(string(models.ReservationExpired))
	}
	if expired {
		return nil, ErrReservationExpired
	}
	if !result.AlreadyConfirmed {
		monitoring.RecordReservationTransition(string(models.ReservationConfirmed))
	}
	return result, nil
}

// Extend pushes the deadline of an active hold forward. It never shortens it.
func (l *ledger) Extend(ctx context.Context, reservationID string, until time.Time) error {
	return l.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := l.reservations.LockByID(ctx, reservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		if cur.State != models.ReservationActive || cur.ExpiredAt(l.clock.Now()) {
			return ErrReservationExpired
		}
		if !until.After(cur.ExpiresAt) {
			return nil
		}
		cur.ExpiresAt = until
		return l.reservations.Save(ctx, cur)
	})
}

func (l *ledger) findTicketType(ctx context.Context, id uint) (*models.TicketType, error) {
	tt, err := l.ticketTypes.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTicketTypeNotFound
	}
	return tt, err
}

func (l *ledger) findReservation(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := l.reservations.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

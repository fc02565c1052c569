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

type ReservationManager interface {
	Get(ctx context.Context, userID, reservationID string) (*models.Reservation, error)
	Cancel(ctx context.Context, userID, reservationID string) error
	Expire(ctx context.Context, reservationID string) (bool, error)
	Sweep(ctx context.Context) (int, error)
	Run(ctx context.Context, interval time.Duration) error
}

type reservationManager struct {
	tx           repository.TxManager
	ledger       Ledger
	reservations repository.ReservationRepository
	checkouts    repository.CheckoutRepository
	purchases    repository.PurchaseRepository
	publisher    Publisher
	clock        Clock
	batchSize    int
}

func NewReservationManager(
	tx repository.TxManager,
	ledger Ledger,
	reservations repository.ReservationRepository,
	checkouts repository.CheckoutRepository,
	purchases repository.PurchaseRepository,
	publisher Publisher,
	clock Clock,
	batchSize int,
) ReservationManager {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &reservationManager{
		tx:           tx,
		ledger:       ledger,
		reservations: reservations,
		checkouts:    checkouts,
		purchases:    purchases,
		publisher:    publisher,
		clock:        orSystem(clock),
		batchSize:    batchSize,
	}
}

// Get returns the caller's reservation, expiring it first if its deadline passed.
func (m *reservationManager) Get(ctx context.Context, userID, reservationID string) (*models.Reservation, error) {
	res, err := m.owned(ctx, userID, reservationID)
	if err != nil {
		return nil, err
	}
	if res.State == models.ReservationActive && res.ExpiredAt(m.clock.Now()) {
		if _, err := m.Expire(ctx, reservationID); err != nil {
			return nil, err
		}
		return m.owned(ctx, userID, reservationID)
	}
	return res, nil
}

func (m *reservationManager) Cancel(ctx context.Context, userID, reservationID string) error {
	if _, err := m.owned(ctx, userID, reservationID); err != nil {
		return err
	}
	_, err := m.finish(ctx, reservationID, models.CheckoutCancelled)
	return err
}

func (m *reservationManager) Expire(ctx context.Context, reservationID string) (bool, error) {
	return m.finish(ctx, reservationID, models.CheckoutExpired)
}

// finish releases or expires the hold and closes out the checkout that owns it.
func (m *reservationManager) finish(ctx context.Context, reservationID string, outcome models.CheckoutState) (bool, error) {
	var (
		changed  bool
		rejected *models.Purchase
	)
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if outcome == models.CheckoutExpired {
			changed, err = m.ledger.Expire(ctx, reservationID)
		} else {
			changed, err = m.ledger.Release(ctx, reservationID)
		}
		if err != nil || !changed {
			return err
		}
		rejected, err = abandonCheckout(ctx, m.checkouts, m.purchases, reservationID, outcome)
		return err
	})
	if err != nil {
		return false, err
	}

	if changed {
		now := m.clock.Now()
		logrus.WithFields(logrus.Fields{
			"reservation_id": reservationID,
			"outcome":        outcome,
		}).Info("reservation returned to stock")
		if outcome == models.CheckoutExpired {
			publish(m.publisher, RoutingReservationExpired, ReservationEvent{ReservationID: reservationID, OccurredAt: now})
		}
		if rejected != nil {
			publishPurchase(m.publisher, rejected, now)
		}
	}
	return changed, nil
}

// Sweep expires one batch of holds whose deadline passed. Failures on individual
// holds are logged and left for the next sweep.
func (m *reservationManager) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	defer monitoring.ObserveSweep(started)

	due, err := m.reservations.FindExpiredActive(ctx, m.clock.Now(), m.batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, res := range due {
		changed, err := m.Expire(ctx, res.ID)
		if err != nil {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			logrus.WithError(err).WithField("reservation_id", res.ID).Error("failed to expire reservation")
			continue
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		logrus.WithField("count", expired).Info("expired reservations swept")
	}
	return expired, nil
}

func (m *reservationManager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval).Info("Starting reservation sweeper...")
	for {
		if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("reservation sweep failed")
		}
		select {
		case <-ctx.Done():
			logrus.Info("Reservation sweeper stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *reservationManager) owned(ctx context.Context, userID, reservationID string) (*models.Reservation, error) {
	res, err := m.reservations.FindByID(ctx, reservationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, ErrForbidden
	}
	return res, nil
}

// abandonCheckout moves the checkout owning reservationID to outcome and rejects its
// pending purchase. It returns the purchase it rejected, if any.
func abandonCheckout(
	ctx context.Context,
	checkouts repository.CheckoutRepository,
	purchases repository.PurchaseRepository,
	reservationID string,
	outcome models.CheckoutState,
) (*models.Purchase, error) {
	co, err := checkouts.FindByReservationID(ctx, reservationID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, err
	case co.IsOpen():
		co.State = outcome
		if err := checkouts.Save(ctx, co); err != nil {
			return nil, err
		}
	}

	p, err := purchases.FindByReservationID(ctx, reservationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus != models.PaymentPending {
		return nil, nil
	}
	p.PaymentStatus = models.PaymentRejected
	if err := purchases.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

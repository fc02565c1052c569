package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// TxManager runs fn in a transaction. Repositories called with the ctx handed to fn
// join that transaction; a nested WithTx joins the outer one.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TicketTypeRepository interface {
	Create(ctx context.Context, tt *models.TicketType) error
	Save(ctx context.Context, tt *models.TicketType) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*models.TicketType, error)
	FindByEventID(ctx context.Context, eventID uint) ([]models.TicketType, error)
	// LockByEventID row-locks every ticket type of the event, ordered by sort_order, id.
	LockByEventID(ctx context.Context, eventID uint) ([]models.TicketType, error)
	FindOpenEventIDs(ctx context.Context) ([]uint, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *models.Reservation) error
	Save(ctx context.Context, r *models.Reservation) error
	FindByID(ctx context.Context, id string) (*models.Reservation, error)
	LockByID(ctx context.Context, id string) (*models.Reservation, error)
	FindActiveByTicketType(ctx context.Context, ticketTypeID uint) ([]models.Reservation, error)
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type CheckoutRepository interface {
	Create(ctx context.Context, c *models.Checkout) error
	Save(ctx context.Context, c *models.Checkout) error
	FindByID(ctx context.Context, id string) (*models.Checkout, error)
	FindByReservationID(ctx context.Context, reservationID string) (*models.Checkout, error)
}

// TicketTypeSales aggregates approved purchases of one ticket type.
type TicketTypeSales struct {
	TicketTypeID uint
	Sold         int64
	Revenue      decimal.Decimal
}

type PurchaseRepository interface {
	Create(ctx context.Context, p *models.Purchase) error
	Save(ctx context.Context, p *models.Purchase) error
	FindByID(ctx context.Context, id uint) (*models.Purchase, error)
	FindByReservationID(ctx context.Context, reservationID string) (*models.Purchase, error)
	FindByUserID(ctx context.Context, userID string) ([]models.Purchase, error)
	FindRecentApproved(ctx context.Context, ticketTypeIDs []uint, limit int) ([]models.Purchase, error)
	SalesByTicketType(ctx context.Context, ticketTypeIDs []uint) ([]TicketTypeSales, error)
	CreateTickets(ctx context.Context, tickets []models.Ticket) error
	CountTicketsByTicketType(ctx context.Context, ticketTypeID uint) (int64, error)
	FindTicket(ctx context.Context, purchaseID, ticketID uint) (*models.Ticket, error)
}

type EventRepository interface {
	Upsert(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id uint) (*models.Event, error)
}

type txKey struct{}

type gormTxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

func (m *gormTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or db outside one.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

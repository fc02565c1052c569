package repository

import (
	"context"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"gorm.io/gorm"
)

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, p *models.Purchase) error {
	return conn(ctx, r.db).Omit("TicketType", "Tickets").Create(p).Error
}

func (r *purchaseRepository) Save(ctx context.Context, p *models.Purchase) error {
	return conn(ctx, r.db).Omit("TicketType", "Tickets").Save(p).Error
}

func (r *purchaseRepository) FindByID(ctx context.Context, id uint) (*models.Purchase, error) {
	var p models.Purchase
	err := conn(ctx, r.db).
		Preload("TicketType").
		Preload("Tickets", func(db *gorm.DB) *gorm.DB { return db.Order("number_in_purchase ASC") }).
		First(&p, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *purchaseRepository) FindByReservationID(ctx context.Context, reservationID string) (*models.Purchase, error) {
	var p models.Purchase
	if err := conn(ctx, r.db).Where("reservation_id = ?", reservationID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *purchaseRepository) FindByUserID(ctx context.Context, userID string) ([]models.Purchase, error) {
	var list []models.Purchase
	err := conn(ctx, r.db).
		Preload("TicketType").
		Preload("Tickets", func(db *gorm.DB) *gorm.DB { return db.Order("number_in_purchase ASC") }).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&list).Error
	return list, err
}

func (r *purchaseRepository) FindRecentApproved(ctx context.Context, ticketTypeIDs []uint, limit int) ([]models.Purchase, error) {
	var list []models.Purchase
	if len(ticketTypeIDs) == 0 {
		return list, nil
	}
	err := conn(ctx, r.db).
		Preload("TicketType").
		Where("ticket_type_id IN ? AND payment_status = ?", ticketTypeIDs, models.PaymentApproved).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *purchaseRepository) SalesByTicketType(ctx context.Context, ticketTypeIDs []uint) ([]TicketTypeSales, error) {
	var rows []TicketTypeSales
	if len(ticketTypeIDs) == 0 {
		return rows, nil
	}
	err := conn(ctx, r.db).
		Model(&models.Purchase{}).
		Select("ticket_type_id, COALESCE(SUM(ticket_quantity), 0) AS sold, COALESCE(SUM(total_price), 0) AS revenue").
		Where("ticket_type_id IN ? AND payment_status = ?", ticketTypeIDs, models.PaymentApproved).
		Group("ticket_type_id").
		Scan(&rows).Error
	return rows, err
}

func (r *purchaseRepository) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return conn(ctx, r.db).Create(&tickets).Error
}

func (r *purchaseRepository) CountTicketsByTicketType(ctx context.Context, ticketTypeID uint) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&models.Ticket{}).
		Where("ticket_type_id = ?", ticketTypeID).
		Count(&count).Error
	return count, err
}

func (r *purchaseRepository) FindTicket(ctx context.Context, purchaseID, ticketID uint) (*models.Ticket, error) {
	var t models.Ticket
	err := conn(ctx, r.db).
		Where("id = ? AND purchase_id = ?", ticketID, purchaseID).
		First(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

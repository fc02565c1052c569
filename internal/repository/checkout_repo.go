package repository

import (
	"context"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"gorm.io/gorm"
)

type checkoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) CheckoutRepository {
	return &checkoutRepository{db: db}
}

func (r *checkoutRepository) Create(ctx context.Context, c *models.Checkout) error {
	return conn(ctx, r.db).Create(c).Error
}

func (r *checkoutRepository) Save(ctx context.Context, c *models.Checkout) error {
	return conn(ctx, r.db).Save(c).Error
}

func (r *checkoutRepository) FindByID(ctx context.Context, id string) (*models.Checkout, error) {
	var c models.Checkout
	if err := conn(ctx, r.db).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *checkoutRepository) FindByReservationID(ctx context.Context, reservationID string) (*models.Checkout, error) {
	var c models.Checkout
	if err := conn(ctx, r.db).Where("reservation_id = ?", reservationID).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

package repository

import (
	"context"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	return conn(ctx, r.db).Create(res).Error
}

func (r *reservationRepository) Save(ctx context.Context, res *models.Reservation) error {
	return conn(ctx, r.db).Save(res).Error
}

func (r *reservationRepository) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	var res models.Reservation
	if err := conn(ctx, r.db).Where("id = ?", id).First(&res).Error; err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

func (r *reservationRepository) LockByID(ctx context.Context, id string) (*models.Reservation, error) {
	var res models.Reservation
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&res).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

func (r *reservationRepository) FindActiveByTicketType(ctx context.Context, ticketTypeID uint) ([]models.Reservation, error) {
	var list []models.Reservation
	err := conn(ctx, r.db).
		Where("ticket_type_id = ? AND state = ?", ticketTypeID, models.ReservationActive).
		Order("expires_at ASC").
		Find(&list).Error
	return list, err
}

// FindExpiredActive returns active holds whose deadline passed, oldest first.
func (r *reservationRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var list []models.Reservation
	err := conn(ctx, r.db).
		Where("state = ? AND expires_at <= ?", models.ReservationActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

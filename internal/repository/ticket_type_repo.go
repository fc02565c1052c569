package repository

import (
	"context"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ticketTypeRepository struct {
	db *gorm.DB
}

func NewTicketTypeRepository(db *gorm.DB) TicketTypeRepository {
	return &ticketTypeRepository{db: db}
}

func (r *ticketTypeRepository) Create(ctx context.Context, tt *models.TicketType) error {
	return conn(ctx, r.db).Create(tt).Error
}

func (r *ticketTypeRepository) Save(ctx context.Context, tt *models.TicketType) error {
	return conn(ctx, r.db).Save(tt).Error
}

func (r *ticketTypeRepository) Delete(ctx context.Context, id uint) error {
	res := conn(ctx, r.db).Delete(&models.TicketType{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketTypeRepository) FindByID(ctx context.Context, id uint) (*models.TicketType, error) {
	var tt models.TicketType
	if err := conn(ctx, r.db).First(&tt, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tt, nil
}

func (r *ticketTypeRepository) FindByEventID(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	var types []models.TicketType
	err := conn(ctx, r.db).
		Where("event_id = ?", eventID).
		Order("sort_order ASC, id ASC").
		Find(&types).Error
	return types, err
}

// LockByEventID acquires row-level locks on the whole queue of an event. Every
// mutation of availableTickets or status goes through here first, always in the
// same order, so concurrent writers serialize without deadlocking.
func (r *ticketTypeRepository) LockByEventID(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	var types []models.TicketType
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_id = ?", eventID).
		Order("sort_order ASC, id ASC").
		Find(&types).Error
	return types, err
}

func (r *ticketTypeRepository) FindOpenEventIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).
		Model(&models.TicketType{}).
		Where("status IN ?", []models.TicketTypeStatus{models.TicketTypePending, models.TicketTypeActive}).
		Distinct().
		Order("event_id ASC").
		Pluck("event_id", &ids).Error
	return ids, err
}

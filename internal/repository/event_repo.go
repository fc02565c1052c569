package repository

import (
	"context"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Upsert inserts the event or refreshes it when the catalog id already exists.
func (r *eventRepository) Upsert(ctx context.Context, event *models.Event) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "starts_at", "updated_at"}),
	}).Create(event).Error
}

func (r *eventRepository) FindByID(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	if err := conn(ctx, r.db).First(&event, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &event, nil
}

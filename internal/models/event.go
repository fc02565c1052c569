package models

import "time"

// Event is the local read-only copy of an event published by the catalog service.
type Event struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"not null" json:"name"`
	StartsAt  *time.Time `json:"startsAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

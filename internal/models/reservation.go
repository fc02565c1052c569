package models

import "time"

type ReservationState string

const (
	ReservationActive    ReservationState = "active"
	ReservationConfirmed ReservationState = "confirmed"
	ReservationExpired   ReservationState = "expired"
	ReservationReleased  ReservationState = "released"
)

type Reservation struct {
	ID           string           `gorm:"type:uuid;primaryKey" json:"id"`
	TicketTypeID uint             `gorm:"not null;index" json:"ticketTypeId"`
	UserID       string           `gorm:"not null;index" json:"userId"`
	Quantity     int              `gorm:"not null" json:"quantity"`
	State        ReservationState `gorm:"type:varchar(20);not null;default:'active';index:idx_reservation_sweep,priority:1" json:"state"`
	ExpiresAt    time.Time        `gorm:"not null;index:idx_reservation_sweep,priority:2" json:"expiresAt"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (r *Reservation) IsTerminal() bool {
	return r.State != ReservationActive
}

// ExpiredAt reports whether the hold is past its deadline at now.
func (r *Reservation) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

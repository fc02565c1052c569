package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketTypeStatus string

const (
	TicketTypePending TicketTypeStatus = "pending"
	TicketTypeActive  TicketTypeStatus = "active"
	TicketTypeSoldOut TicketTypeStatus = "sold_out"
	TicketTypeClosed  TicketTypeStatus = "closed"
)

type SaleMode string

const (
	SaleModeManual    SaleMode = "manual"
	SaleModeScheduled SaleMode = "scheduled"
)

type TicketType struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	EventID             uint             `gorm:"not null;index:idx_ticket_type_queue,priority:1" json:"eventId"`
	Name                string           `gorm:"not null" json:"ticketTypeName"`
	Price               decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"price"`
	MaxQuantity         int              `gorm:"not null" json:"maxQuantity"`
	AvailableTickets    int              `gorm:"not null;check:available_tickets >= 0" json:"availableTickets"`
	SortOrder           int              `gorm:"not null;index:idx_ticket_type_queue,priority:2" json:"sortOrder"`
	Status              TicketTypeStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	SaleMode            SaleMode         `gorm:"type:varchar(20);not null;default:'manual'" json:"saleMode"`
	BeginDatetime       *time.Time       `json:"beginDatetime,omitempty"`
	FinishDatetime      *time.Time       `json:"finishDatetime,omitempty"`
	IsManuallyActivated bool             `gorm:"not null;default:false" json:"isManuallyActivated"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// InSaleWindow reports whether now falls inside [BeginDatetime, FinishDatetime).
func (t *TicketType) InSaleWindow(now time.Time) bool {
	if t.BeginDatetime == nil || t.FinishDatetime == nil {
		return false
	}
	return !now.Before(*t.BeginDatetime) && now.Before(*t.FinishDatetime)
}

// WindowFinished reports whether a scheduled type's sale window is over.
func (t *TicketType) WindowFinished(now time.Time) bool {
	return t.SaleMode == SaleModeScheduled && t.FinishDatetime != nil && !now.Before(*t.FinishDatetime)
}

// CanActivate reports whether a pending type may become the event's active type.
func (t *TicketType) CanActivate(now time.Time) bool {
	if t.Status != TicketTypePending {
		return false
	}
	switch t.SaleMode {
	case SaleModeScheduled:
		return t.InSaleWindow(now)
	case SaleModeManual:
		return t.IsManuallyActivated
	default:
		return false
	}
}

// OnSale reports whether reservations may be taken against this type right now.
func (t *TicketType) OnSale(now time.Time) bool {
	if t.Status != TicketTypeActive {
		return false
	}
	if t.SaleMode == SaleModeScheduled {
		return t.InSaleWindow(now)
	}
	return true
}

// Committed is the number of tickets sold or currently held.
func (t *TicketType) Committed() int {
	return t.MaxQuantity - t.AvailableTickets
}

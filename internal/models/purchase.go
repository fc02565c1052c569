package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentApproved PaymentStatus = "Approved"
	PaymentRejected PaymentStatus = "Rejected"
)

type Purchase struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          string          `gorm:"not null;index" json:"userId"`
	TicketTypeID    uint            `gorm:"not null;index" json:"ticketTypeId"`
	ReservationID   string          `gorm:"type:uuid;not null;uniqueIndex" json:"reservationId"`
	TicketQuantity  int             `gorm:"not null" json:"ticketQuantity"`
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(20);not null;default:'Pending'" json:"paymentStatus"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unitPrice"`
	DiscountApplied decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discountApplied"`
	ServiceFee      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"serviceFee"`
	TotalPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"totalPrice"`
	PaymentID       *string         `gorm:"index" json:"paymentId,omitempty"`
	AttendeeName    string          `json:"attendeeName"`
	AttendeeSurname string          `json:"attendeeSurname"`
	AttendeeEmail   string          `json:"attendeeEmail"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`

	TicketType *TicketType `gorm:"foreignKey:TicketTypeID" json:"ticketType,omitempty"`
	Tickets    []Ticket    `gorm:"foreignKey:PurchaseID" json:"tickets,omitempty"`
}

func (p *Purchase) IsFinal() bool {
	return p.PaymentStatus != PaymentPending
}

type Ticket struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	PurchaseID         uint      `gorm:"not null;index" json:"purchaseId"`
	TicketTypeID       uint      `gorm:"not null;index" json:"ticketTypeId"`
	QRCode             string    `gorm:"not null;uniqueIndex" json:"qrCode"`
	NumberInPurchase   int       `gorm:"not null" json:"numberInPurchase"`
	NumberInTicketType int       `gorm:"not null" json:"numberInTicketType"`
	CreatedAt          time.Time `json:"createdAt"`
}

// User is the authenticated caller as described by the identity token.
type User struct {
	ID      string
	Name    string
	Surname string
	Email   string
	Role    string
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

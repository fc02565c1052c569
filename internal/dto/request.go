package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreatePurchaseRequest struct {
	TicketTypeID   uint `json:"ticketTypeId"`
	TicketQuantity int  `json:"ticketQuantity"`
}

type CreatePreferenceRequest struct {
	ID uint `json:"id"`
}

type SelectionRequest struct {
	TicketTypeID   uint `json:"ticketTypeId"`
	AmountSelected int  `json:"amountSelected"`
}

type StartCheckoutRequest struct {
	Selections []SelectionRequest `json:"selections"`
}

type AttendeeRequest struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}

type CreateTicketTypeRequest struct {
	Name                string          `json:"ticketTypeName"`
	Price               decimal.Decimal `json:"price"`
	MaxQuantity         int             `json:"maxQuantity"`
	SaleMode            string          `json:"saleMode"`
	BeginDatetime       *time.Time      `json:"beginDatetime"`
	FinishDatetime      *time.Time      `json:"finishDatetime"`
	IsManuallyActivated bool            `json:"isManuallyActivated"`
}

// UpdateTicketTypeRequest is a partial update; absent fields stay unchanged.
type UpdateTicketTypeRequest struct {
	Name                *string          `json:"ticketTypeName"`
	Price               *decimal.Decimal `json:"price"`
	MaxQuantity         *int             `json:"maxQuantity"`
	SaleMode            *string          `json:"saleMode"`
	BeginDatetime       *time.Time       `json:"beginDatetime"`
	FinishDatetime      *time.Time       `json:"finishDatetime"`
	IsManuallyActivated *bool            `json:"isManuallyActivated"`
}

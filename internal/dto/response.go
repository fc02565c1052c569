package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"github.com/shopspring/decimal"
)

// APIResponse is the envelope the frontend expects on most endpoints.
type APIResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type TicketTypeResponse struct {
	ID                  uint                    `json:"id"`
	EventID             uint                    `json:"event"`
	Name                string                  `json:"ticketTypeName"`
	Price               decimal.Decimal         `json:"price"`
	MaxQuantity         int                     `json:"maxQuantity"`
	AvailableTickets    int                     `json:"availableTickets"`
	SortOrder           int                     `json:"sortOrder"`
	Status              models.TicketTypeStatus `json:"status"`
	SaleMode            models.SaleMode         `json:"saleMode"`
	BeginDatetime       *time.Time              `json:"beginDatetime"`
	FinishDatetime      *time.Time              `json:"finishDatetime"`
	IsManuallyActivated bool                    `json:"isManuallyActivated"`
}

type TicketResponse struct {
	ID                 uint   `json:"id"`
	QRCode             string `json:"qrCode"`
	NumberInPurchase   int    `json:"numberInPurchase"`
	NumberInTicketType int    `json:"numberInTicketType"`
	PurchaseID         uint   `json:"purchase"`
}

type PurchaseResponse struct {
	ID              uint                 `json:"id"`
	TicketNumbers   int                  `json:"ticketNumbers"`
	PaymentStatus   models.PaymentStatus `json:"paymentStatus"`
	UnitPrice       decimal.Decimal      `json:"unitPrice"`
	DiscountApplied decimal.Decimal      `json:"discountApplied"`
	ServiceFee      decimal.Decimal      `json:"serviceFee"`
	TotalPrice      decimal.Decimal      `json:"totalPrice"`
	AttendeeName    string               `json:"attendeeName,omitempty"`
	AttendeeSurname string               `json:"attendeeSurname,omitempty"`
	AttendeeEmail   string               `json:"attendeeEmail,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	TicketType      *TicketTypeResponse  `json:"ticketType,omitempty"`
	Tickets         []TicketResponse     `json:"ticket"`
}

type CheckoutResponse struct {
	ID            string               `json:"id"`
	State         models.CheckoutState `json:"state"`
	EventID       uint                 `json:"eventId"`
	TicketTypeID  uint                 `json:"ticketTypeId"`
	ReservationID string               `json:"reservationId"`
	PurchaseID    *uint                `json:"purchaseId,omitempty"`
	ExpiresAt     *time.Time           `json:"expiresAt,omitempty"`
}

type PreferenceResponse struct {
	InitPoint string `json:"init_point"`
}

type VerifyResponse struct {
	Success    bool                 `json:"success"`
	PurchaseID uint                 `json:"purchaseId"`
	Status     models.PaymentStatus `json:"paymentStatus"`
	Reason     string               `json:"reason,omitempty"`
}

type CloseResponse struct {
	Closed       TicketTypeResponse  `json:"closed"`
	RolledOverTo *TicketTypeResponse `json:"rolledOverTo,omitempty"`
	Remaining    int                 `json:"remaining"`
	Forfeited    bool                `json:"forfeited"`
}

type TicketTypeStatsResponse struct {
	ID               uint                    `json:"id"`
	Name             string                  `json:"name"`
	Status           models.TicketTypeStatus `json:"status"`
	Sold             int64                   `json:"sold"`
	Capacity         int                     `json:"capacity"`
	AvailableTickets int                     `json:"availableTickets"`
	PercentageSold   float64                 `json:"percentageSold"`
	Revenue          decimal.Decimal         `json:"revenue"`
	Price            decimal.Decimal         `json:"price"`
}

type StatsSummaryResponse struct {
	TotalTicketsSold   int64           `json:"totalTicketsSold"`
	TotalCapacity      int             `json:"totalCapacity"`
	PercentageSold     float64         `json:"percentageSold"`
	TotalRevenue       decimal.Decimal `json:"totalRevenue"`
	AverageTicketPrice decimal.Decimal `json:"averageTicketPrice"`
}

type RecentTransactionResponse struct {
	ID             uint            `json:"id"`
	UserName       string          `json:"userName"`
	UserInitials   string          `json:"userInitials"`
	TicketTypeName string          `json:"ticketTypeName"`
	Quantity       int             `json:"quantity"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type LastSaleResponse struct {
	UserName       string    `json:"userName"`
	TicketTypeName string    `json:"ticketTypeName"`
	TimeAgo        string    `json:"timeAgo"`
	CreatedAt      time.Time `json:"createdAt"`
}

type EventStatsResponse struct {
	EventID            uint                        `json:"eventId"`
	EventName          string                      `json:"eventName"`
	EventStatus        string                      `json:"eventStatus"`
	SaleStatus         string                      `json:"saleStatus"`
	LastUpdated        time.Time                   `json:"lastUpdated"`
	Summary            StatsSummaryResponse        `json:"summary"`
	ByTicketType       []TicketTypeStatsResponse   `json:"byTicketType"`
	RecentTransactions []RecentTransactionResponse `json:"recentTransactions"`
	LastSale           *LastSaleResponse           `json:"lastSale"`
}

func ToTicketTypeResponse(tt *models.TicketType) TicketTypeResponse {
	return TicketTypeResponse{
		ID:                  tt.ID,
		EventID:             tt.EventID,
		Name:                tt.Name,
		Price:               tt.Price,
		MaxQuantity:         tt.MaxQuantity,
		AvailableTickets:    tt.AvailableTickets,
		SortOrder:           tt.SortOrder,
		Status:              tt.Status,
		SaleMode:            tt.SaleMode,
		BeginDatetime:       tt.BeginDatetime,
		FinishDatetime:      tt.FinishDatetime,
		IsManuallyActivated: tt.IsManuallyActivated,
	}
}

func ToTicketTypeResponses(types []models.TicketType) []TicketTypeResponse {
	resp := make([]TicketTypeResponse, len(types))
	for i := range types {
		resp[i] = ToTicketTypeResponse(&types[i])
	}
	return resp
}

func ToTicketResponse(t *models.Ticket) TicketResponse {
	return TicketResponse{
		ID:                 t.ID,
		QRCode:             t.QRCode,
		NumberInPurchase:   t.NumberInPurchase,
		NumberInTicketType: t.NumberInTicketType,
		PurchaseID:         t.PurchaseID,
	}
}

func ToPurchaseResponse(p *models.Purchase) PurchaseResponse {
	resp := PurchaseResponse{
		ID:              p.ID,
		TicketNumbers:   p.TicketQuantity,
		PaymentStatus:   p.PaymentStatus,
		UnitPrice:       p.UnitPrice,
		DiscountApplied: p.DiscountApplied,
		ServiceFee:      p.ServiceFee,
		TotalPrice:      p.TotalPrice,
		AttendeeName:    p.AttendeeName,
		AttendeeSurname: p.AttendeeSurname,
		AttendeeEmail:   p.AttendeeEmail,
		CreatedAt:       p.CreatedAt,
		Tickets:         make([]TicketResponse, len(p.Tickets)),
	}
	if p.TicketType != nil {
		tt := ToTicketTypeResponse(p.TicketType)
		resp.TicketType = &tt
	}
	for i := range p.Tickets {
		resp.Tickets[i] = ToTicketResponse(&p.Tickets[i])
	}
	return resp
}

func ToPurchaseResponses(purchases []models.Purchase) []PurchaseResponse {
	resp := make([]PurchaseResponse, len(purchases))
	for i := range purchases {
		resp[i] = ToPurchaseResponse(&purchases[i])
	}
	return resp
}

func ToCheckoutResponse(c *models.Checkout) CheckoutResponse {
	return CheckoutResponse{
		ID:            c.ID,
		State:         c.State,
		EventID:       c.EventID,
		TicketTypeID:  c.TicketTypeID,
		ReservationID: c.ReservationID,
		PurchaseID:    c.PurchaseID,
		ExpiresAt:     c.ExpiresAt,
	}
}

func ToVerifyResponse(r *service.VerifyResult) VerifyResponse {
	return VerifyResponse{
		Success:    r.Success,
		PurchaseID: r.PurchaseID,
		Status:     r.Status,
		Reason:     r.Reason,
	}
}

func ToCloseResponse(r *service.CloseResult) CloseResponse {
	resp := CloseResponse{
		Closed:    ToTicketTypeResponse(&r.Closed),
		Remaining: r.Remaining,
		Forfeited: r.Forfeited,
	}
	if r.RolledOverTo != nil {
		next := ToTicketTypeResponse(r.RolledOverTo)
		resp.RolledOverTo = &next
	}
	return resp
}

// ToEventStatsResponse shapes stats for the admin dashboard. Buyer names come from
// the attendee data recorded on each purchase.
func ToEventStatsResponse(s *service.EventStats, now time.Time) EventStatsResponse {
	resp := EventStatsResponse{
		EventID:            s.EventID,
		EventName:          s.EventName,
		EventStatus:        eventStatus(s.EventStartsAt, now),
		SaleStatus:         "inactive",
		LastUpdated:        now,
		ByTicketType:       make([]TicketTypeStatsResponse, len(s.ByTicketType)),
		RecentTransactions: make([]RecentTransactionResponse, len(s.RecentTransactions)),
		Summary: StatsSummaryResponse{
			TotalTicketsSold:   s.Summary.TotalSold,
			TotalCapacity:      s.Summary.TotalCapacity,
			PercentageSold:     s.Summary.PercentageSold,
			TotalRevenue:       s.Summary.TotalRevenue,
			AverageTicketPrice: decimal.Zero,
		},
	}
	if s.Summary.TotalSold > 0 {
		resp.Summary.AverageTicketPrice = s.Summary.TotalRevenue.Div(decimal.NewFromInt(s.Summary.TotalSold)).Round(2)
	}

	for i, tt := range s.ByTicketType {
		if tt.Status == models.TicketTypeActive {
			resp.SaleStatus = "active"
		}
		resp.ByTicketType[i] = TicketTypeStatsResponse{
			ID:               tt.TicketTypeID,
			Name:             tt.Name,
			Status:           tt.Status,
			Sold:             tt.Sold,
			Capacity:         tt.Capacity,
			AvailableTickets: tt.AvailableTickets,
			PercentageSold:   tt.PercentageSold,
			Revenue:          tt.Revenue,
			Price:            tt.Price,
		}
	}

	for i, p := range s.RecentTransactions {
		resp.RecentTransactions[i] = RecentTransactionResponse{
			ID:             p.ID,
			UserName:       strings.TrimSpace(p.AttendeeName + " " + p.AttendeeSurname),
			UserInitials:   initials(p.AttendeeName, p.AttendeeSurname),
			TicketTypeName: ticketTypeName(&p),
			Quantity:       p.TicketQuantity,
			TotalPrice:     p.TotalPrice,
			CreatedAt:      p.UpdatedAt,
		}
	}
	if len(s.RecentTransactions) > 0 {
		first := resp.RecentTransactions[0]
		resp.LastSale = &LastSaleResponse{
			UserName:       first.UserName,
			TicketTypeName: first.TicketTypeName,
			TimeAgo:        timeAgo(first.CreatedAt, now),
			CreatedAt:      first.CreatedAt,
		}
	}
	return resp
}

// eventRunTime is how long an event counts as running after it starts; events
// carry no end time.
const eventRunTime = 24 * time.Hour

// eventStatus is "upcoming" until the event starts, "active" while it runs and
// "past" afterwards. Events without a start time are upcoming.
func eventStatus(startsAt *time.Time, now time.Time) string {
	switch {
	case startsAt == nil || now.Before(*startsAt):
		return "upcoming"
	case now.Before(startsAt.Add(eventRunTime)):
		return "active"
	default:
		return "past"
	}
}

// timeAgo renders the age of t in its largest whole unit, e.g. "5m ago".
func timeAgo(t, now time.Time) string {
	secs := int64(now.Sub(t) / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	case secs < 30*86400:
		return fmt.Sprintf("%dd ago", secs/86400)
	default:
		return fmt.Sprintf("%dmo ago", secs/(30*86400))
	}
}

func initials(name, surname string) string {
	var b strings.Builder
	for _, part := range []string{name, surname} {
		if r := []rune(strings.TrimSpace(part)); len(r) > 0 {
			b.WriteString(strings.ToUpper(string(r[0])))
		}
	}
	return b.String()
}

func ticketTypeName(p *models.Purchase) string {
	if p.TicketType == nil {
		return ""
	}
	return p.TicketType.Name
}

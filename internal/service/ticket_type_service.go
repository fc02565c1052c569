package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/shopspring/decimal"
)

type TicketTypeInput struct {
	Name                string
	Price               decimal.Decimal
	MaxQuantity         int
	SaleMode            models.SaleMode
	BeginDatetime       *time.Time
	FinishDatetime      *time.Time
	IsManuallyActivated bool
}

// TicketTypeUpdate carries the fields to change; nil means unchanged.
type TicketTypeUpdate struct {
	Name                *string
	Price               *decimal.Decimal
	MaxQuantity         *int
	SaleMode            *models.SaleMode
	BeginDatetime       *time.Time
	FinishDatetime      *time.Time
	IsManuallyActivated *bool
}

type TicketTypeStats struct {
	TicketTypeID     uint
	Name             string
	Status           models.TicketTypeStatus
	Price            decimal.Decimal
	Sold             int64
	Capacity         int
	AvailableTickets int
	PercentageSold   float64
	Revenue          decimal.Decimal
}

type StatsSummary struct {
	TotalSold      int64
	TotalCapacity  int
	TotalRevenue   decimal.Decimal
	PercentageSold float64
}

type EventStats struct {
	EventID            uint
	EventName          string
	EventStartsAt      *time.Time
	Summary            StatsSummary
	ByTicketType       []TicketTypeStats
	RecentTransactions []models.Purchase
	LastSale           *time.Time
}

type TicketTypeService interface {
	List(ctx context.Context, eventID uint) ([]models.TicketType, error)
	Get(ctx context.Context, eventID, id uint) (*models.TicketType, error)
	Create(ctx context.Context, eventID uint, in TicketTypeInput) (*models.TicketType, error)
	Update(ctx context.Context, eventID, id uint, in TicketTypeUpdate) (*models.TicketType, error)
	Delete(ctx context.Context, eventID, id uint) error
	Close(ctx context.Context, eventID, id uint) (*CloseResult, error)
	Stats(ctx context.Context, eventID uint, recentLimit int) (*EventStats, error)
}

type ticketTypeService struct {
	tx           repository.TxManager
	ticketTypes  repository.TicketTypeRepository
	reservations repository.ReservationRepository
	purchases    repository.PurchaseRepository
	events       repository.EventRepository
	lifecycle    Lifecycle
	publisher    Publisher
	clock        Clock
}

func NewTicketTypeService(
	tx repository.TxManager,
	ticketTypes repository.TicketTypeRepository,
	reservations repository.ReservationRepository,
	purchases repository.PurchaseRepository,
	events repository.EventRepository,
	lifecycle Lifecycle,
	publisher Publisher,
	clock Clock,
) TicketTypeService {
	return &ticketTypeService{
		tx:           tx,
		ticketTypes:  ticketTypes,
		reservations: reservations,
		purchases:    purchases,
		events:       events,
		lifecycle:    lifecycle,
		publisher:    publisher,
		clock:        orSystem(clock),
	}
}

func (s *ticketTypeService) List(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	return s.ticketTypes.FindByEventID(ctx, eventID)
}

func (s *ticketTypeService) Get(ctx context.Context, eventID, id uint) (*models.TicketType, error) {
	tt, err := s.ticketTypes.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && tt.EventID != eventID) {
		return nil, ErrTicketTypeNotFound
	}
	return tt, err
}

func (s *ticketTypeService) Create(ctx context.Context, eventID uint, in TicketTypeInput) (*models.TicketType, error) {
	tt := &models.TicketType{
		EventID:             eventID,
		Name:                strings.TrimSpace(in.Name),
		Price:               in.Price,
		MaxQuantity:         in.MaxQuantity,
		AvailableTickets:    in.MaxQuantity,
		Status:              models.TicketTypePending,
		SaleMode:            in.SaleMode,
		BeginDatetime:       in.BeginDatetime,
		FinishDatetime:      in.FinishDatetime,
		IsManuallyActivated: in.IsManuallyActivated,
	}
	if tt.SaleMode == "" {
		tt.SaleMode = models.SaleModeManual
	}
	if err := validateTicketType(tt); err != nil {
		return nil, err
	}

	var changes []StatusChange
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, s.ticketTypes, eventID)
		if err != nil {
			return err
		}
		tt.SortOrder = 1
		if n := len(q.types); n > 0 {
			tt.SortOrder = q.types[n-1].SortOrder + 1
		}
		if err := s.ticketTypes.Create(ctx, tt); err != nil {
			return err
		}
		q.types = append(q.types, *tt)
		if _, err := q.activateNext(ctx, s.clock.Now()); err != nil {
			return err
		}
		*tt = *q.find(tt.ID)
		changes = q.changes
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishStatusChanges(s.publisher, changes, s.clock.Now())
	return tt, nil
}

func (s *ticketTypeService) Update(ctx context.Context, eventID, id uint, in TicketTypeUpdate) (*models.TicketType, error) {
	var (
		updated models.TicketType
		changes []StatusChange
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, s.ticketTypes, eventID)
		if err != nil {
			return err
		}
		tt := q.find(id)
		if tt == nil {
			return ErrTicketTypeNotFound
		}
		if tt.Status == models.TicketTypeClosed {
			return ErrTicketTypeClosed
		}

		next := *tt
		applyUpdate(&next, in)
		if in.MaxQuantity != nil && *in.MaxQuantity != tt.MaxQuantity {
			if tt.Status == models.TicketTypeSoldOut {
				return fmt.Errorf("%w: a sold out ticket type cannot be resized", ErrInvalidTicketType)
			}
			committed := tt.Committed()
			if *in.MaxQuantity < committed {
				return fmt.Errorf("%w: maxQuantity below the %d tickets already sold or held", ErrInvalidTicketType, committed)
			}
			next.AvailableTickets = *in.MaxQuantity - committed
		}
		if err := validateTicketType(&next); err != nil {
			return err
		}

		*tt = next
		if err := q.save(ctx, tt); err != nil {
			return err
		}
		now := s.clock.Now()
		// Shrinking to the committed amount leaves nothing to sell.
		if err := q.soldOutIfDrained(ctx, tt, s.reservations, now); err != nil {
			return err
		}
		if _, err := q.activateNext(ctx, now); err != nil {
			return err
		}
		updated = *q.find(id)
		changes = q.changes
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishStatusChanges(s.publisher, changes, s.clock.Now())
	return &updated, nil
}

func applyUpdate(tt *models.TicketType, in TicketTypeUpdate) {
	if in.Name != nil {
		tt.Name = strings.TrimSpace(*in.Name)
	}
	if in.Price != nil {
		tt.Price = *in.Price
	}
	if in.MaxQuantity != nil {
		tt.MaxQuantity = *in.MaxQuantity
	}
	if in.SaleMode != nil {
		tt.SaleMode = *in.SaleMode
	}
	if in.BeginDatetime != nil {
		tt.BeginDatetime = in.BeginDatetime
	}
	if in.FinishDatetime != nil {
		tt.FinishDatetime = in.FinishDatetime
	}
	if in.IsManuallyActivated != nil {
		tt.IsManuallyActivated = *in.IsManuallyActivated
	}
}

func validateTicketType(tt *models.TicketType) error {
	switch {
	case tt.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTicketType)
	case tt.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidTicketType)
	case tt.MaxQuantity <= 0:
		return fmt.Errorf("%w: maxQuantity must be greater than 0", ErrInvalidTicketType)
	case tt.AvailableTickets < 0 || tt.AvailableTickets > tt.MaxQuantity:
		return fmt.Errorf("%w: availableTickets out of range", ErrInvalidTicketType)
	}
	switch tt.SaleMode {
	case models.SaleModeManual:
	case models.SaleModeScheduled:
		if tt.BeginDatetime == nil || tt.FinishDatetime == nil {
			return fmt.Errorf("%w: scheduled sale needs beginDatetime and finishDatetime", ErrInvalidTicketType)
		}
		if !tt.FinishDatetime.After(*tt.BeginDatetime) {
			return fmt.Errorf("%w: finishDatetime must be after beginDatetime", ErrInvalidTicketType)
		}
	default:
		return fmt.Errorf("%w: unknown saleMode %q", ErrInvalidTicketType, tt.SaleMode)
	}
	return nil
}

// Delete removes a pending ticket type that never sold or held anything.
func (s *ticketTypeService) Delete(ctx context.Context, eventID, id uint) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := loadQueue(ctx, s.ticketTypes, eventID)
		if err != nil {
			return err
		}
		tt := q.find(id)
		if tt == nil {
			return ErrTicketTypeNotFound
		}
		if tt.Status != models.TicketTypePending || tt.Committed() != 0 {
			return ErrTicketTypeInUse
		}
		return s.ticketTypes.Delete(ctx, id)
	})
}

func (s *ticketTypeService) Close(ctx context.Context, eventID, id uint) (*CloseResult, error) {
	return s.lifecycle.Close(ctx, eventID, id)
}

func (s *ticketTypeService) Stats(ctx context.Context, eventID uint, recentLimit int) (*EventStats, error) {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	types, err := s.ticketTypes.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, len(types))
	for i, tt := range types {
		ids[i] = tt.ID
	}
	sales, err := s.purchases.SalesByTicketType(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]repository.TicketTypeSales, len(sales))
	for _, row := range sales {
		byID[row.TicketTypeID] = row
	}

	stats := &EventStats{EventID: eventID, Summary: StatsSummary{TotalRevenue: decimal.Zero}}
	if ev, err := s.events.FindByID(ctx, eventID); err == nil {
		stats.EventName = ev.Name
		stats.EventStartsAt = ev.StartsAt
	}

	for _, tt := range types {
		row, ok := byID[tt.ID]
		if !ok {
			row.Revenue = decimal.Zero
		}
		stats.ByTicketType = append(stats.ByTicketType, TicketTypeStats{
			TicketTypeID:     tt.ID,
			Name:             tt.Name,
			Status:           tt.Status,
			Price:            tt.Price,
			Sold:             row.Sold,
			Capacity:         tt.MaxQuantity,
			AvailableTickets: tt.AvailableTickets,
			PercentageSold:   percentage(row.Sold, tt.MaxQuantity),
			Revenue:          row.Revenue,
		})
		stats.Summary.TotalSold += row.Sold
		stats.Summary.TotalCapacity += tt.MaxQuantity
		stats.Summary.TotalRevenue = stats.Summary.TotalRevenue.Add(row.Revenue)
	}
	stats.Summary.PercentageSold = percentage(stats.Summary.TotalSold, stats.Summary.TotalCapacity)

	recent, err := s.purchases.FindRecentApproved(ctx, ids, recentLimit)
	if err != nil {
		return nil, err
	}
	stats.RecentTransactions = recent
	if len(recent) > 0 {
		last := recent[0].UpdatedAt
		stats.LastSale = &last
	}
	return stats, nil
}

func percentage(sold int64, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	pct, _ := decimal.NewFromInt(sold).
		Div(decimal.NewFromInt(int64(capacity))).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return pct
}

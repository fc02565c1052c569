package app

import (
	"github.com/Eursukkul/ticketing-service/config"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"gorm.io/gorm"
)

// Stores groups the repositories one storage driver provides.
type Stores struct {
	Tx           repository.TxManager
	TicketTypes  repository.TicketTypeRepository
	Reservations repository.ReservationRepository
	Checkouts    repository.CheckoutRepository
	Purchases    repository.PurchaseRepository
	Events       repository.EventRepository
}

func PostgresStores(db *gorm.DB) Stores {
	return Stores{
		Tx:           repository.NewTxManager(db),
		TicketTypes:  repository.NewTicketTypeRepository(db),
		Reservations: repository.NewReservationRepository(db),
		Checkouts:    repository.NewCheckoutRepository(db),
		Purchases:    repository.NewPurchaseRepository(db),
		Events:       repository.NewEventRepository(db),
	}
}

func MemoryStores(s *repository.MemoryStore) Stores {
	return Stores{
		Tx:           s.TxManager(),
		TicketTypes:  s.TicketTypes(),
		Reservations: s.Reservations(),
		Checkouts:    s.Checkouts(),
		Purchases:    s.Purchases(),
		Events:       s.Events(),
	}
}

type Services struct {
	Ledger       service.Ledger
	Reservations service.ReservationManager
	Lifecycle    service.Lifecycle
	TicketTypes  service.TicketTypeService
	Purchases    service.PurchaseService
}

func NewServices(st Stores, payments service.PaymentProvider, publisher service.Publisher, clock service.Clock, cfg *config.Config) *Services {
	ledger := service.NewLedger(st.Tx, st.TicketTypes, st.Reservations, clock, cfg.ReservationTTL)
	holds := service.NewReservationManager(st.Tx, ledger, st.Reservations, st.Checkouts, st.Purchases, publisher, clock, cfg.SweepBatchSize)
	lifecycle := service.NewLifecycle(st.Tx, st.TicketTypes, st.Reservations, publisher, clock)

	return &Services{
		Ledger:       ledger,
		Reservations: holds,
		Lifecycle:    lifecycle,
		TicketTypes:  service.NewTicketTypeService(st.Tx, st.TicketTypes, st.Reservations, st.Purchases, st.Events, lifecycle, publisher, clock),
		Purchases: service.NewPurchaseService(
			st.Tx, ledger, holds,
			st.TicketTypes, st.Reservations, st.Checkouts, st.Purchases,
			payments, publisher, clock,
			service.PurchaseConfig{
				CheckoutTimeout:       cfg.CheckoutTimeout,
				MaxTicketsPerPurchase: cfg.MaxTicketsPerPurchase,
				ServiceFeeRate:        cfg.ServiceFeeRate,
			},
		),
	}
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/Eursukkul/ticketing-service/pkg/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// --- Fake clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- Recording publisher ---

type published struct {
	key     string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{key: routingKey, payload: payload})
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.key
	}
	return out
}

// --- Mock payment provider ---

type mockProvider struct {
	createFn func(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error)
	getFn    func(ctx context.Context, id string) (*payment.Payment, error)
}

func (m *mockProvider) CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error) {
	return m.createFn(ctx, req)
}

func (m *mockProvider) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	return m.getFn(ctx, id)
}

// --- Fixture ---

type fixture struct {
	store     *repository.MemoryStore
	clock     *fakeClock
	publisher *recordingPublisher
	provider  *mockProvider
	ledger    Ledger
	holds     ReservationManager
	lifecycle Lifecycle
	types     TicketTypeService
	purchases PurchaseService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     repository.NewMemoryStore(),
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
		provider:  &mockProvider{},
	}
	s := f.store
	f.ledger = NewLedger(s.TxManager(), s.TicketTypes(), s.Reservations(), f.clock, 10*time.Minute)
	f.holds = NewReservationManager(s.TxManager(), f.ledger, s.Reservations(), s.Checkouts(), s.Purchases(), f.publisher, f.clock, 50)
	f.lifecycle = NewLifecycle(s.TxManager(), s.TicketTypes(), s.Reservations(), f.publisher, f.clock)
	f.types = NewTicketTypeService(s.TxManager(), s.TicketTypes(), s.Reservations(), s.Purchases(), s.Events(), f.lifecycle, f.publisher, f.clock)
	f.purchases = NewPurchaseService(
		s.TxManager(), f.ledger, f.holds, s.TicketTypes(), s.Reservations(), s.Checkouts(), s.Purchases(),
		f.provider, f.publisher, f.clock,
		PurchaseConfig{CheckoutTimeout: 600 * time.Second, MaxTicketsPerPurchase: 5, ServiceFeeRate: decimal.RequireFromString("0.10")},
	)
	return f
}

// seedType inserts a ticket type directly, bypassing validation and activation.
func (f *fixture) seedType(t *testing.T, tt models.TicketType) *models.TicketType {
	t.Helper()
	if tt.SaleMode == "" {
		tt.SaleMode = models.SaleModeManual
	}
	if tt.Status == "" {
		tt.Status = models.TicketTypePending
	}
	if tt.AvailableTickets == 0 && tt.Status != models.TicketTypeSoldOut {
		tt.AvailableTickets = tt.MaxQuantity
	}
	if tt.Price.IsZero() {
		tt.Price = decimal.NewFromInt(100)
	}
	require.NoError(t, f.store.TicketTypes().Create(context.Background(), &tt))
	return &tt
}

func (f *fixture) ticketType(t *testing.T, id uint) *models.TicketType {
	t.Helper()
	tt, err := f.store.TicketTypes().FindByID(context.Background(), id)
	require.NoError(t, err)
	return tt
}

func (f *fixture) reservation(t *testing.T, id string) *models.Reservation {
	t.Helper()
	res, err := f.store.Reservations().FindByID(context.Background(), id)
	require.NoError(t, err)
	return res
}

func user(id string) *models.User {
	return &models.User{ID: id, Name: "Ana", Surname: "Silva", Email: id + "@example.com", Role: "user"}
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

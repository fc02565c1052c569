//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"github.com/Eursukkul/ticketing-service/pkg/database"
	"github.com/Eursukkul/ticketing-service/pkg/payment"
	"github.com/Eursukkul/ticketing-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDB *gorm.DB

var tables = []string{"tickets", "purchases", "checkouts", "reservations", "ticket_types", "events"}

func TestMain(m *testing.M) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5434"),
		getEnv("TEST_DB_USER", "postgres"),
		getEnv("TEST_DB_PASSWORD", "postgres"),
		getEnv("TEST_DB_NAME", "ticketing_test_db"),
	)

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}

	dropTables()
	if err := database.Migrate(testDB); err != nil {
		log.Fatalf("failed to migrate test database: %v", err)
	}

	code := m.Run()

	dropTables()
	os.Exit(code)
}

func dropTables() {
	for _, t := range tables {
		testDB.Exec("DROP TABLE IF EXISTS " + t + " CASCADE")
	}
}

func cleanTables() {
	for _, t := range tables {
		testDB.Exec("DELETE FROM " + t)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- Fixture ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type provider struct {
	payments map[string]*payment.Payment
}

func (p *provider) CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error) {
	return &payment.Preference{ID: "pref", InitPoint: "https://pay.example.com/pref"}, nil
}

func (p *provider) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	if pay, ok := p.payments[id]; ok {
		return pay, nil
	}
	return nil, payment.ErrPaymentNotFound
}

type services struct {
	clock       *clock
	provider    *provider
	ledger      service.Ledger
	holds       service.ReservationManager
	ticketTypes service.TicketTypeService
	purchases   service.PurchaseService
}

func newServices() *services {
	tx := repository.NewTxManager(testDB)
	ticketTypes := repository.NewTicketTypeRepository(testDB)
	reservations := repository.NewReservationRepository(testDB)
	checkouts := repository.NewCheckoutRepository(testDB)
	purchases := repository.NewPurchaseRepository(testDB)
	events := repository.NewEventRepository(testDB)

	clk := &clock{now: time.Now().UTC()}
	prov := &provider{payments: map[string]*payment.Payment{}}
	pub := rabbitmq.LogPublisher{}

	ledger := service.NewLedger(tx, ticketTypes, reservations, clk, 10*time.Minute)
	holds := service.NewReservationManager(tx, ledger, reservations, checkouts, purchases, pub, clk, 100)
	lifecycle := service.NewLifecycle(tx, ticketTypes, reservations, pub, clk)

	return &services{
		clock:       clk,
		provider:    prov,
		ledger:      ledger,
		holds:       holds,
		ticketTypes: service.NewTicketTypeService(tx, ticketTypes, reservations, purchases, events, lifecycle, pub, clk),
		purchases: service.NewPurchaseService(tx, ledger, holds, ticketTypes, reservations, checkouts, purchases, prov, pub, clk,
			service.PurchaseConfig{CheckoutTimeout: 600 * time.Second, MaxTicketsPerPurchase: 5, ServiceFeeRate: decimal.RequireFromString("0.10")}),
	}
}

func (s *services) createActiveType(t *testing.T, eventID uint, name string, stock int) *models.TicketType {
	t.Helper()
	require.NoError(t, repository.NewEventRepository(testDB).Upsert(context.Background(), &models.Event{ID: eventID, Name: "Golang Conf"}))
	tt, err := s.ticketTypes.Create(context.Background(), eventID, service.TicketTypeInput{
		Name:                name,
		Price:               decimal.NewFromInt(100),
		MaxQuantity:         stock,
		SaleMode:            models.SaleModeManual,
		IsManuallyActivated: true,
	})
	require.NoError(t, err)
	require.Equal(t, models.TicketTypeActive, tt.Status)
	return tt
}

func buyer(i int) *models.User {
	id := fmt.Sprintf("user-%03d", i)
	return &models.User{ID: id, Name: "Ana", Surname: "Silva", Email: id + "@example.com", Role: "user"}
}

// --- Tests ---

// 60 buyers race for 50 tickets: exactly 50 holds, 10 rejections, no oversell.
func TestPostgres_ConcurrentReserveNeverOversells(t *testing.T) {
	cleanTables()
	s := newServices()
	tt := s.createActiveType(t, 1, "General", 50)

	const buyers = 60
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		reserved   int
		outOfStock int
		other      []error
	)
	wg.Add(buyers)
	for i := 0; i < buyers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.ledger.TryReserve(context.Background(), tt.ID, buyer(i).ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				reserved++
			case errors.Is(err, service.ErrOutOfStock):
				outOfStock++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 50, reserved)
	assert.Equal(t, 10, outOfStock)

	var row models.TicketType
	require.NoError(t, testDB.First(&row, tt.ID).Error)
	assert.Equal(t, 0, row.AvailableTickets)

	var holds int64
	testDB.Model(&models.Reservation{}).Where("ticket_type_id = ? AND state = ?", tt.ID, models.ReservationActive).Count(&holds)
	assert.Equal(t, int64(50), holds)
}

func TestPostgres_SweepReturnsLapsedStock(t *testing.T) {
	cleanTables()
	s := newServices()
	tt := s.createActiveType(t, 2, "Early Bird", 10)

	_, err := s.ledger.TryReserve(context.Background(), tt.ID, "user-1", 4)
	require.NoError(t, err)

	s.clock.Advance(11 * time.Minute)
	n, err := s.holds.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var row models.TicketType
	require.NoError(t, testDB.First(&row, tt.ID).Error)
	assert.Equal(t, 10, row.AvailableTickets)
}

// Concurrent verifications of one approved payment issue the tickets once.
func TestPostgres_ConcurrentVerifyIssuesTicketsOnce(t *testing.T) {
	cleanTables()
	s := newServices()
	tt := s.createActiveType(t, 3, "VIP", 10)

	p, err := s.purchases.CreatePurchase(context.Background(), buyer(1), tt.ID, 2)
	require.NoError(t, err)
	s.provider.payments["pay-1"] = &payment.Payment{
		ID:                "pay-1",
		Status:            payment.StatusApproved,
		ExternalReference: payment.ExternalReference(p.ID),
	}

	var wg sync.WaitGroup
	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func() {
			defer wg.Done()
			res, err := s.purchases.VerifyPayment(context.Background(), "pay-1")
			assert.NoError(t, err)
			if res != nil {
				assert.True(t, res.Success)
			}
		}()
	}
	wg.Wait()

	var tickets int64
	testDB.Model(&models.Ticket{}).Where("purchase_id = ?", p.ID).Count(&tickets)
	assert.Equal(t, int64(2), tickets)

	var row models.Purchase
	require.NoError(t, testDB.First(&row, p.ID).Error)
	assert.Equal(t, models.PaymentApproved, row.PaymentStatus)
}

func TestPostgres_OneActiveTicketTypePerEvent(t *testing.T) {
	cleanTables()
	s := newServices()
	s.createActiveType(t, 4, "General", 10)

	second := &models.TicketType{
		EventID:          4,
		Name:             "Rogue",
		Price:            decimal.NewFromInt(1),
		MaxQuantity:      1,
		AvailableTickets: 1,
		SortOrder:        9,
		Status:           models.TicketTypeActive,
		SaleMode:         models.SaleModeManual,
	}
	err := testDB.Create(second).Error

	assert.Error(t, err)
}

func TestPostgres_AvailableNeverNegative(t *testing.T) {
	cleanTables()
	s := newServices()
	tt := s.createActiveType(t, 5, "General", 3)

	err := testDB.Model(&models.TicketType{}).Where("id = ?", tt.ID).Update("available_tickets", -1).Error

	assert.Error(t, err)
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_WithTx_RollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tt := &models.TicketType{EventID: 1, Name: "General", MaxQuantity: 10, AvailableTickets: 10}
	require.NoError(t, store.TicketTypes().Create(ctx, tt))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := store.TicketTypes().FindByID(ctx, tt.ID)
		require.NoError(t, err)
		locked.AvailableTickets = 3
		require.NoError(t, store.TicketTypes().Save(ctx, locked))
		require.NoError(t, store.Reservations().Create(ctx, &models.Reservation{ID: "r-1", TicketTypeID: tt.ID, Quantity: 7}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.TicketTypes().FindByID(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.AvailableTickets)

	_, err = store.Reservations().FindByID(ctx, "r-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_NestedTxJoinsOuter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context) error {
		return store.WithTx(ctx, func(ctx context.Context) error {
			return store.Events().Upsert(ctx, &models.Event{ID: 7, Name: "Bohemia Night"})
		})
	})
	require.NoError(t, err)

	ev, err := store.Events().FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Bohemia Night", ev.Name)
}

func TestMemoryStore_LockByEventID_SortOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, order := range []int{3, 1, 2} {
		require.NoError(t, store.TicketTypes().Create(ctx, &models.TicketType{EventID: 1, SortOrder: order}))
	}
	require.NoError(t, store.TicketTypes().Create(ctx, &models.TicketType{EventID: 2, SortOrder: 0}))

	types, err := store.TicketTypes().LockByEventID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, types, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{types[0].SortOrder, types[1].SortOrder, types[2].SortOrder})
}

func TestMemoryStore_FindExpiredActive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	reservations := []models.Reservation{
		{ID: "late", State: models.ReservationActive, ExpiresAt: now.Add(-time.Minute)},
		{ID: "early", State: models.ReservationActive, ExpiresAt: now.Add(-time.Hour)},
		{ID: "live", State: models.ReservationActive, ExpiresAt: now.Add(time.Minute)},
		{ID: "done", State: models.ReservationConfirmed, ExpiresAt: now.Add(-time.Hour)},
	}
	for i := range reservations {
		require.NoError(t, store.Reservations().Create(ctx, &reservations[i]))
	}

	due, err := store.Reservations().FindExpiredActive(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "late", due[1].ID)

	limited, err := store.Reservations().FindExpiredActive(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStore_PurchaseHydrationAndSales(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tt := &models.TicketType{EventID: 1, Name: "VIP", Price: decimal.NewFromInt(100)}
	require.NoError(t, store.TicketTypes().Create(ctx, tt))

	p := &models.Purchase{UserID: "u-1", TicketTypeID: tt.ID, ReservationID: "r-1", TicketQuantity: 2,
		PaymentStatus: models.PaymentApproved, TotalPrice: decimal.NewFromInt(220)}
	require.NoError(t, store.Purchases().Create(ctx, p))
	require.NoError(t, store.Purchases().CreateTickets(ctx, []models.Ticket{
		{PurchaseID: p.ID, TicketTypeID: tt.ID, QRCode: "b", NumberInPurchase: 2},
		{PurchaseID: p.ID, TicketTypeID: tt.ID, QRCode: "a", NumberInPurchase: 1},
	}))

	got, err := store.Purchases().FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TicketType)
	assert.Equal(t, "VIP", got.TicketType.Name)
	require.Len(t, got.Tickets, 2)
	assert.Equal(t, 1, got.Tickets[0].NumberInPurchase)

	sales, err := store.Purchases().SalesByTicketType(ctx, []uint{tt.ID})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, int64(2), sales[0].Sold)
	assert.True(t, sales[0].Revenue.Equal(decimal.NewFromInt(220)))

	n, err := store.Purchases().CountTicketsByTicketType(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

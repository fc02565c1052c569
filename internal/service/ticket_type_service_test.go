package service

import (
	"context"
	"testing"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/pkg/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTicketType_QueuesAndActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.types.Create(ctx, 1, TicketTypeInput{Name: "Early", Price: decimal.NewFromInt(80), MaxQuantity: 50, IsManuallyActivated: true})
	require.NoError(t, err)
	second, err := f.types.Create(ctx, 1, TicketTypeInput{Name: "Regular", Price: decimal.NewFromInt(100), MaxQuantity: 100, IsManuallyActivated: true})
	require.NoError(t, err)

	assert.Equal(t, 1, first.SortOrder)
	assert.Equal(t, models.TicketTypeActive, first.Status)
	assert.Equal(t, 50, first.AvailableTickets)
	assert.Equal(t, 2, second.SortOrder)
	assert.Equal(t, models.TicketTypePending, second.Status)
	assert.Equal(t, models.SaleModeManual, second.SaleMode)

	list, err := f.types.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Early", list[0].Name)
}

func TestCreateTicketType_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	begin := f.clock.Now()
	before := begin.Add(-time.Hour)

	cases := map[string]TicketTypeInput{
		"missing name":      {Price: decimal.NewFromInt(1), MaxQuantity: 1},
		"negative price":    {Name: "A", Price: decimal.NewFromInt(-1), MaxQuantity: 1},
		"zero quantity":     {Name: "A", Price: decimal.NewFromInt(1)},
		"window missing":    {Name: "A", Price: decimal.NewFromInt(1), MaxQuantity: 1, SaleMode: models.SaleModeScheduled},
		"window backwards":  {Name: "A", Price: decimal.NewFromInt(1), MaxQuantity: 1, SaleMode: models.SaleModeScheduled, BeginDatetime: &begin, FinishDatetime: &before},
		"unknown sale mode": {Name: "A", Price: decimal.NewFromInt(1), MaxQuantity: 1, SaleMode: "auction"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.types.Create(ctx, 1, in)
			assert.ErrorIs(t, err, ErrInvalidTicketType)
		})
	}
}

func TestUpdateTicketType_ResizeKeepsCommitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tt, err := f.types.Create(ctx, 1, TicketTypeInput{Name: "General", Price: decimal.NewFromInt(10), MaxQuantity: 10, IsManuallyActivated: true})
	require.NoError(t, err)
	_, err = f.ledger.TryReserve(ctx, tt.ID, "u-1", 4)
	require.NoError(t, err)

	bigger := 20
	updated, err := f.types.Update(ctx, 1, tt.ID, TicketTypeUpdate{MaxQuantity: &bigger})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.MaxQuantity)
	assert.Equal(t, 16, updated.AvailableTickets)

	tooSmall := 3
	_, err = f.types.Update(ctx, 1, tt.ID, TicketTypeUpdate{MaxQuantity: &tooSmall})
	assert.ErrorIs(t, err, ErrInvalidTicketType)

	name := "  Renamed "
	updated, err = f.types.Update(ctx, 1, tt.ID, TicketTypeUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 16, updated.AvailableTickets)

	_, err = f.types.Update(ctx, 2, tt.ID, TicketTypeUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)
}

func TestUpdateTicketType_FlagActivatesManualType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tt, err := f.types.Create(ctx, 1, TicketTypeInput{Name: "Later", Price: decimal.NewFromInt(10), MaxQuantity: 5})
	require.NoError(t, err)
	assert.Equal(t, models.TicketTypePending, tt.Status)

	on := true
	updated, err := f.types.Update(ctx, 1, tt.ID, TicketTypeUpdate{IsManuallyActivated: &on})

	require.NoError(t, err)
	assert.Equal(t, models.TicketTypeActive, updated.Status)
	assert.True(t, contains(f.publisher.keys(), "ticket_type.active"))
}

func TestUpdateTicketType_ClosedAndSoldOutAreFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed := f.seedType(t, models.TicketType{EventID: 1, Name: "Closed", MaxQuantity: 5, Status: models.TicketTypeClosed})
	soldOut := f.seedType(t, models.TicketType{EventID: 1, Name: "Gone", MaxQuantity: 5, Status: models.TicketTypeSoldOut})

	qty := 10
	_, err := f.types.Update(ctx, 1, closed.ID, TicketTypeUpdate{MaxQuantity: &qty})
	assert.ErrorIs(t, err, ErrTicketTypeClosed)

	_, err = f.types.Update(ctx, 1, soldOut.ID, TicketTypeUpdate{MaxQuantity: &qty})
	assert.ErrorIs(t, err, ErrInvalidTicketType)
}

func TestUpdateTicketType_ShrinkToSoldAmountActivatesNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedType(t, models.TicketType{EventID: 1, Name: "A", MaxQuantity: 5, Status: models.TicketTypeActive, SortOrder: 1})
	b := f.seedType(t, models.TicketType{EventID: 1, Name: "B", MaxQuantity: 10, SortOrder: 2, IsManuallyActivated: true})

	res, err := f.ledger.TryReserve(ctx, a.ID, "u-1", 2)
	require.NoError(t, err)
	_, err = f.ledger.Confirm(ctx, res.ID)
	require.NoError(t, err)

	sold := 2
	updated, err := f.types.Update(ctx, 1, a.ID, TicketTypeUpdate{MaxQuantity: &sold})

	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableTickets)
	assert.Equal(t, models.TicketTypeSoldOut, updated.Status)
	assert.Equal(t, models.TicketTypeActive, f.ticketType(t, b.ID).Status)
	assert.True(t, contains(f.publisher.keys(), "ticket_type.sold_out"))

	_, err = f.ledger.TryReserve(ctx, b.ID, "u-2", 1)
	assert.NoError(t, err)
}

func TestUpdateTicketType_ShrinkWithLiveHoldWaitsForConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedType(t, models.TicketType{EventID: 1, Name: "A", MaxQuantity: 5, Status: models.TicketTypeActive, SortOrder: 1})
	b := f.seedType(t, models.TicketType{EventID: 1, Name: "B", MaxQuantity: 10, SortOrder: 2, IsManuallyActivated: true})

	res, err := f.ledger.TryReserve(ctx, a.ID, "u-1", 2)
	require.NoError(t, err)

	held := 2
	updated, err := f.types.Update(ctx, 1, a.ID, TicketTypeUpdate{MaxQuantity: &held})
	require.NoError(t, err)
	assert.Equal(t, models.TicketTypeActive, updated.Status)
	assert.Equal(t, models.TicketTypePending, f.ticketType(t, b.ID).Status)

	_, err = f.ledger.Confirm(ctx, res.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TicketTypeSoldOut, f.ticketType(t, a.ID).Status)
	assert.Equal(t, models.TicketTypeActive, f.ticketType(t, b.ID).Status)
}

func TestDeleteTicketType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.seedType(t, models.TicketType{EventID: 1, Name: "Active", MaxQuantity: 5, Status: models.TicketTypeActive, SortOrder: 1})
	pending := f.seedType(t, models.TicketType{EventID: 1, Name: "Pending", MaxQuantity: 5, SortOrder: 2})

	assert.ErrorIs(t, f.types.Delete(ctx, 1, active.ID), ErrTicketTypeInUse)
	assert.ErrorIs(t, f.types.Delete(ctx, 1, 999), ErrTicketTypeNotFound)
	require.NoError(t, f.types.Delete(ctx, 1, pending.ID))

	_, err := f.types.Get(ctx, 1, pending.ID)
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Events().Upsert(ctx, &models.Event{ID: 1, Name: "Rock Fest"}))
	vip := f.seedType(t, models.TicketType{EventID: 1, Name: "VIP", MaxQuantity: 10, Status: models.TicketTypeActive, Price: decimal.NewFromInt(100), SortOrder: 1})
	f.seedType(t, models.TicketType{EventID: 1, Name: "General", MaxQuantity: 30, Price: decimal.NewFromInt(20), SortOrder: 2})

	_, p := startPurchase(t, f, user("u-1"), vip.ID, 2)
	f.provider.getFn = paymentFor(p, payment.StatusApproved)
	_, err := f.purchases.VerifyPayment(ctx, "pay-1")
	require.NoError(t, err)
	startPurchase(t, f, user("u-2"), vip.ID, 1)

	stats, err := f.types.Stats(ctx, 1, 5)

	require.NoError(t, err)
	assert.Equal(t, "Rock Fest", stats.EventName)
	assert.Equal(t, int64(2), stats.Summary.TotalSold)
	assert.Equal(t, 40, stats.Summary.TotalCapacity)
	assert.Equal(t, 5.0, stats.Summary.PercentageSold)
	assert.Equal(t, "220.00", stats.Summary.TotalRevenue.StringFixed(2))
	require.Len(t, stats.ByTicketType, 2)
	assert.Equal(t, 20.0, stats.ByTicketType[0].PercentageSold)
	assert.Equal(t, 7, stats.ByTicketType[0].AvailableTickets)
	assert.Equal(t, int64(0), stats.ByTicketType[1].Sold)
	require.Len(t, stats.RecentTransactions, 1)
	assert.NotNil(t, stats.LastSale)
}

func TestStats_UnknownEventIsEmpty(t *testing.T) {
	f := newFixture(t)

	stats, err := f.types.Stats(context.Background(), 42, 0)

	require.NoError(t, err)
	assert.Empty(t, stats.ByTicketType)
	assert.Zero(t, stats.Summary.PercentageSold)
	assert.True(t, stats.Summary.TotalRevenue.IsZero())
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClose_RollsStockToNextPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := f.seedType(t, models.TicketType{EventID: 1, Name: "Early", MaxQuantity: 10, AvailableTickets: 4, Status: models.TicketTypeActive, SortOrder: 1})
	regular := f.seedType(t, models.TicketType{EventID: 1, Name: "Regular", MaxQuantity: 10, SortOrder: 2, IsManuallyActivated: true})

	result, err := f.lifecycle.Close(ctx, 1, early.ID)

	require.NoError(t, err)
	assert.Equal(t, 4, result.Remaining)
	assert.False(t, result.Forfeited)
	require.NotNil(t, result.RolledOverTo)
	assert.Equal(t, regular.ID, result.RolledOverTo.ID)

	closed := f.ticketType(t, early.ID)
	assert.Equal(t, models.TicketTypeClosed, closed.Status)
	assert.Equal(t, 0, closed.AvailableTickets)

	next := f.ticketType(t, regular.ID)
	assert.Equal(t, 14, next.MaxQuantity)
	assert.Equal(t, 14, next.AvailableTickets)
	assert.Equal(t, models.TicketTypeActive, next.Status)

	keys := f.publisher.keys()
	assert.Equal(t, []string{"ticket_type.closed", "ticket_type.active"}, keys)
}

func TestClose_ForfeitsWithoutSuccessor(t *testing.T) {
	f := newFixture(t)
	last := f.seedType(t, models.TicketType{EventID: 1, Name: "Last", MaxQuantity: 10, AvailableTickets: 6, Status: models.TicketTypeActive})

	result, err := f.lifecycle.Close(context.Background(), 1, last.ID)

	require.NoError(t, err)
	assert.True(t, result.Forfeited)
	assert.Nil(t, result.RolledOverTo)
	assert.Equal(t, 6, result.Remaining)
}

func TestClose_SkipsEarlierPendingTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.seedType(t, models.TicketType{EventID: 1, Name: "Before", MaxQuantity: 5, SortOrder: 1})
	mid := f.seedType(t, models.TicketType{EventID: 1, Name: "Mid", MaxQuantity: 5, AvailableTickets: 2, Status: models.TicketTypeActive, SortOrder: 2})
	after := f.seedType(t, models.TicketType{EventID: 1, Name: "After", MaxQuantity: 5, SortOrder: 3})

	result, err := f.lifecycle.Close(ctx, 1, mid.ID)

	require.NoError(t, err)
	require.NotNil(t, result.RolledOverTo)
	assert.Equal(t, after.ID, result.RolledOverTo.ID)
	assert.Equal(t, 5, f.ticketType(t, before.ID).MaxQuantity)
	assert.Equal(t, 7, f.ticketType(t, after.ID).MaxQuantity)
}

func TestClose_BlockedByActiveHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tt := f.seedType(t, models.TicketType{EventID: 1, Name: "Busy", MaxQuantity: 10, Status: models.TicketTypeActive})
	_, err := f.ledger.TryReserve(ctx, tt.ID, "u-1", 2)
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	_, err = f.lifecycle.Close(ctx, 1, tt.ID)

	var blocked *CloseBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.ErrorIs(t, err, ErrCloseWithActiveReservations)
	assert.Equal(t, 1, blocked.ActiveReservations)
	assert.Equal(t, 6*time.Minute, blocked.RetryAfter)
	assert.Equal(t, models.TicketTypeActive, f.ticketType(t, tt.ID).Status)
}

func TestClose_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed := f.seedType(t, models.TicketType{EventID: 1, Name: "Gone", MaxQuantity: 1, Status: models.TicketTypeClosed})

	_, err := f.lifecycle.Close(ctx, 1, closed.ID)
	assert.ErrorIs(t, err, ErrTicketTypeClosed)

	_, err = f.lifecycle.Close(ctx, 2, closed.ID)
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)
}

func TestActivateNext_NoOpWhenActiveExists(t *testing.T) {
	f := newFixture(t)
	active := f.seedType(t, models.TicketType{EventID: 1, Name: "Now", MaxQuantity: 3, Status: models.TicketTypeActive, SortOrder: 2})
	pending := f.seedType(t, models.TicketType{EventID: 1, Name: "Flagged", MaxQuantity: 3, SortOrder: 1, IsManuallyActivated: true})

	got, err := f.lifecycle.ActivateNext(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
	assert.Equal(t, models.TicketTypePending, f.ticketType(t, pending.ID).Status)
}

func TestActivateNext_SkipsUnflaggedManualType(t *testing.T) {
	f := newFixture(t)
	unflagged := f.seedType(t, models.TicketType{EventID: 1, Name: "Hidden", MaxQuantity: 3, SortOrder: 1})
	flagged := f.seedType(t, models.TicketType{EventID: 1, Name: "Open", MaxQuantity: 3, SortOrder: 2, IsManuallyActivated: true})

	got, err := f.lifecycle.ActivateNext(context.Background(), 1)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, flagged.ID, got.ID)
	assert.Equal(t, models.TicketTypePending, f.ticketType(t, unflagged.ID).Status)
}

func TestTick_ClosesFinishedWindowAndActivatesNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	begin, finish := now.Add(-time.Hour), now.Add(time.Minute)
	nextBegin, nextFinish := now.Add(time.Minute), now.Add(time.Hour)

	first := f.seedType(t, models.TicketType{
		EventID: 1, Name: "Presale", MaxQuantity: 10, AvailableTickets: 3, Status: models.TicketTypeActive, SortOrder: 1,
		SaleMode: models.SaleModeScheduled, BeginDatetime: &begin, FinishDatetime: &finish,
	})
	second := f.seedType(t, models.TicketType{
		EventID: 1, Name: "Main", MaxQuantity: 20, SortOrder: 2,
		SaleMode: models.SaleModeScheduled, BeginDatetime: &nextBegin, FinishDatetime: &nextFinish,
	})

	require.NoError(t, f.lifecycle.Tick(ctx))
	assert.Equal(t, models.TicketTypeActive, f.ticketType(t, first.ID).Status)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.lifecycle.Tick(ctx))

	assert.Equal(t, models.TicketTypeClosed, f.ticketType(t, first.ID).Status)
	main := f.ticketType(t, second.ID)
	assert.Equal(t, models.TicketTypeActive, main.Status)
	assert.Equal(t, 23, main.AvailableTickets)
}

func TestTick_WaitsForHoldsBeforeClosing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	begin, finish := now.Add(-time.Hour), now.Add(time.Minute)
	tt := f.seedType(t, models.TicketType{
		EventID: 1, Name: "Presale", MaxQuantity: 10, Status: models.TicketTypeActive,
		SaleMode: models.SaleModeScheduled, BeginDatetime: &begin, FinishDatetime: &finish,
	})
	_, err := f.ledger.TryReserve(ctx, tt.ID, "u-1", 1)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.lifecycle.Tick(ctx))
	assert.Equal(t, models.TicketTypeActive, f.ticketType(t, tt.ID).Status)

	f.clock.Advance(10 * time.Minute)
	_, err = f.holds.Sweep(ctx)
	require.NoError(t, err)
	require.NoError(t, f.lifecycle.Tick(ctx))
	assert.Equal(t, models.TicketTypeClosed, f.ticketType(t, tt.ID).Status)
}

func TestTick_ZeroStockGoesStraightToSoldOut(t *testing.T) {
	f := newFixture(t)
	empty := f.seedType(t, models.TicketType{EventID: 1, Name: "Empty", MaxQuantity: 1, SortOrder: 1, IsManuallyActivated: true})
	next := f.seedType(t, models.TicketType{EventID: 1, Name: "Next", MaxQuantity: 5, SortOrder: 2, IsManuallyActivated: true})

	// Drain the first type so it has no stock before activation.
	drained := f.ticketType(t, empty.ID)
	drained.AvailableTickets = 0
	require.NoError(t, f.store.TicketTypes().Save(context.Background(), drained))

	require.NoError(t, f.lifecycle.Tick(context.Background()))

	assert.Equal(t, models.TicketTypeSoldOut, f.ticketType(t, empty.ID).Status)
	assert.Equal(t, models.TicketTypeActive, f.ticketType(t, next.ID).Status)
	assert.True(t, contains(f.publisher.keys(), "ticket_type.sold_out"))
}

func TestTick_DrainedActiveTypeGoesSoldOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedType(t, models.TicketType{EventID: 1, Name: "A", MaxQuantity: 5, Status: models.TicketTypeActive, SortOrder: 1})
	b := f.seedType(t, models.TicketType{EventID: 1, Name: "B", MaxQuantity: 10, SortOrder: 2, IsManuallyActivated: true})
	a.AvailableTickets = 0
	require.NoError(t, f.store.TicketTypes().Save(ctx, a))

	require.NoError(t, f.lifecycle.Tick(ctx))

	assert.Equal(t, models.TicketTypeSoldOut, f.ticketType(t, a.ID).Status)
	assert.Equal(t, models.TicketTypeActive, f.ticketType(t, b.ID).Status)
}

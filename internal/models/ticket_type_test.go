package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func window(begin, finish time.Time) *TicketType {
	return &TicketType{
		Status:         TicketTypePending,
		SaleMode:       SaleModeScheduled,
		BeginDatetime:  &begin,
		FinishDatetime: &finish,
	}
}

func TestCanActivate_Scheduled(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, window(now.Add(-time.Hour), now.Add(time.Hour)).CanActivate(now))
	assert.True(t, window(now, now.Add(time.Hour)).CanActivate(now), "begin is inclusive")
	assert.False(t, window(now.Add(-time.Hour), now).CanActivate(now), "finish is exclusive")
	assert.False(t, window(now.Add(time.Hour), now.Add(2*time.Hour)).CanActivate(now))
}

func TestCanActivate_Manual(t *testing.T) {
	now := time.Now()
	tt := &TicketType{Status: TicketTypePending, SaleMode: SaleModeManual}

	assert.False(t, tt.CanActivate(now))

	tt.IsManuallyActivated = true
	assert.True(t, tt.CanActivate(now))

	tt.Status = TicketTypeClosed
	assert.False(t, tt.CanActivate(now))
}

func TestOnSale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	manual := &TicketType{Status: TicketTypeActive, SaleMode: SaleModeManual}
	assert.True(t, manual.OnSale(now))

	scheduled := window(now.Add(-2*time.Hour), now.Add(-time.Hour))
	scheduled.Status = TicketTypeActive
	assert.False(t, scheduled.OnSale(now))
	assert.True(t, scheduled.WindowFinished(now))

	manual.Status = TicketTypeSoldOut
	assert.False(t, manual.OnSale(now))
}

func TestReservationExpiredAt(t *testing.T) {
	now := time.Now()
	r := &Reservation{ExpiresAt: now}

	assert.True(t, r.ExpiredAt(now))
	assert.False(t, r.ExpiredAt(now.Add(-time.Second)))
}

package service

import (
	"context"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/repository"
)

// queue is the locked, sort-ordered set of ticket types of one event. It is only
// valid inside the transaction that loaded it.
type queue struct {
	repo    repository.TicketTypeRepository
	types   []models.TicketType
	changes []StatusChange
}

func loadQueue(ctx context.Context, repo repository.TicketTypeRepository, eventID uint) (*queue, error) {
	types, err := repo.LockByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &queue{repo: repo, types: types}, nil
}

func (q *queue) find(id uint) *models.TicketType {
	for i := range q.types {
		if q.types[i].ID == id {
			return &q.types[i]
		}
	}
	return nil
}

func (q *queue) active() *models.TicketType {
	for i := range q.types {
		if q.types[i].Status == models.TicketTypeActive {
			return &q.types[i]
		}
	}
	return nil
}

// nextPendingAfter returns the first pending type queued after tt.
func (q *queue) nextPendingAfter(tt *models.TicketType) *models.TicketType {
	passed := false
	for i := range q.types {
		cur := &q.types[i]
		if cur.ID == tt.ID {
			passed = true
			continue
		}
		if passed && cur.Status == models.TicketTypePending {
			return cur
		}
	}
	return nil
}

func (q *queue) save(ctx context.Context, tt *models.TicketType) error {
	return q.repo.Save(ctx, tt)
}

func (q *queue) setStatus(ctx context.Context, tt *models.TicketType, to models.TicketTypeStatus) error {
	from := tt.Status
	tt.Status = to
	if err := q.save(ctx, tt); err != nil {
		return err
	}
	q.changes = append(q.changes, StatusChange{TicketType: *tt, From: from, To: to})
	return nil
}

// activateNext promotes the lowest-sortOrder pending type whose activation
// condition holds, unless the event already has an active type. A promoted type
// with no stock left goes straight to sold_out and the search continues.
func (q *queue) activateNext(ctx context.Context, now time.Time) (*models.TicketType, error) {
	if cur := q.active(); cur != nil {
		return cur, nil
	}
	for i := range q.types {
		tt := &q.types[i]
		if !tt.CanActivate(now) {
			continue
		}
		if tt.AvailableTickets == 0 {
			if err := q.setStatus(ctx, tt, models.TicketTypeSoldOut); err != nil {
				return nil, err
			}
			continue
		}
		if err := q.setStatus(ctx, tt, models.TicketTypeActive); err != nil {
			return nil, err
		}
		return tt, nil
	}
	return nil, nil
}

// soldOutIfDrained moves an active type with no stock and no live holds to
// sold_out and promotes the next type. Live holds may still return stock.
func (q *queue) soldOutIfDrained(ctx context.Context, tt *models.TicketType, holds repository.ReservationRepository, now time.Time) error {
	if tt.Status != models.TicketTypeActive || tt.AvailableTickets > 0 {
		return nil
	}
	live, err := holds.FindActiveByTicketType(ctx, tt.ID)
	if err != nil {
		return err
	}
	if len(live) > 0 {
		return nil
	}
	if err := q.setStatus(ctx, tt, models.TicketTypeSoldOut); err != nil {
		return err
	}
	_, err = q.activateNext(ctx, now)
	return err
}

type CloseResult struct {
	Closed       models.TicketType
	RolledOverTo *models.TicketType
	Remaining    int
	Forfeited    bool
}

// closeAndRollOver zeroes tt, closes it and moves its remaining stock to the next
// pending type. Without a successor the remaining stock is dropped.
func (q *queue) closeAndRollOver(ctx context.Context, tt *models.TicketType) (*CloseResult, error) {
	remaining := tt.AvailableTickets
	tt.AvailableTickets = 0
	if err := q.setStatus(ctx, tt, models.TicketTypeClosed); err != nil {
		return nil, err
	}

	result := &CloseResult{Remaining: remaining}
	next := q.nextPendingAfter(tt)
	switch {
	case next != nil:
		next.MaxQuantity += remaining
		next.AvailableTickets += remaining
		if err := q.save(ctx, next); err != nil {
			return nil, err
		}
		rolled := *next
		result.RolledOverTo = &rolled
	case remaining > 0:
		result.Forfeited = true
	}
	result.Closed = *tt
	return result, nil
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps every table in process. Transactions are serialized by a single
// mutex and rolled back from a snapshot, which gives serializable semantics for
// local runs and tests without PostgreSQL.
type MemoryStore struct {
	mu sync.Mutex

	events       map[uint]models.Event
	ticketTypes  map[uint]models.TicketType
	reservations map[string]models.Reservation
	checkouts    map[string]models.Checkout
	purchases    map[uint]models.Purchase
	tickets      map[uint]models.Ticket

	nextTicketTypeID uint
	nextPurchaseID   uint
	nextTicketID     uint
}

type memTxKey struct{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       map[uint]models.Event{},
		ticketTypes:  map[uint]models.TicketType{},
		reservations: map[string]models.Reservation{},
		checkouts:    map[string]models.Checkout{},
		purchases:    map[uint]models.Purchase{},
		tickets:      map[uint]models.Ticket{},
	}
}

func (s *MemoryStore) TxManager() TxManager                { return s }
func (s *MemoryStore) TicketTypes() TicketTypeRepository   { return memTicketTypes{s} }
func (s *MemoryStore) Reservations() ReservationRepository { return memReservations{s} }
func (s *MemoryStore) Checkouts() CheckoutRepository       { return memCheckouts{s} }
func (s *MemoryStore) Purchases() PurchaseRepository       { return memPurchases{s} }
func (s *MemoryStore) Events() EventRepository             { return memEvents{s} }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*MemoryStore)
	return owner == s
}

// do runs f under the store lock unless ctx already holds it.
func (s *MemoryStore) do(ctx context.Context, f func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.inTx(ctx) {
		return f()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return f()
}

type memSnapshot struct {
	events       map[uint]models.Event
	ticketTypes  map[uint]models.TicketType
	reservations map[string]models.Reservation
	checkouts    map[string]models.Checkout
	purchases    map[uint]models.Purchase
	tickets      map[uint]models.Ticket
}

func (s *MemoryStore) snapshot() memSnapshot {
	return memSnapshot{
		events:       cloneMap(s.events),
		ticketTypes:  cloneMap(s.ticketTypes),
		reservations: cloneMap(s.reservations),
		checkouts:    cloneMap(s.checkouts),
		purchases:    cloneMap(s.purchases),
		tickets:      cloneMap(s.tickets),
	}
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.events = snap.events
	s.ticketTypes = snap.ticketTypes
	s.reservations = snap.reservations
	s.checkouts = snap.checkouts
	s.purchases = snap.purchases
	s.tickets = snap.tickets
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func touch(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// --- ticket types ---

type memTicketTypes struct{ s *MemoryStore }

func (r memTicketTypes) Create(ctx context.Context, tt *models.TicketType) error {
	return r.s.do(ctx, func() error {
		r.s.nextTicketTypeID++
		tt.ID = r.s.nextTicketTypeID
		touch(&tt.CreatedAt, &tt.UpdatedAt)
		r.s.ticketTypes[tt.ID] = *tt
		return nil
	})
}

func (r memTicketTypes) Save(ctx context.Context, tt *models.TicketType) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.ticketTypes[tt.ID]; !ok {
			return ErrNotFound
		}
		touch(&tt.CreatedAt, &tt.UpdatedAt)
		r.s.ticketTypes[tt.ID] = *tt
		return nil
	})
}

func (r memTicketTypes) Delete(ctx context.Context, id uint) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.ticketTypes[id]; !ok {
			return ErrNotFound
		}
		delete(r.s.ticketTypes, id)
		return nil
	})
}

func (r memTicketTypes) FindByID(ctx context.Context, id uint) (*models.TicketType, error) {
	var out *models.TicketType
	err := r.s.do(ctx, func() error {
		tt, ok := r.s.ticketTypes[id]
		if !ok {
			return ErrNotFound
		}
		out = &tt
		return nil
	})
	return out, err
}

func (r memTicketTypes) FindByEventID(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	var out []models.TicketType
	err := r.s.do(ctx, func() error {
		for _, tt := range r.s.ticketTypes {
			if tt.EventID == eventID {
				out = append(out, tt)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].SortOrder != out[j].SortOrder {
				return out[i].SortOrder < out[j].SortOrder
			}
			return out[i].ID < out[j].ID
		})
		return nil
	})
	return out, err
}

func (r memTicketTypes) LockByEventID(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	return r.FindByEventID(ctx, eventID)
}

func (r memTicketTypes) FindOpenEventIDs(ctx context.Context) ([]uint, error) {
	var out []uint
	err := r.s.do(ctx, func() error {
		seen := map[uint]bool{}
		for _, tt := range r.s.ticketTypes {
			if tt.Status != models.TicketTypePending && tt.Status != models.TicketTypeActive {
				continue
			}
			if !seen[tt.EventID] {
				seen[tt.EventID] = true
				out = append(out, tt.EventID)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return nil
	})
	return out, err
}

// --- reservations ---

type memReservations struct{ s *MemoryStore }

func (r memReservations) Create(ctx context.Context, res *models.Reservation) error {
	return r.s.do(ctx, func() error {
		touch(&res.CreatedAt, &res.UpdatedAt)
		r.s.reservations[res.ID] = *res
		return nil
	})
}

func (r memReservations) Save(ctx context.Context, res *models.Reservation) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.reservations[res.ID]; !ok {
			return ErrNotFound
		}
		touch(&res.CreatedAt, &res.UpdatedAt)
		r.s.reservations[res.ID] = *res
		return nil
	})
}

func (r memReservations) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	var out *models.Reservation
	err := r.s.do(ctx, func() error {
		res, ok := r.s.reservations[id]
		if !ok {
			return ErrNotFound
		}
		out = &res
		return nil
	})
	return out, err
}

func (r memReservations) LockByID(ctx context.Context, id string) (*models.Reservation, error) {
	return r.FindByID(ctx, id)
}

func (r memReservations) FindActiveByTicketType(ctx context.Context, ticketTypeID uint) ([]models.Reservation, error) {
	return r.filter(ctx, 0, func(res models.Reservation) bool {
		return res.TicketTypeID == ticketTypeID && res.State == models.ReservationActive
	})
}

func (r memReservations) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	return r.filter(ctx, limit, func(res models.Reservation) bool {
		return res.State == models.ReservationActive && !res.ExpiresAt.After(now)
	})
}

func (r memReservations) filter(ctx context.Context, limit int, keep func(models.Reservation) bool) ([]models.Reservation, error) {
	var out []models.Reservation
	err := r.s.do(ctx, func() error {
		for _, res := range r.s.reservations {
			if keep(res) {
				out = append(out, res)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

// --- checkouts ---

type memCheckouts struct{ s *MemoryStore }

func (r memCheckouts) Create(ctx context.Context, c *models.Checkout) error {
	return r.s.do(ctx, func() error {
		touch(&c.CreatedAt, &c.UpdatedAt)
		r.s.checkouts[c.ID] = *c
		return nil
	})
}

func (r memCheckouts) Save(ctx context.Context, c *models.Checkout) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.checkouts[c.ID]; !ok {
			return ErrNotFound
		}
		touch(&c.CreatedAt, &c.UpdatedAt)
		r.s.checkouts[c.ID] = *c
		return nil
	})
}

func (r memCheckouts) FindByID(ctx context.Context, id string) (*models.Checkout, error) {
	var out *models.Checkout
	err := r.s.do(ctx, func() error {
		c, ok := r.s.checkouts[id]
		if !ok {
			return ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r memCheckouts) FindByReservationID(ctx context.Context, reservationID string) (*models.Checkout, error) {
	var out *models.Checkout
	err := r.s.do(ctx, func() error {
		for _, c := range r.s.checkouts {
			if c.ReservationID == reservationID {
				c := c
				out = &c
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

// --- purchases & tickets ---

type memPurchases struct{ s *MemoryStore }

func (r memPurchases) Create(ctx context.Context, p *models.Purchase) error {
	return r.s.do(ctx, func() error {
		r.s.nextPurchaseID++
		p.ID = r.s.nextPurchaseID
		touch(&p.CreatedAt, &p.UpdatedAt)
		r.s.purchases[p.ID] = stripRelations(*p)
		return nil
	})
}

func (r memPurchases) Save(ctx context.Context, p *models.Purchase) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.purchases[p.ID]; !ok {
			return ErrNotFound
		}
		touch(&p.CreatedAt, &p.UpdatedAt)
		r.s.purchases[p.ID] = stripRelations(*p)
		return nil
	})
}

func stripRelations(p models.Purchase) models.Purchase {
	p.TicketType = nil
	p.Tickets = nil
	return p
}

// hydrate attaches the ticket type and tickets, mirroring the gorm preloads.
func (r memPurchases) hydrate(p models.Purchase) models.Purchase {
	if tt, ok := r.s.ticketTypes[p.TicketTypeID]; ok {
		p.TicketType = &tt
	}
	for _, t := range r.s.tickets {
		if t.PurchaseID == p.ID {
			p.Tickets = append(p.Tickets, t)
		}
	}
	sort.Slice(p.Tickets, func(i, j int) bool { return p.Tickets[i].NumberInPurchase < p.Tickets[j].NumberInPurchase })
	return p
}

func (r memPurchases) FindByID(ctx context.Context, id uint) (*models.Purchase, error) {
	var out *models.Purchase
	err := r.s.do(ctx, func() error {
		p, ok := r.s.purchases[id]
		if !ok {
			return ErrNotFound
		}
		p = r.hydrate(p)
		out = &p
		return nil
	})
	return out, err
}

func (r memPurchases) FindByReservationID(ctx context.Context, reservationID string) (*models.Purchase, error) {
	var out *models.Purchase
	err := r.s.do(ctx, func() error {
		for _, p := range r.s.purchases {
			if p.ReservationID == reservationID {
				p := p
				out = &p
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r memPurchases) FindByUserID(ctx context.Context, userID string) ([]models.Purchase, error) {
	var out []models.Purchase
	err := r.s.do(ctx, func() error {
		for _, p := range r.s.purchases {
			if p.UserID == userID {
				out = append(out, r.hydrate(p))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		return nil
	})
	return out, err
}

func (r memPurchases) FindRecentApproved(ctx context.Context, ticketTypeIDs []uint, limit int) ([]models.Purchase, error) {
	var out []models.Purchase
	err := r.s.do(ctx, func() error {
		wanted := idSet(ticketTypeIDs)
		for _, p := range r.s.purchases {
			if wanted[p.TicketTypeID] && p.PaymentStatus == models.PaymentApproved {
				p := p
				if tt, ok := r.s.ticketTypes[p.TicketTypeID]; ok {
					p.TicketType = &tt
				}
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.After(out[j].UpdatedAt)
			}
			return out[i].ID > out[j].ID
		})
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r memPurchases) SalesByTicketType(ctx context.Context, ticketTypeIDs []uint) ([]TicketTypeSales, error) {
	var out []TicketTypeSales
	err := r.s.do(ctx, func() error {
		wanted := idSet(ticketTypeIDs)
		byType := map[uint]*TicketTypeSales{}
		for _, p := range r.s.purchases {
			if !wanted[p.TicketTypeID] || p.PaymentStatus != models.PaymentApproved {
				continue
			}
			row, ok := byType[p.TicketTypeID]
			if !ok {
				row = &TicketTypeSales{TicketTypeID: p.TicketTypeID, Revenue: decimal.Zero}
				byType[p.TicketTypeID] = row
			}
			row.Sold += int64(p.TicketQuantity)
			row.Revenue = row.Revenue.Add(p.TotalPrice)
		}
		for _, row := range byType {
			out = append(out, *row)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].TicketTypeID < out[j].TicketTypeID })
		return nil
	})
	return out, err
}

func (r memPurchases) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	return r.s.do(ctx, func() error {
		for i := range tickets {
			r.s.nextTicketID++
			tickets[i].ID = r.s.nextTicketID
			if tickets[i].CreatedAt.IsZero() {
				tickets[i].CreatedAt = time.Now()
			}
			r.s.tickets[tickets[i].ID] = tickets[i]
		}
		return nil
	})
}

func (r memPurchases) CountTicketsByTicketType(ctx context.Context, ticketTypeID uint) (int64, error) {
	var n int64
	err := r.s.do(ctx, func() error {
		for _, t := range r.s.tickets {
			if t.TicketTypeID == ticketTypeID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memPurchases) FindTicket(ctx context.Context, purchaseID, ticketID uint) (*models.Ticket, error) {
	var out *models.Ticket
	err := r.s.do(ctx, func() error {
		t, ok := r.s.tickets[ticketID]
		if !ok || t.PurchaseID != purchaseID {
			return ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func idSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// --- events ---

type memEvents struct{ s *MemoryStore }

func (r memEvents) Upsert(ctx context.Context, event *models.Event) error {
	return r.s.do(ctx, func() error {
		if existing, ok := r.s.events[event.ID]; ok {
			event.CreatedAt = existing.CreatedAt
		}
		touch(&event.CreatedAt, &event.UpdatedAt)
		r.s.events[event.ID] = *event
		return nil
	})
}

func (r memEvents) FindByID(ctx context.Context, id uint) (*models.Event, error) {
	var out *models.Event
	err := r.s.do(ctx, func() error {
		e, ok := r.s.events[id]
		if !ok {
			return ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/Eursukkul/ticketing-service/pkg/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultCheckoutTimeout = 600 * time.Second

type Selection struct {
	TicketTypeID   uint
	AmountSelected int
}

type Attendee struct {
	Name    string
	Surname string
	Email   string
}

func (a Attendee) validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Surname) == "" {
		return fmt.Errorf("%w: name and surname are required", ErrInvalidAttendee)
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalidAttendee)
	}
	return nil
}

// Verification reasons.
const (
	ReasonPaymentPending     = "PaymentPending"
	ReasonPaymentRejected    = "PaymentRejected"
	ReasonReservationExpired = "ReservationExpired"
)

type VerifyResult struct {
	Success    bool
	PurchaseID uint
	Status     models.PaymentStatus
	Reason     string
}

type PaymentProvider interface {
	CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error)
}

type PurchaseConfig struct {
	CheckoutTimeout       time.Duration
	MaxTicketsPerPurchase int
	ServiceFeeRate        decimal.Decimal
}

type PurchaseService interface {
	StartCheckout(ctx context.Context, user *models.User, selections []Selection) (*models.Checkout, error)
	SubmitAttendee(ctx context.Context, user *models.User, checkoutID string, attendee Attendee) (*models.Purchase, error)
	CancelCheckout(ctx context.Context, user *models.User, checkoutID string) error
	GetCheckout(ctx context.Context, user *models.User, checkoutID string) (*models.Checkout, error)
	CreatePurchase(ctx context.Context, user *models.User, ticketTypeID uint, quantity int) (*models.Purchase, error)
	CreatePreference(ctx context.Context, user *models.User, purchaseID uint) (string, error)
	VerifyPayment(ctx context.Context, paymentID string) (*VerifyResult, error)
	HandlePaymentNotification(ctx context.Context, paymentID string) error
	GetPurchase(ctx context.Context, user *models.User, purchaseID uint) (*models.Purchase, error)
	ListUserPurchases(ctx context.Context, user *models.User) ([]models.Purchase, error)
	GetTicket(ctx context.Context, user *models.User, purchaseID, ticketID uint) (*models.Ticket, error)
}

type purchaseService struct {
	tx           repository.TxManager
	ledger       Ledger
	holds        ReservationManager
	ticketTypes  repository.TicketTypeRepository
	reservations repository.ReservationRepository
	checkouts    repository.CheckoutRepository
	purchases    repository.PurchaseRepository
	payments     PaymentProvider
	publisher    Publisher
	clock        Clock
	cfg          PurchaseConfig
}

func NewPurchaseService(
	tx repository.TxManager,
	ledger Ledger,
	holds ReservationManager,
	ticketTypes repository.TicketTypeRepository,
	reservations repository.ReservationRepository,
	checkouts repository.CheckoutRepository,
	purchases repository.PurchaseRepository,
	payments PaymentProvider,
	publisher Publisher,
	clock Clock,
	cfg PurchaseConfig,
) PurchaseService {
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = DefaultCheckoutTimeout
	}
	if cfg.MaxTicketsPerPurchase <= 0 {
		cfg.MaxTicketsPerPurchase = 5
	}
	return &purchaseService{
		tx:           tx,
		ledger:       ledger,
		holds:        holds,
		ticketTypes:  ticketTypes,
		reservations: reservations,
		checkouts:    checkouts,
		purchases:    purchases,
		payments:     payments,
		publisher:    publisher,
		clock:        orSystem(clock),
		cfg:          cfg,
	}
}

func authenticated(user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrUnauthenticated
	}
	return nil
}

// StartCheckout reserves the first selected ticket type and opens a checkout in
// collecting_attendee_data. Only one ticket type is bought per checkout.
func (s *purchaseService) StartCheckout(ctx context.Context, user *models.User, selections []Selection) (*models.Checkout, error) {
	if err := authenticated(user); err != nil {
		return nil, err
	}
	var sel *Selection
	for i := range selections {
		if selections[i].AmountSelected > 0 {
			sel = &selections[i]
			break
		}
	}
	if sel == nil {
		return nil, ErrNoTicketsSelected
	}
	if sel.AmountSelected > s.cfg.MaxTicketsPerPurchase {
		return nil, fmt.Errorf("%w: at most %d tickets per purchase", ErrInvalidQuantity, s.cfg.MaxTicketsPerPurchase)
	}

	var checkout *models.Checkout
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.ledger.TryReserve(ctx, sel.TicketTypeID, user.ID, sel.AmountSelected)
		if err != nil {
			return err
		}
		tt, err := s.ticketTypes.FindByID(ctx, sel.TicketTypeID)
		if err != nil {
			return err
		}
		checkout = &models.Checkout{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			EventID:       tt.EventID,
			TicketTypeID:  tt.ID,
			ReservationID: res.ID,
			State:         models.CheckoutCollectingAttendeeData,
		}
		return s.checkouts.Create(ctx, checkout)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"checkout_id":    checkout.ID,
		"user_id":        user.ID,
		"ticket_type_id": checkout.TicketTypeID,
		"quantity":       sel.AmountSelected,
	}).Info("checkout started")
	return checkout, nil
}

// SubmitAttendee creates the pending purchase and starts the checkout timer. The
// reservation deadline is moved to the timer's deadline.
func (s *purchaseService) SubmitAttendee(ctx context.Context, user *models.User, checkoutID string, attendee Attendee) (*models.Purchase, error) {
	if err := authenticated(user); err != nil {
		return nil, err
	}
	if err := attendee.validate(); err != nil {
		return nil, err
	}

	var (
		purchase      *models.Purchase
		reservationID string
		lapsed        bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		co, err := s.ownedCheckout(ctx, user, checkoutID)
		if err != nil {
			return err
		}
		if co.State != models.CheckoutCollectingAttendeeData {
			return ErrInvalidCheckoutState
		}
		reservationID = co.ReservationID

		deadline := s.clock.Now().Add(s.cfg.CheckoutTimeout)
		if err := s.ledger.Extend(ctx, co.ReservationID, deadline); err != nil {
			if errors.Is(err, ErrReservationExpired) {
				lapsed = true
				return nil
			}
			return err
		}

		res, err := s.reservations.FindByID(ctx, co.ReservationID)
		if err != nil {
			return err
		}
		tt, err := s.ticketTypes.FindByID(ctx, co.TicketTypeID)
		if err != nil {
			return err
		}

		purchase = s.price(tt, res.Quantity)
		purchase.UserID = user.ID
		purchase.TicketTypeID = tt.ID
		purchase.ReservationID = res.ID
		purchase.PaymentStatus = models.PaymentPending
		purchase.AttendeeName = strings.TrimSpace(attendee.Name)
		purchase.AttendeeSurname = strings.TrimSpace(attendee.Surname)
		purchase.AttendeeEmail = strings.TrimSpace(attendee.Email)
		if err := s.purchases.Create(ctx, purchase); err != nil {
			return err
		}

		co.PurchaseID = &purchase.ID
		co.State = models.CheckoutAwaitingPayment
		co.ExpiresAt = &deadline
		return s.checkouts.Save(ctx, co)
	})
	if err != nil {
		return nil, err
	}
	if lapsed {
		if _, err := s.holds.Expire(ctx, reservationID); err != nil {
			return nil, err
		}
		return nil, ErrReservationExpired
	}

	// The purchase is already committed; a failed read only drops the nested type.
	if tt, err := s.ticketTypes.FindByID(ctx, purchase.TicketTypeID); err != nil {
		logrus.WithError(err).WithField("purchase_id", purchase.ID).Warn("failed to load ticket type for purchase")
	} else {
		purchase.TicketType = tt
	}
	logrus.WithFields(logrus.Fields{
		"checkout_id": checkoutID,
		"purchase_id": purchase.ID,
		"total_price": purchase.TotalPrice.StringFixed(2),
	}).Info("awaiting payment")
	return purchase, nil
}

// price computes the purchase totals for quantity tickets of tt.
func (s *purchaseService) price(tt *models.TicketType, quantity int) *models.Purchase {
	subtotal := tt.Price.Mul(decimal.NewFromInt(int64(quantity)))
	fee := subtotal.Mul(s.cfg.ServiceFeeRate).Round(2)
	discount := decimal.Zero
	return &models.Purchase{
		TicketQuantity:  quantity,
		UnitPrice:       tt.Price,
		ServiceFee:      fee,
		DiscountApplied: discount,
		TotalPrice:      subtotal.Add(fee).Sub(discount),
	}
}

func (s *purchaseService) CancelCheckout(ctx context.Context, user *models.User, checkoutID string) error {
	if err := authenticated(user); err != nil {
		return err
	}
	co, err := s.ownedCheckout(ctx, user, checkoutID)
	if err != nil {
		return err
	}
	if !co.IsOpen() {
		return ErrInvalidCheckoutState
	}
	return s.holds.Cancel(ctx, user.ID, co.ReservationID)
}

func (s *purchaseService) GetCheckout(ctx context.Context, user *models.User, checkoutID string) (*models.Checkout, error) {
	if err := authenticated(user); err != nil {
		return nil, err
	}
	co, err := s.ownedCheckout(ctx, user, checkoutID)
	if err != nil {
		return nil, err
	}
	if co.IsOpen() {
		// Lazily apply an elapsed deadline before reporting the state.
		if _, err := s.holds.Get(ctx, user.ID, co.ReservationID); err != nil {
			return nil, err
		}
		return s.ownedCheckout(ctx, user, checkoutID)
	}
	return co, nil
}

// CreatePurchase runs selection and attendee steps in one call, using the caller's
// profile as attendee data.
func (s *purchaseService) CreatePurchase(ctx context.Context, user *models.User, ticketTypeID uint, quantity int) (*models.Purchase, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	co, err := s.StartCheckout(ctx, user, []Selection{{TicketTypeID: ticketTypeID, AmountSelected: quantity}})
	if err != nil {
		return nil, err
	}
	p, err := s.SubmitAttendee(ctx, user, co.ID, Attendee{Name: user.Name, Surname: user.Surname, Email: user.Email})
	if err != nil {
		if cerr := s.holds.Cancel(ctx, user.ID, co.ReservationID); cerr != nil {
			logrus.WithError(cerr).WithField("checkout_id", co.ID).Error("failed to release reservation after attendee step failed")
		}
		return nil, err
	}
	return p, nil
}

// CreatePreference asks the provider for a payment redirect. No lock is held during
// the call.
func (s *purchaseService) CreatePreference(ctx context.Context, user *models.User, purchaseID uint) (string, error) {
	if err := authenticated(user); err != nil {
		return "", err
	}
	p, err := s.ownedPurchase(ctx, user, purchaseID)
	if err != nil {
		return "", err
	}
	switch p.PaymentStatus {
	case models.PaymentRejected:
		return "", ErrPaymentRejected
	case models.PaymentApproved:
		return "", ErrPurchaseFinalized
	}

	res, err := s.reservations.FindByID(ctx, p.ReservationID)
	if err != nil {
		return "", err
	}
	if res.State != models.ReservationActive || res.ExpiredAt(s.clock.Now()) {
		return "", ErrReservationExpired
	}

	title := "Tickets"
	if p.TicketType != nil {
		title = p.TicketType.Name
	}
	items := []payment.Item{{Title: title, Quantity: p.TicketQuantity, UnitPrice: p.UnitPrice}}
	if p.ServiceFee.IsPositive() {
		items = append(items, payment.Item{Title: "Service fee", Quantity: 1, UnitPrice: p.ServiceFee})
	}
	pref, err := s.payments.CreatePreference(ctx, payment.PreferenceRequest{
		ExternalReference: payment.ExternalReference(p.ID),
		Items:             items,
		PayerEmail:        p.AttendeeEmail,
		ExpiresAt:         res.ExpiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("create payment preference: %w", err)
	}
	return pref.InitPoint, nil
}

// VerifyPayment looks the payment up at the provider and finalizes the purchase it
// references. Repeated calls for a finalized purchase report the stored outcome.
func (s *purchaseService) VerifyPayment(ctx context.Context, paymentID string) (*VerifyResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ErrInvalidPayment
	}
	pay, err := s.payments.GetPayment(ctx, paymentID)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		return nil, ErrInvalidPayment
	}
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	id, err := strconv.ParseUint(pay.ExternalReference, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: external reference %q", ErrInvalidPayment, pay.ExternalReference)
	}
	purchaseID := uint(id)

	switch {
	case pay.IsApproved():
		return s.approve(ctx, purchaseID, paymentID)
	case pay.IsRejected():
		return s.reject(ctx, purchaseID, paymentID)
	default:
		p, err := s.findPurchase(ctx, purchaseID)
		if err != nil {
			return nil, err
		}
		return outcome(p, ReasonPaymentPending), nil
	}
}

// HandlePaymentNotification is VerifyPayment driven by the provider's webhook relay.
func (s *purchaseService) HandlePaymentNotification(ctx context.Context, paymentID string) error {
	result, err := s.VerifyPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"payment_id":  paymentID,
		"purchase_id": result.PurchaseID,
		"status":      result.Status,
		"reason":      result.Reason,
	}).Info("payment notification processed")
	return nil
}

func outcome(p *models.Purchase, pendingReason string) *VerifyResult {
	r := &VerifyResult{PurchaseID: p.ID, Status: p.PaymentStatus}
	switch p.PaymentStatus {
	case models.PaymentApproved:
		r.Success = true
	case models.PaymentRejected:
		r.Reason = ReasonPaymentRejected
	default:
		r.Reason = pendingReason
	}
	return r
}

func (s *purchaseService) approve(ctx context.Context, purchaseID uint, paymentID string) (*VerifyResult, error) {
	var (
		result   *VerifyResult
		approved *models.Purchase
		rejected *models.Purchase
		changes  []StatusChange
		refund   bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.findPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.IsFinal() {
			result = outcome(p, "")
			refund = p.PaymentStatus == models.PaymentRejected && !samePayment(p, paymentID)
			return nil
		}

		confirmed, confirmErr := s.ledger.Confirm(ctx, p.ReservationID)
		if confirmErr != nil && !errors.Is(confirmErr, ErrReservationExpired) {
			return confirmErr
		}

		// The event's queue is locked now; re-read to see a concurrent finalization.
		p, err = s.findPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.IsFinal() {
			result = outcome(p, "")
			return nil
		}

		p.PaymentID = &paymentID
		if confirmErr != nil {
			p.PaymentStatus = models.PaymentRejected
			if err := s.purchases.Save(ctx, p); err != nil {
				return err
			}
			if _, err := abandonCheckout(ctx, s.checkouts, s.purchases, p.ReservationID, models.CheckoutExpired); err != nil {
				return err
			}
			rejected, refund = p, true
			result = &VerifyResult{PurchaseID: p.ID, Status: p.PaymentStatus, Reason: ReasonReservationExpired}
			return nil
		}

		if err := s.issueTickets(ctx, p); err != nil {
			return err
		}
		p.PaymentStatus = models.PaymentApproved
		if err := s.purchases.Save(ctx, p); err != nil {
			return err
		}
		if err := s.completeCheckout(ctx, p.ReservationID); err != nil {
			return err
		}
		approved, changes = p, confirmed.Changes
		result = outcome(p, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if approved != nil {
		logrus.WithFields(logrus.Fields{
			"purchase_id": approved.ID,
			"payment_id":  paymentID,
			"tickets":     approved.TicketQuantity,
		}).Info("purchase approved")
		publishPurchase(s.publisher, approved, now)
		publishStatusChanges(s.publisher, changes, now)
	}
	if rejected != nil {
		publishPurchase(s.publisher, rejected, now)
	}
	if refund {
		logrus.WithFields(logrus.Fields{
			"purchase_id": purchaseID,
			"payment_id":  paymentID,
		}).Warn("payment approved after reservation ended, refund required")
		publish(s.publisher, RoutingPaymentNeedsRefund, PurchaseEvent{
			PurchaseID: purchaseID, PaymentID: paymentID, PaymentStatus: models.PaymentRejected, OccurredAt: now,
		})
	}
	return result, nil
}

func samePayment(p *models.Purchase, paymentID string) bool {
	return p.PaymentID != nil && *p.PaymentID == paymentID
}

// issueTickets materializes one ticket per unit. The event's queue lock is held, so
// the per-type numbering cannot race.
func (s *purchaseService) issueTickets(ctx context.Context, p *models.Purchase) error {
	issued, err := s.purchases.CountTicketsByTicketType(ctx, p.TicketTypeID)
	if err != nil {
		return err
	}
	tickets := make([]models.Ticket, p.TicketQuantity)
	for i := range tickets {
		tickets[i] = models.Ticket{
			PurchaseID:         p.ID,
			TicketTypeID:       p.TicketTypeID,
			QRCode:             uuid.NewString(),
			NumberInPurchase:   i + 1,
			NumberInTicketType: int(issued) + i + 1,
		}
	}
	if err := s.purchases.CreateTickets(ctx, tickets); err != nil {
		return err
	}
	p.Tickets = tickets
	return nil
}

func (s *purchaseService) completeCheckout(ctx context.Context, reservationID string) error {
	co, err := s.checkouts.FindByReservationID(ctx, reservationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	co.State = models.CheckoutCompleted
	return s.checkouts.Save(ctx, co)
}

func (s *purchaseService) reject(ctx context.Context, purchaseID uint, paymentID string) (*VerifyResult, error) {
	var (
		result   *VerifyResult
		rejected *models.Purchase
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.findPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.IsFinal() {
			result = outcome(p, "")
			return nil
		}
		if _, err := s.ledger.Release(ctx, p.ReservationID); err != nil {
			return err
		}
		p, err = s.findPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.IsFinal() {
			result = outcome(p, "")
			return nil
		}

		p.PaymentID = &paymentID
		p.PaymentStatus = models.PaymentRejected
		if err := s.purchases.Save(ctx, p); err != nil {
			return err
		}
		if _, err := abandonCheckout(ctx, s.checkouts, s.purchases, p.ReservationID, models.CheckoutFailed); err != nil {
			return err
		}
		rejected = p
		result = outcome(p, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		logrus.WithFields(logrus.Fields{
			"purchase_id": rejected.ID,
			"payment_id":  paymentID,
		}).Info("purchase rejected by payment provider")
		publishPurchase(s.publisher, rejected, s.clock.Now())
	}
	return result, nil
}

func (s *purchaseService) GetPurchase(ctx context.Context, user *models.User, purchaseID uint) (*models.Purchase, error) {
	if err := authenticated(user); err != nil {
		return nil, err
	}
	return s.ownedPurchase(ctx, user, purchaseID)
}

func (s *purchaseService) ListUserPurchases(ctx context.Context, user *models.User) ([]models.Purchase, error) {
	if err := authenticated(user); err != nil {
		return nil, err
	}
	return s.purchases.FindByUserID(ctx, user.ID)
}

func (s *purchaseService) GetTicket(ctx context.Context, user *models.User, purchaseID, ticketID uint) (*models.Ticket, error) {
	if err := authenticated(user); err != nil {
		return nil, err
	}
	p, err := s.ownedPurchase(ctx, user, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus != models.PaymentApproved {
		return nil, ErrTicketNotFound
	}
	t, err := s.purchases.FindTicket(ctx, purchaseID, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	return t, err
}

func (s *purchaseService) findPurchase(ctx context.Context, id uint) (*models.Purchase, error) {
	p, err := s.purchases.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPurchaseNotFound
	}
	return p, err
}

// ownedPurchase hides purchases of other users behind ErrPurchaseNotFound, except
// for admins.
func (s *purchaseService) ownedPurchase(ctx context.Context, user *models.User, id uint) (*models.Purchase, error) {
	p, err := s.findPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != user.ID && !user.IsAdmin() {
		return nil, ErrPurchaseNotFound
	}
	return p, nil
}

func (s *purchaseService) ownedCheckout(ctx context.Context, user *models.User, id string) (*models.Checkout, error) {
	co, err := s.checkouts.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCheckoutNotFound
	}
	if err != nil {
		return nil, err
	}
	if co.UserID != user.ID {
		return nil, ErrCheckoutNotFound
	}
	return co, nil
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/ticketing-service/internal/monitoring"
)

const (
	StatusApproved    = "approved"
	StatusAuthorized  = "authorized"
	StatusPending     = "pending"
	StatusInProcess   = "in_process"
	StatusInMediation = "in_mediation"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

var (
	ErrPaymentNotFound = errors.New("payment not found at provider")
	ErrProvider        = errors.New("payment provider error")
)

type Item struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type PreferenceRequest struct {
	ExternalReference string
	Items             []Item
	PayerEmail        string
	ExpiresAt         time.Time
}

type Preference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

type Payment struct {
	ID                string
	Status            string
	ExternalReference string
}

func (p *Payment) IsApproved() bool {
	return p.Status == StatusApproved
}

func (p *Payment) IsRejected() bool {
	switch p.Status {
	case StatusRejected, StatusCancelled, StatusRefunded, StatusChargedBack:
		return true
	}
	return false
}

type Config struct {
	BaseURL         string
	AccessToken     string
	SuccessURL      string
	FailureURL      string
	NotificationURL string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
}

// Client talks to a MercadoPago-style checkout API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type preferenceBody struct {
	Items             []Item            `json:"items"`
	ExternalReference string            `json:"external_reference"`
	Payer             *payerBody        `json:"payer,omitempty"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Expires           bool              `json:"expires"`
	ExpirationDateTo  *time.Time        `json:"expiration_date_to,omitempty"`
}

type payerBody struct {
	Email string `json:"email"`
}

func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body := preferenceBody{
		Items:             req.Items,
		ExternalReference: req.ExternalReference,
		NotificationURL:   c.cfg.NotificationURL,
		BackURLs: map[string]string{
			"success": c.cfg.SuccessURL,
			"failure": c.cfg.FailureURL,
			"pending": c.cfg.SuccessURL,
		},
		AutoReturn: "approved",
	}
	if req.PayerEmail != "" {
		body.Payer = &payerBody{Email: req.PayerEmail}
	}
	if !req.ExpiresAt.IsZero() {
		body.Expires = true
		body.ExpirationDateTo = &req.ExpiresAt
	}

	// Every retry carries the same key so the provider creates one preference.
	header := http.Header{}
	header.Set("X-Idempotency-Key", IdempotencyKey(req.ExternalReference))

	var pref Preference
	if err := c.do(ctx, "create_preference", http.MethodPost, "/checkout/preferences", header, body, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

type paymentBody struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var raw paymentBody
	if err := c.do(ctx, "get_payment", http.MethodGet, "/v1/payments/"+paymentID, nil, nil, &raw); err != nil {
		return nil, err
	}
	return &Payment{ID: raw.ID.String(), Status: raw.Status, ExternalReference: raw.ExternalReference}, nil
}

// do sends one logical request, retrying transport failures, 429 and 5xx with
// exponential backoff. Other statuses end the retry loop.
func (c *Client) do(ctx context.Context, operation, method, path string, header http.Header, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
	}

	started := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		err := c.send(ctx, method, path, header, payload, out)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return backoff.Permanent(perm.err)
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).Warn("payment provider call failed, retrying")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		monitoring.RecordPaymentRequest(operation, "error", started)
		return fmt.Errorf("%s: %w", operation, err)
	}
	monitoring.RecordPaymentRequest(operation, "ok", started)
	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (c *Client) send(ctx context.Context, method, path string, header http.Header, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return &permanentError{err: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &permanentError{err: ctx.Err()}
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &permanentError{err: ErrPaymentNotFound}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &permanentError{err: fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, bytes.TrimSpace(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &permanentError{err: fmt.Errorf("decode provider response: %w", err)}
	}
	return nil
}

// ExternalReference formats a purchase id the way it is sent to the provider.
func ExternalReference(purchaseID uint) string {
	return strconv.FormatUint(uint64(purchaseID), 10)
}

// IdempotencyKey is the key sent when creating the preference for an external reference.
func IdempotencyKey(externalReference string) string {
	return "preference-" + externalReference
}

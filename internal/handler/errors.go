package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/Eursukkul/ticketing-service/internal/dto"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"github.com/Eursukkul/ticketing-service/pkg/payment"
	"github.com/labstack/echo/v4"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{service.ErrOutOfStock, http.StatusConflict, "OutOfStock"},
	{service.ErrTicketTypeNotActive, http.StatusConflict, "TicketTypeNotActive"},
	{service.ErrReservationExpired, http.StatusGone, "ReservationExpired"},
	{service.ErrPaymentRejected, http.StatusPaymentRequired, "PaymentRejected"},
	{service.ErrCloseWithActiveReservations, http.StatusConflict, "CloseWithActiveReservations"},

	{service.ErrTicketTypeNotFound, http.StatusNotFound, "TicketTypeNotFound"},
	{service.ErrReservationNotFound, http.StatusNotFound, "ReservationNotFound"},
	{service.ErrCheckoutNotFound, http.StatusNotFound, "CheckoutNotFound"},
	{service.ErrPurchaseNotFound, http.StatusNotFound, "PurchaseNotFound"},
	{service.ErrTicketNotFound, http.StatusNotFound, "TicketNotFound"},

	{service.ErrTicketTypeClosed, http.StatusConflict, "TicketTypeClosed"},
	{service.ErrTicketTypeInUse, http.StatusConflict, "TicketTypeInUse"},
	{service.ErrPurchaseFinalized, http.StatusConflict, "PurchaseFinalized"},
	{service.ErrInvalidCheckoutState, http.StatusConflict, "InvalidCheckoutState"},

	{service.ErrInvalidQuantity, http.StatusBadRequest, "InvalidQuantity"},
	{service.ErrNoTicketsSelected, http.StatusBadRequest, "NoTicketsSelected"},
	{service.ErrInvalidAttendee, http.StatusBadRequest, "InvalidAttendee"},
	{service.ErrInvalidTicketType, http.StatusBadRequest, "InvalidTicketType"},
	{service.ErrInvalidPayment, http.StatusBadRequest, "InvalidPayment"},

	{service.ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
	{service.ErrForbidden, http.StatusForbidden, "Forbidden"},

	{payment.ErrProvider, http.StatusBadGateway, "PaymentProviderUnavailable"},
}

// respondError converts service errors to HTTP errors. Unknown errors pass through
// and render as 500.
func respondError(c echo.Context, err error) error {
	var blocked *service.CloseBlockedError
	if errors.As(err, &blocked) {
		secs := int(math.Ceil(blocked.RetryAfter.Seconds()))
		c.Response().Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return echo.NewHTTPError(m.status, dto.ErrorResponse{Message: err.Error(), Code: m.code}).SetInternal(err)
		}
	}
	return err
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{Message: msg, Code: "BadRequest"})
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid " + name)
	}
	return uint(id), nil
}

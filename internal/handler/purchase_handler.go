package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/Eursukkul/ticketing-service/internal/dto"
	"github.com/Eursukkul/ticketing-service/internal/middleware"
	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"github.com/Eursukkul/ticketing-service/pkg/ticketpdf"
	"github.com/labstack/echo/v4"
)

const mimeApplicationPDF = "application/pdf"

type PurchaseHandler struct {
	svc service.PurchaseService
}

func NewPurchaseHandler(svc service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{svc: svc}
}

// RegisterRoutes mounts the buyer routes on g, which must already authenticate.
// limiter guards the routes that open new holds.
func (h *PurchaseHandler) RegisterRoutes(g *echo.Group, limiter echo.MiddlewareFunc) {
	g.POST("/purchase", h.CreatePurchase, limiter)
	g.POST("/purchase/create_preference", h.CreatePreference)
	g.GET("/purchase/verify/:paymentId", h.VerifyPayment)
	g.GET("/purchase/:id", h.GetPurchase)
	g.GET("/purchase/:id/ticket/:ticketId", h.GetTicket)
	g.GET("/user/me/purchases", h.ListMyPurchases)

	g.POST("/checkout", h.StartCheckout, limiter)
	g.GET("/checkout/:id", h.GetCheckout)
	g.POST("/checkout/:id/attendee", h.SubmitAttendee)
	g.DELETE("/checkout/:id", h.CancelCheckout)
}

func (h *PurchaseHandler) CreatePurchase(c echo.Context) error {
	var req dto.CreatePurchaseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if req.TicketTypeID == 0 {
		return badRequest("ticketTypeId is required")
	}

	p, err := h.svc.CreatePurchase(c.Request().Context(), middleware.CurrentUser(c), req.TicketTypeID, req.TicketQuantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.APIResponse{Message: "Purchase created", Data: dto.ToPurchaseResponse(p)})
}

func (h *PurchaseHandler) CreatePreference(c echo.Context) error {
	var req dto.CreatePreferenceRequest
	if err := c.Bind(&req); err != nil || req.ID == 0 {
		return badRequest("purchase id is required")
	}

	initPoint, err := h.svc.CreatePreference(c.Request().Context(), middleware.CurrentUser(c), req.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.PreferenceResponse{InitPoint: initPoint})
}

func (h *PurchaseHandler) VerifyPayment(c echo.Context) error {
	result, err := h.svc.VerifyPayment(c.Request().Context(), c.Param("paymentId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ToVerifyResponse(result))
}

func (h *PurchaseHandler) GetPurchase(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPurchase(c.Request().Context(), middleware.CurrentUser(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Purchase found", Data: dto.ToPurchaseResponse(p)})
}

func (h *PurchaseHandler) GetTicket(c echo.Context) error {
	purchaseID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ticketID, err := parseID(c, "ticketId")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTicket(c.Request().Context(), middleware.CurrentUser(c), purchaseID, ticketID)
	if err != nil {
		return respondError(c, err)
	}
	if !acceptsPDF(c) {
		return c.JSON(http.StatusOK, dto.APIResponse{Message: "Ticket found", Data: dto.ToTicketResponse(t)})
	}

	p, err := h.svc.GetPurchase(c.Request().Context(), middleware.CurrentUser(c), purchaseID)
	if err != nil {
		return respondError(c, err)
	}
	var buf bytes.Buffer
	if err := ticketpdf.Render(&buf, printableTicket(p, t)); err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="ticket-%d-%d.pdf"`, p.ID, t.ID))
	return c.Blob(http.StatusOK, mimeApplicationPDF, buf.Bytes())
}

// acceptsPDF reports whether the client asked for the printable ticket.
func acceptsPDF(c echo.Context) bool {
	for _, part := range strings.Split(c.Request().Header.Get(echo.HeaderAccept), ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(mediaType), mimeApplicationPDF) {
			return true
		}
	}
	return false
}

func printableTicket(p *models.Purchase, t *models.Ticket) ticketpdf.Ticket {
	out := ticketpdf.Ticket{
		PurchaseID:         p.ID,
		TicketID:           t.ID,
		AttendeeName:       strings.TrimSpace(p.AttendeeName + " " + p.AttendeeSurname),
		AttendeeEmail:      p.AttendeeEmail,
		NumberInPurchase:   t.NumberInPurchase,
		NumberInTicketType: t.NumberInTicketType,
		QRCode:             t.QRCode,
		IssuedAt:           t.CreatedAt,
	}
	if p.TicketType != nil {
		out.EventID = p.TicketType.EventID
		out.TicketTypeName = p.TicketType.Name
	}
	return out
}

func (h *PurchaseHandler) ListMyPurchases(c echo.Context) error {
	purchases, err := h.svc.ListUserPurchases(c.Request().Context(), middleware.CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Purchases found", Data: dto.ToPurchaseResponses(purchases)})
}

func (h *PurchaseHandler) StartCheckout(c echo.Context) error {
	var req dto.StartCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	selections := make([]service.Selection, len(req.Selections))
	for i, s := range req.Selections {
		selections[i] = service.Selection{TicketTypeID: s.TicketTypeID, AmountSelected: s.AmountSelected}
	}

	co, err := h.svc.StartCheckout(c.Request().Context(), middleware.CurrentUser(c), selections)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.APIResponse{Message: "Checkout started", Data: dto.ToCheckoutResponse(co)})
}

func (h *PurchaseHandler) GetCheckout(c echo.Context) error {
	co, err := h.svc.GetCheckout(c.Request().Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Checkout found", Data: dto.ToCheckoutResponse(co)})
}

func (h *PurchaseHandler) SubmitAttendee(c echo.Context) error {
	var req dto.AttendeeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	p, err := h.svc.SubmitAttendee(c.Request().Context(), middleware.CurrentUser(c), c.Param("id"), service.Attendee{
		Name:    req.Name,
		Surname: req.Surname,
		Email:   req.Email,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.APIResponse{Message: "Awaiting payment", Data: dto.ToPurchaseResponse(p)})
}

func (h *PurchaseHandler) CancelCheckout(c echo.Context) error {
	if err := h.svc.CancelCheckout(c.Request().Context(), middleware.CurrentUser(c), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Checkout cancelled"})
}

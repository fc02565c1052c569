package handler

import (
	"net/http"
	"strconv"

	"github.com/Eursukkul/ticketing-service/internal/dto"
	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"github.com/labstack/echo/v4"
)

type TicketTypeHandler struct {
	svc   service.TicketTypeService
	clock service.Clock
}

func NewTicketTypeHandler(svc service.TicketTypeService, clock service.Clock) *TicketTypeHandler {
	if clock == nil {
		clock = service.SystemClock()
	}
	return &TicketTypeHandler{svc: svc, clock: clock}
}

// RegisterRoutes mounts reads publicly and writes behind the admin middleware chain.
func (h *TicketTypeHandler) RegisterRoutes(e *echo.Echo, admin ...echo.MiddlewareFunc) {
	g := e.Group("/event/:eventId")
	g.GET("/ticketType", h.List)
	g.GET("/ticketType/:id", h.Get)

	a := g.Group("", admin...)
	a.POST("/ticketType", h.Create)
	a.PATCH("/ticketType/:id", h.Update)
	a.DELETE("/ticketType/:id", h.Delete)
	a.PATCH("/ticketType/:id/close", h.Close)
	a.GET("/stats", h.Stats)
}

func (h *TicketTypeHandler) List(c echo.Context) error {
	eventID, err := parseID(c, "eventId")
	if err != nil {
		return err
	}
	types, err := h.svc.List(c.Request().Context(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Ticket types found", Data: dto.ToTicketTypeResponses(types)})
}

func (h *TicketTypeHandler) Get(c echo.Context) error {
	eventID, id, err := parseIDs(c)
	if err != nil {
		return err
	}
	tt, err := h.svc.Get(c.Request().Context(), eventID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Ticket type found", Data: dto.ToTicketTypeResponse(tt)})
}

func (h *TicketTypeHandler) Create(c echo.Context) error {
	eventID, err := parseID(c, "eventId")
	if err != nil {
		return err
	}
	var req dto.CreateTicketTypeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	tt, err := h.svc.Create(c.Request().Context(), eventID, service.TicketTypeInput{
		Name:                req.Name,
		Price:               req.Price,
		MaxQuantity:         req.MaxQuantity,
		SaleMode:            models.SaleMode(req.SaleMode),
		BeginDatetime:       req.BeginDatetime,
		FinishDatetime:      req.FinishDatetime,
		IsManuallyActivated: req.IsManuallyActivated,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.APIResponse{Message: "Ticket type created", Data: dto.ToTicketTypeResponse(tt)})
}

func (h *TicketTypeHandler) Update(c echo.Context) error {
	eventID, id, err := parseIDs(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketTypeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	in := service.TicketTypeUpdate{
		Name:                req.Name,
		Price:               req.Price,
		MaxQuantity:         req.MaxQuantity,
		BeginDatetime:       req.BeginDatetime,
		FinishDatetime:      req.FinishDatetime,
		IsManuallyActivated: req.IsManuallyActivated,
	}
	if req.SaleMode != nil {
		mode := models.SaleMode(*req.SaleMode)
		in.SaleMode = &mode
	}

	tt, err := h.svc.Update(c.Request().Context(), eventID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Ticket type updated", Data: dto.ToTicketTypeResponse(tt)})
}

func (h *TicketTypeHandler) Delete(c echo.Context) error {
	eventID, id, err := parseIDs(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), eventID, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Ticket type deleted"})
}

func (h *TicketTypeHandler) Close(c echo.Context) error {
	eventID, id, err := parseIDs(c)
	if err != nil {
		return err
	}
	result, err := h.svc.Close(c.Request().Context(), eventID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Ticket type closed", Data: dto.ToCloseResponse(result)})
}

func (h *TicketTypeHandler) Stats(c echo.Context) error {
	eventID, err := parseID(c, "eventId")
	if err != nil {
		return err
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			return badRequest("limit must be between 1 and 100")
		}
		limit = n
	}

	stats, err := h.svc.Stats(c.Request().Context(), eventID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.APIResponse{Message: "Event stats", Data: dto.ToEventStatsResponse(stats, h.clock.Now())})
}

func parseIDs(c echo.Context) (uint, uint, error) {
	eventID, err := parseID(c, "eventId")
	if err != nil {
		return 0, 0, err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	return eventID, id, nil
}

package app

import (
	"net/http"

	"github.com/Eursukkul/ticketing-service/internal/handler"
	"github.com/Eursukkul/ticketing-service/internal/middleware"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const serviceName = "ticketing-service"

type RouterConfig struct {
	JWTSecret string
	RateLimit middleware.RateLimitConfig
	// Redis backs the checkout limiter. Leave nil to limit in memory.
	Redis redis.Cmdable
}

// NewRouter builds the HTTP surface over the given services.
func NewRouter(cfg RouterConfig, purchases service.PurchaseService, ticketTypes service.TicketTypeService, clock service.Clock) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(echoMw.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := middleware.JWTAuth(cfg.JWTSecret)

	handler.NewTicketTypeHandler(ticketTypes, clock).RegisterRoutes(e, auth, middleware.RequireAdmin)
	handler.NewPurchaseHandler(purchases).RegisterRoutes(
		e.Group("", auth),
		middleware.CheckoutRateLimit(cfg.RateLimit, cfg.Redis),
	)
	return e
}

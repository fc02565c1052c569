package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Eursukkul/ticketing-service/internal/dto"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const rateKeyPrefix = "ticketing:ratelimit:checkout"

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

func tooManyRequests(c echo.Context, retryAfter time.Duration) error {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	return echo.NewHTTPError(http.StatusTooManyRequests, dto.ErrorResponse{Message: "rate limit exceeded", Code: "TooManyRequests"})
}

func rateKey(c echo.Context) string {
	if u := CurrentUser(c); u != nil {
		return "user:" + u.ID
	}
	return "ip:" + c.RealIP()
}

// CheckoutRateLimit limits how many holds one user may open per window. Counting is
// shared through Redis when a client is given, otherwise it is per process.
func CheckoutRateLimit(cfg RateLimitConfig, rdb redis.Cmdable) echo.MiddlewareFunc {
	if !cfg.Enabled || cfg.Limit <= 0 || cfg.Window <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if rdb == nil {
		return memoryRateLimit(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("%s:%s", rateKeyPrefix, rateKey(c))
			count, ttl, err := hit(c.Request().Context(), rdb, key, cfg.Window)
			if err != nil {
				// Fail open; Redis is only an abuse guard.
				logrus.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
				return next(c)
			}

			remaining := cfg.Limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if int(count) > cfg.Limit {
				return tooManyRequests(c, ttl)
			}
			return next(c)
		}
	}
}

// hit counts one request in the current fixed window and returns the count and the
// time left in the window.
func hit(ctx context.Context, rdb redis.Cmdable, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// Key lost its expiry; restart the window.
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}

func memoryRateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := echoMw.NewRateLimiterMemoryStoreWithConfig(echoMw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.Limit) / cfg.Window.Seconds()),
		Burst:     cfg.Limit,
		ExpiresIn: cfg.Window,
	})
	return echoMw.RateLimiterWithConfig(echoMw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return rateKey(c), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return tooManyRequests(c, cfg.Window/time.Duration(cfg.Limit))
		},
	})
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eursukkul/ticketing-service/config"
	"github.com/Eursukkul/ticketing-service/internal/app"
	"github.com/Eursukkul/ticketing-service/internal/consumer"
	"github.com/Eursukkul/ticketing-service/internal/middleware"
	"github.com/Eursukkul/ticketing-service/internal/repository"
	"github.com/Eursukkul/ticketing-service/internal/service"
	"github.com/Eursukkul/ticketing-service/pkg/database"
	"github.com/Eursukkul/ticketing-service/pkg/payment"
	"github.com/Eursukkul/ticketing-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stores app.Stores
	switch cfg.StorageDriver {
	case "memory":
		logrus.Warn("using in-memory storage; data is lost on restart")
		stores = app.MemoryStores(repository.NewMemoryStore())
	default:
		stores = app.PostgresStores(database.NewPostgresDB(cfg.DSN()))
	}

	var publisher service.Publisher = rabbitmq.LogPublisher{}
	if cfg.RabbitEnabled {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL)
		if err != nil {
			logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer p.Close()
		publisher = p
	}

	payments := payment.NewClient(payment.Config{
		BaseURL:         cfg.Payment.BaseURL,
		AccessToken:     cfg.Payment.AccessToken,
		SuccessURL:      cfg.Payment.SuccessURL,
		FailureURL:      cfg.Payment.FailureURL,
		NotificationURL: cfg.Payment.NotificationURL,
		Timeout:         cfg.Payment.Timeout,
		MaxRetries:      cfg.Payment.MaxRetries,
	})

	svcs := app.NewServices(stores, payments, publisher, service.SystemClock(), cfg)

	routerCfg := app.RouterConfig{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.RateLimitConfig{
			Enabled: cfg.RateLimit.Enabled,
			Limit:   cfg.RateLimit.Limit,
			Window:  cfg.RateLimit.Window,
		},
	}
	if rdb := connectRedis(ctx, cfg); rdb != nil {
		defer rdb.Close()
		routerCfg.Redis = rdb
	}
	e := app.NewRouter(routerCfg, svcs.Purchases, svcs.TicketTypes, service.SystemClock())

	workers := []app.Worker{
		{Name: "reservation sweeper", Run: func(ctx context.Context) error {
			return svcs.Reservations.Run(ctx, cfg.SweepInterval)
		}},
		{Name: "ticket type lifecycle", Run: func(ctx context.Context) error {
			return svcs.Lifecycle.Run(ctx, cfg.LifecycleInterval)
		}},
	}

	if cfg.RabbitEnabled {
		mqConsumer, err := rabbitmq.NewConsumer(cfg.RabbitURL)
		if err != nil {
			logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer mqConsumer.Close()

		msgs, err := mqConsumer.Consume()
		if err != nil {
			logrus.Fatalf("failed to start consuming: %v", err)
		}
		mc := consumer.NewMessageConsumer(stores.Events, svcs.Purchases)
		workers = append(workers, app.Worker{Name: "message consumer", Run: func(ctx context.Context) error {
			return mc.Run(ctx, msgs)
		}})
	}

	if err := app.New(e, ":"+cfg.ServerPort, workers...).Run(ctx); err != nil {
		logrus.WithError(err).Fatal("ticketing service stopped")
	}
	logrus.Info("ticketing service stopped")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("invalid LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// connectRedis returns nil when Redis is unreachable; the checkout limiter then
// falls back to memory.
func connectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if !cfg.RateLimit.Enabled || cfg.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logrus.WithError(err).Warn("redis unavailable, rate limiting in memory")
		_ = rdb.Close()
		return nil
	}
	return rdb
}

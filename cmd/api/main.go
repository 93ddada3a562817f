package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tundeoa/sokohub-backend/api/middleware"
	"github.com/tundeoa/sokohub-backend/api/routes"
	"github.com/tundeoa/sokohub-backend/internal/cart"
	"github.com/tundeoa/sokohub-backend/internal/checkout"
	"github.com/tundeoa/sokohub-backend/internal/inventory"
	"github.com/tundeoa/sokohub-backend/internal/notifications"
	"github.com/tundeoa/sokohub-backend/internal/orders"
	"github.com/tundeoa/sokohub-backend/internal/products"
	"github.com/tundeoa/sokohub-backend/internal/settlement"
	"github.com/tundeoa/sokohub-backend/pkg/config"
	"github.com/tundeoa/sokohub-backend/pkg/db"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
	"github.com/tundeoa/sokohub-backend/pkg/metrics"
	"github.com/tundeoa/sokohub-backend/pkg/migrate"
	"github.com/tundeoa/sokohub-backend/pkg/outbox"
	"github.com/tundeoa/sokohub-backend/pkg/paystack"
	"github.com/tundeoa/sokohub-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paystackClient, err := paystack.NewClient(context.Background(), cfg.Paystack, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.NewHTTPMetrics(registry)
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	gormDB := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	productsRepo := products.NewRepository(gormDB)

	inventoryService, err := inventory.NewService(gormDB)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		productsRepo,
		inventoryService,
		paystackClient,
		cfg.Checkout,
		cfg.Paystack.CallbackURL,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.Deps{
		Repo:      settlement.NewRepository(gormDB),
		Cart:      cart.NewRepository(gormDB),
		Inventory: inventoryService,
		Gateway:   paystackClient,
		Tx:        dbClient,
		Outbox:    outboxService,
		Notifier:  notificationsService,
		Claims:    redisClient,
		Metrics:   settlementMetrics,
		Config:    cfg.Checkout,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(
		orders.NewRepository(gormDB),
		dbClient,
		outboxService,
		notificationsService,
		cfg.Checkout,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		RateLimiter:    redisClient,
		Paystack:       paystackClient,
		Checkout:       checkoutService,
		Settlement:     settlementService,
		Orders:         ordersService,
		Notifications:  notificationsService,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CheckoutLimiter: middleware.RateLimitPolicy{
			Name:   "checkout",
			Window: cfg.RateLimit.CheckoutWindow,
			Limit:  cfg.RateLimit.CheckoutLimit,
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting server on port "+cfg.App.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "forced shutdown after drain timeout", err)
			os.Exit(1)
		}
	}

	logg.Info(context.Background(), "server shut down gracefully")
}

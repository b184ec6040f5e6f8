package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rohanmalik/merakistore-backend/api/routes"
	"github.com/rohanmalik/merakistore-backend/internal/address"
	"github.com/rohanmalik/merakistore-backend/internal/auth"
	"github.com/rohanmalik/merakistore-backend/internal/cart"
	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	"github.com/rohanmalik/merakistore-backend/internal/checkout"
	"github.com/rohanmalik/merakistore-backend/internal/janitor"
	"github.com/rohanmalik/merakistore-backend/internal/orders"
	"github.com/rohanmalik/merakistore-backend/internal/users"
	"github.com/rohanmalik/merakistore-backend/pkg/auth/session"
	"github.com/rohanmalik/merakistore-backend/pkg/config"
	"github.com/rohanmalik/merakistore-backend/pkg/db"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
	"github.com/rohanmalik/merakistore-backend/pkg/metrics"
	"github.com/rohanmalik/merakistore-backend/pkg/migrate"
	"github.com/rohanmalik/merakistore-backend/pkg/outbox"
	"github.com/rohanmalik/merakistore-backend/pkg/redis"
)

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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(registry)
	orderMetrics := metrics.NewOrderMetrics(registry)

	outboxEvents := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())

	cartService, err := cart.NewService(cartRepo, dbClient, catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	addressRepo := address.NewRepository(dbClient.DB())
	addressService, err := address.NewService(addressRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create address service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo, dbClient, catalogRepo, outboxEvents, orderMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		CartRepo:    cartRepo,
		CatalogRepo: catalogRepo,
		OrdersRepo:  ordersRepo,
		AddressRepo: addressRepo,
		Addresses:   addressService,
		UserRepo:    users.NewRepository(dbClient.DB()),
		TxRunner:    dbClient,
		Events:      outboxEvents,
		Metrics:     orderMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		TxRunner:       dbClient,
		SessionManager: sessionManager,
		CartMerger:     cartService,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Janitor.Enabled {
		janitorService, err := buildJanitor(cfg, logg, redisClient, cartRepo, outbox.NewRepository(dbClient.DB()), registry)
		if err != nil {
			logg.Error(context.Background(), "failed to create janitor", err)
			os.Exit(1)
		}
		go func() {
			if err := janitorService.Run(shutdownCtx); err != nil && err != context.Canceled {
				logg.Error(shutdownCtx, "janitor stopped unexpectedly", err)
			}
		}()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			httpMetrics,
			registry,
			authService,
			catalogRepo,
			cartService,
			checkoutService,
			ordersService,
			addressService,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "error during server shutdown", err)
		}
	}
}

func buildJanitor(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	cartRepo *cart.Repository,
	outboxRepo *outbox.Repository,
	registry *prometheus.Registry,
) (*janitor.Service, error) {
	lock, err := janitor.NewRedisLock(redisClient, "janitor:lock", cfg.Janitor.LockTTL)
	if err != nil {
		return nil, err
	}

	guestCartJob, err := janitor.NewGuestCartJob(janitor.GuestCartJobParams{
		Logger:  logg,
		Repo:    cartRepo,
		MaxIdle: cfg.Janitor.GuestCartMaxIdle(cfg.Guest.CookieTTL),
	})
	if err != nil {
		return nil, err
	}

	outboxJob, err := janitor.NewOutboxRetentionJob(janitor.OutboxRetentionJobParams{
		Logger:    logg,
		Repo:      outboxRepo,
		Retention: cfg.Janitor.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}

	return janitor.NewService(janitor.ServiceParams{
		Logger:   logg,
		Lock:     lock,
		Metrics:  metrics.NewJanitorMetrics(registry),
		Interval: cfg.Janitor.Interval,
		Jobs:     []janitor.Job{guestCartJob, outboxJob},
	})
}

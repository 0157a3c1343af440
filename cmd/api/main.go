package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/beatstore-backend/api/routes"
	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/beatstore-backend/internal/checkout"
	"github.com/angelmondragon/beatstore-backend/internal/gateway"
	"github.com/angelmondragon/beatstore-backend/internal/ledger"
	"github.com/angelmondragon/beatstore-backend/internal/licenses"
	"github.com/angelmondragon/beatstore-backend/internal/pricing"
	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/internal/transactions"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/internal/webhooks/dedupe"
	paypalwebhook "github.com/angelmondragon/beatstore-backend/internal/webhooks/paypal"
	"github.com/angelmondragon/beatstore-backend/pkg/auth"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/env"
	"github.com/angelmondragon/beatstore-backend/pkg/instance"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
	"github.com/angelmondragon/beatstore-backend/pkg/migrate"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox"
	"github.com/angelmondragon/beatstore-backend/pkg/paypal"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
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
		Fields:      map[string]string{"env": cfg.App.Env, "instance": instance.GetID()},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api exited", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "api server shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeWith(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(logg, "redis", redisClient.Close)

	signer, err := auth.NewSigner(cfg.JWT)
	if err != nil {
		return fmt.Errorf("token signer: %w", err)
	}
	paypalClient, err := paypal.NewClient(ctx, cfg.PayPal, logg)
	if err != nil {
		return fmt.Errorf("paypal client: %w", err)
	}
	gw, err := gateway.NewPayPal(paypalClient)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}
	taxRate, err := cfg.Checkout.TaxRateDecimal()
	if err != nil {
		return err
	}
	engine, err := pricing.NewEngine(taxRate)
	if err != nil {
		return fmt.Errorf("pricing engine: %w", err)
	}

	gormDB := dbClient.DB()
	cartRepo := cart.NewRepository(gormDB)
	beatsRepo := beats.NewRepository(gormDB)
	txRepo := transactions.NewRepository(gormDB)
	codes := transactions.NewCodeSource(dbClient, redisClient)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	reconciler, err := settlement.NewReconciler(settlement.Deps{
		Tx:           dbClient,
		Transactions: txRepo,
		Users:        users.NewRepository(gormDB),
		Carts:        cartRepo,
		Ledger:       ledger.NewBook(gormDB),
		Outbox:       outboxSvc,
		Gateway:      gw,
		Codes:        codes,
		Metrics:      metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
	})
	if err != nil {
		return fmt.Errorf("settlement reconciler: %w", err)
	}

	cartService, err := cart.NewService(cartRepo, dbClient, beatsRepo, engine)
	if err != nil {
		return fmt.Errorf("cart service: %w", err)
	}

	notifyURL := joinURL(cfg.App.APIURL, cfg.Checkout.NotifyPath)
	checkoutService, err := checkoutsvc.NewService(checkoutsvc.Deps{
		Tx:           dbClient,
		Carts:        cartRepo,
		Beats:        beatsRepo,
		Pricing:      engine,
		Transactions: txRepo,
		Codes:        codes,
		Gateway:      gw,
		Settlement:   reconciler,
		Outbox:       outboxSvc,
		Logger:       logg,
		Options: checkoutsvc.Options{
			ReturnURL:        joinURL(cfg.App.PublicURL, cfg.Checkout.ReturnPath),
			CancelURL:        joinURL(cfg.App.PublicURL, cfg.Checkout.CancelPath),
			NotifyURL:        notifyURL,
			Description:      cfg.Checkout.Description,
			PlatformReceiver: cfg.PayPal.Receiver,
		},
	})
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}

	transactionsService, err := transactions.NewService(txRepo)
	if err != nil {
		return fmt.Errorf("transactions service: %w", err)
	}
	licenseService, err := licenses.NewService(licenses.NewRepository(gormDB), dbClient, outboxSvc)
	if err != nil {
		return fmt.Errorf("license service: %w", err)
	}
	ipnService, err := paypalwebhook.NewService(paypalwebhook.ServiceParams{
		Transactions: txRepo,
		Reconciler:   reconciler,
		Currency:     cfg.PayPal.Currency,
		Logger:       logg,
	})
	if err != nil {
		return fmt.Errorf("ipn service: %w", err)
	}
	ipnGuard, err := dedupe.New(redisClient, "paypal-ipn", cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("ipn guard: %w", err)
	}

	// PORT wins so the platform can assign the listener
	server := &http.Server{
		Addr:              ":" + env.Get("PORT", cfg.App.Port),
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Responses:    redisClient,
			Limiter:      redisClient,
			Tokens:       signer,
			Metrics:      promhttp.Handler(),
			Cart:         cartService,
			Checkout:     checkoutService,
			Transactions: transactionsService,
			Licenses:     licenseService,
			IPN:          ipnService,
			PayPal:       paypalClient,
			IPNGuard:     ipnGuard,
		}),
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"addr":       server.Addr,
		"paypal_env": paypalClient.Environment(),
		"notify_url": notifyURL,
		"tax_rate":   taxRate.String(),
	}), "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func closeWith(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

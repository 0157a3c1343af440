package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/beatstore-backend/internal/cart"
	"github.com/angelmondragon/beatstore-backend/internal/cron"
	"github.com/angelmondragon/beatstore-backend/internal/gateway"
	"github.com/angelmondragon/beatstore-backend/internal/ledger"
	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/internal/transactions"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/instance"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
	"github.com/angelmondragon/beatstore-backend/pkg/migrate"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox"
	"github.com/angelmondragon/beatstore-backend/pkg/paypal"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"env": cfg.App.Env, "instance": instance.GetID()},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	txRepo := transactions.NewRepository(gormDB)

	var sweeper cron.Job
	if cfg.Checkout.AbandonTTL > 0 {
		reconciler, err := newReconciler(ctx, cfg, logg, dbClient, redisClient, txRepo, outboxRepo)
		if err != nil {
			return fmt.Errorf("settlement reconciler: %w", err)
		}
		if sweeper, err = cron.NewAbandonedCheckoutJob(cron.AbandonedCheckoutJobParams{
			Logger:     logg,
			Roots:      txRepo,
			Reconciler: reconciler,
			TTL:        cfg.Checkout.AbandonTTL,
		}); err != nil {
			return fmt.Errorf("abandoned checkout job: %w", err)
		}
	} else {
		logg.Info(ctx, "abandoned checkout sweeping disabled")
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Events:              outboxRepo,
		DeadLetters:         outbox.NewDLQRepository(gormDB),
		Retention:           config.Days(cfg.Outbox.RetentionDays),
		DeadLetterRetention: config.Days(cfg.Outbox.DLQRetentionDays),
		MaxAttempts:         cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:     logg,
		Locker:     redisClient,
		LockPrefix: "cron:" + cfg.App.Env,
		LockTTL:    cfg.Cron.LockTTL,
		Tick:       cfg.Cron.Tick,
		Metrics:    metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Owner:      instance.GetID(),
	})
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	scheduler.Every(cfg.Cron.Interval, sweeper)
	scheduler.Every(cfg.Cron.RetentionInterval, retention)

	metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg)
	return scheduler.Run(ctx)
}

// newReconciler builds the settlement stack the API uses, so expired roots
// release their cart locks and emit the same outbox events.
func newReconciler(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, txRepo *transactions.Repository, outboxRepo *outbox.Repository) (*settlement.Reconciler, error) {
	paypalClient, err := paypal.NewClient(ctx, cfg.PayPal, logg)
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	gw, err := gateway.NewPayPal(paypalClient)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	return settlement.NewReconciler(settlement.Deps{
		Tx:           dbClient,
		Transactions: txRepo,
		Users:        users.NewRepository(dbClient.DB()),
		Carts:        cart.NewRepository(dbClient.DB()),
		Ledger:       ledger.NewBook(dbClient.DB()),
		Outbox:       outbox.NewService(outboxRepo, logg),
		Gateway:      gw,
		Codes:        transactions.NewCodeSource(dbClient, redisClient),
		Metrics:      metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
	})
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}

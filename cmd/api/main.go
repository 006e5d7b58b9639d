package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/app"
	"github.com/carpentries/pretix/internal/cache"
	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/config"
	eventkafka "github.com/carpentries/pretix/internal/event/kafka"
	"github.com/carpentries/pretix/internal/logging"
	"github.com/carpentries/pretix/internal/metrics"
	"github.com/carpentries/pretix/internal/storage/postgres"
	transporthttp "github.com/carpentries/pretix/internal/transport/http"
	"github.com/carpentries/pretix/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logging.Sync(logger)

	logger.Info("starting api",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("database", cfg.MaskedDatabaseURL()),
		zap.Duration("hold_ttl", cfg.HoldTTL),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		return err
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	coreMetrics := metrics.New(registry)
	availabilityCache := cache.NewAvailability(cfg.AvailabilityCacheTTL)
	clk := clock.NewSystem()

	availabilitySvc := app.NewAvailabilityService(
		postgres.NewAvailabilityRepository(pool), clk, logger,
		app.WithLowStockThreshold(cfg.LowStockThreshold),
		app.WithAvailabilityCache(availabilityCache),
		app.WithAvailabilityMetrics(coreMetrics),
	)
	cartSvc := app.NewCartService(
		postgres.NewCartRepository(pool), clk, logger,
		app.WithHoldTTL(cfg.HoldTTL),
		app.WithCartCache(availabilityCache),
		app.WithCartMetrics(coreMetrics),
	)
	voucherSvc := app.NewVoucherService(
		postgres.NewVoucherRepository(pool), clk, logger,
		app.WithVoucherHoldTTL(cfg.HoldTTL),
		app.WithVoucherMetrics(coreMetrics),
	)

	orderOpts := []app.OrderOption{
		app.WithOrderCache(availabilityCache),
		app.WithOrderMetrics(coreMetrics),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := eventkafka.NewPublisher(logger, cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		orderOpts = append(orderOpts, app.WithOrderPublisher(publisher))
		logger.Info("order events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	orderSvc := app.NewOrderService(postgres.NewOrderRepository(pool), clk, logger, orderOpts...)
	adminSvc := app.NewAdminService(postgres.NewAdminRepository(pool), clk)

	router := transporthttp.NewRouter(
		transporthttp.Services{
			Availability: availabilitySvc,
			Cart:         cartSvc,
			Voucher:      voucherSvc,
			Order:        orderSvc,
			Admin:        adminSvc,
		},
		transporthttp.RouterOptions{
			Logger:      logger,
			CORSOrigins: cfg.CORSOrigins,
			Readiness: func() bool {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return pool.Ping(ctx) == nil
			},
			MetricsGatherer: registry,
		},
	)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SweepInterval > 0 {
		go cartSvc.RunSweeper(stopCtx, cfg.SweepInterval)
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()
	logger.Info("api listening", zap.String("addr", cfg.HTTPAddr))

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	appcheckout "github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/reporting"
	appsale "github.com/Zhima-Mochi/minishop-checkout/internal/application/sale"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	domidem "github.com/Zhima-Mochi/minishop-checkout/internal/domain/idempotency"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/httpprovider"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/redisx"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/staticauth"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		File:    cfg.LogFile,
		Level:   cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	if err := run(cfg, baseLogger); err != nil {
		baseLogger.Error("service_exit", zap.Error(err))
		os.Exit(1)
	}
}

type stores struct {
	products dominv.Repository
	orders   domorder.Repository
	sales    domsale.Repository
	idem     domidem.Store
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(cfg config.Config, baseLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.Standard(prometrics.New(reg, "minishop", ""))

	systemLogger := zaplogger.Wrap(logging.WithTrace(baseLogger, logging.SystemID, logging.SystemID))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), zaplogger.Wrap(baseLogger), counters, histograms)

	st, err := openStores(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	defer st.close()

	bus := outbox.NewBus(tel)

	ledger := appinventory.NewLedger(st.products, tel,
		appinventory.WithTTL(cfg.ReservationTTL),
		appinventory.WithStripes(cfg.LockStripes),
		appinventory.WithPublisher(bus),
		appinventory.WithIDGenerator(id.New("res_")),
	)
	payments := apppayment.NewCoordinator(paymentProvider(cfg, systemLogger), apppayment.Config{
		MaxRetries:      cfg.PaymentMaxRetries,
		InitialInterval: apppayment.DefaultConfig().InitialInterval,
		MaxInterval:     apppayment.DefaultConfig().MaxInterval,
		CallTimeout:     cfg.PaymentTimeout,
	}, tel)
	checkout := appcheckout.New(ledger, st.products, payments, st.orders, appcheckout.Config{
		TaxRate:        cfg.TaxRate,
		Currency:       cfg.Currency,
		IdempotencyTTL: domidem.DefaultTTL,
		ClaimTTL:       claimTTL(cfg),
	}, tel,
		appcheckout.WithIdempotencyStore(st.idem),
		appcheckout.WithPublisher(bus),
		appcheckout.WithIDGenerator(id.New("ord_")),
	)
	orders := apporder.NewService(st.orders, ledger, payments, bus, tel)
	catalog := appcatalog.NewService(st.products, ledger, tel)
	sales := appsale.NewService(st.sales, ledger, st.products, bus, tel)
	projection := reporting.NewProjection(tel)

	if err := seedCatalog(ctx, cfg.SeedProducts, catalog, systemLogger); err != nil {
		return err
	}

	workerpresentation.Mount(bus, tel.Logger(), tel.Tracer(), "reporting", projection.Apply, projection.Events()...)

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, tel)
		producer.Start()
		workerpresentation.Mount(bus, tel.Logger(), tel.Tracer(), "kafka_relay", producer.Handle, kafka.ExportedEvents()...)
		systemLogger.Info("kafka_relay_enabled", observability.F("topic", cfg.KafkaTopic))
	}
	bus.Start(ctx)

	sweeper := appinventory.NewSweeper(ledger, cfg.SweepInterval, tel.Logger())
	sweeper.Start(ctx)

	auth, err := staticauth.Parse(cfg.AuthTokens)
	if err != nil {
		return err
	}
	handler := httppresentation.NewHandler(httppresentation.Services{
		Checkout:  checkout,
		Orders:    orders,
		Catalog:   catalog,
		Sales:     sales,
		Dashboard: projection,
		Auth:      auth,
	}, tel, httppresentation.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	sweeper.Stop()
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("event_bus_drain_incomplete", observability.F("error", err))
	}
	if producer != nil {
		if err := producer.Close(shutdownCtx); err != nil {
			systemLogger.Warn("kafka_relay_close_error", observability.F("error", err))
		}
	}
	return nil
}

func openStores(ctx context.Context, cfg config.Config, logger observability.Logger) (*stores, error) {
	st := &stores{idem: memory.NewIdempotencyStore()}

	if cfg.PostgresDSN == "" {
		st.products = memory.NewProductRepository()
		st.orders = memory.NewOrderRepository()
		st.sales = memory.NewSaleRepository()
		logger.Info("storage_selected", observability.F("driver", "memory"))
	} else {
		pool, err := openPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.products = postgres.NewProductRepository(pool)
		st.orders = postgres.NewOrderRepository(pool)
		st.sales = postgres.NewSaleRepository(pool)
		logger.Info("storage_selected", observability.F("driver", "postgres"))
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisx.New(ctx, cfg.RedisAddr)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = rdb.Close() })
		st.idem = redisx.NewIdempotencyStore(rdb)
		logger.Info("idempotency_store_selected", observability.F("driver", "redis"))
	}
	return st, nil
}

func openPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func paymentProvider(cfg config.Config, logger observability.Logger) dompay.Provider {
	if cfg.PaymentProviderURL != "" {
		logger.Info("payment_provider_selected", observability.F("provider", "http"))
		return httpprovider.New(cfg.PaymentProviderURL, cfg.PaymentAPIKey,
			httpprovider.WithHTTPClient(&http.Client{Timeout: cfg.PaymentTimeout}))
	}
	logger.Info("payment_provider_selected",
		observability.F("provider", "simulated"),
		observability.F("success_rate", cfg.PaymentSuccessRate),
	)
	return simulated.New(cfg.PaymentSuccessRate)
}

func seedCatalog(ctx context.Context, path string, catalog *appcatalog.Service, logger observability.Logger) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	defer f.Close()

	n, err := catalog.Seed(ctx, f)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	logger.Info("catalog_seeded", observability.F("products", n), observability.F("path", path))
	return nil
}

// claimTTL outlasts one reservation plus every payment attempt of CreateIntent and Confirm.
func claimTTL(cfg config.Config) time.Duration {
	attempts := time.Duration(cfg.PaymentMaxRetries+1) * 2
	return cfg.ReservationTTL + attempts*cfg.PaymentTimeout
}

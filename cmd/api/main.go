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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-saga/internal/breaker"
	"github.com/ariefcatur/go-order-saga/internal/config"
	"github.com/ariefcatur/go-order-saga/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/ariefcatur/go-order-saga/internal/logx"
	"github.com/ariefcatur/go-order-saga/internal/metrics"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/participant"
	"github.com/ariefcatur/go-order-saga/internal/payment"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
	"github.com/ariefcatur/go-order-saga/internal/saga"
	"github.com/ariefcatur/go-order-saga/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logx.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("order api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, satu writer untuk semua topic saga
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
	prod.Start()

	reg := metrics.NewRegistry()

	// Participants
	transport := otelhttp.NewTransport(http.DefaultTransport)
	opts := func(e config.Endpoint) participant.Options {
		return participant.Options{BaseURL: e.BaseURL, Timeout: e.Timeout, Transport: transport}
	}
	products, err := participant.NewProductClient(opts(cfg.Product))
	if err != nil {
		return err
	}
	inventory, err := participant.NewInventoryClient(opts(cfg.Inventory))
	if err != nil {
		return err
	}
	payRemote, err := participant.NewPaymentClient(opts(cfg.Payment))
	if err != nil {
		return err
	}
	users, err := participant.NewUserClient(opts(cfg.User))
	if err != nil {
		return err
	}
	notifier, err := participant.NewNotificationClient(opts(cfg.Notification))
	if err != nil {
		return err
	}

	// Payment guard
	brk, err := breaker.New(breaker.Settings{
		Name:                 "payment",
		WindowSize:           cfg.Breaker.WindowSize,
		MinimumCalls:         cfg.Breaker.MinimumCalls,
		FailureRateThreshold: cfg.Breaker.FailureRateThreshold,
		OpenTimeout:          cfg.Breaker.OpenTimeout,
		HalfOpenMaxCalls:     cfg.Breaker.HalfOpenMaxCalls,
		OnStateChange: func(name string, from, to breaker.State) {
			reg.OnBreakerStateChange(name, from, to)
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	if err != nil {
		return err
	}
	ledger := &payment.PGLedger{DB: db}
	payments, err := payment.NewGuardedClient(payRemote, brk, ledger, payment.GuardOptions{
		Retry: payment.RetryPolicy{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
		Observer: reg,
		Logger:   log.Named("payment"),
	})
	if err != nil {
		return err
	}

	// Saga
	store := &orders.Repo{DB: db}
	orchestrator, err := saga.New(saga.Deps{
		Products:  products,
		Inventory: inventory,
		Payments:  payments,
		Users:     users,
		Notifier:  notifier,
		Store:     store,
		Events:    prod,
		Metrics:   reg,
		Tracer:    otel.Tracer("github.com/ariefcatur/go-order-saga/internal/saga"),
		Logger:    log.Named("saga"),
		Producer:  cfg.ServiceName,
	})
	if err != nil {
		return err
	}

	// HTTP
	router := httpx.NewRouter(log.Named("http"))
	router.Handle("/metrics", reg.Handler())
	oh := &httpx.OrdersHandler{
		Saga:         orchestrator,
		PlaceTimeout: cfg.PlaceTimeout,
		Orders:       store,
		Payments:     ledger,
		Idem:         redisx.NewIdempotency(rdb),
		Cache:        redisx.NewStatusCache(rdb),
		Log:          log.Named("orders"),
	}
	oh.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "order-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", zap.Stringer("signal", s))
	case err := <-errCh:
		log.Error("listen", zap.Error(err))
	}

	// in-flight sagas finish before the producer flushes
	sctx, scancel := context.WithTimeout(context.Background(), cfg.PlaceTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
	return nil
}

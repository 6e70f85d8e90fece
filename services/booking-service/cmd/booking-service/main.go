package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/batdimoiprint/medicare-booking/libs/config"
	"github.com/batdimoiprint/medicare-booking/libs/db"
	"github.com/batdimoiprint/medicare-booking/libs/httpx"
	"github.com/batdimoiprint/medicare-booking/libs/kafkax"
	otelx "github.com/batdimoiprint/medicare-booking/libs/otel"
	"github.com/batdimoiprint/medicare-booking/libs/redisx"
	"github.com/batdimoiprint/medicare-booking/libs/runtime"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/availability"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/booking"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/consumer"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/expiry"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/grpcserver"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/handlers"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/inbox"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/metrics"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/outbox"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/payments"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/slotlock"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// eventInbox dedupes both webhook provider events and Kafka deliveries.
type eventInbox interface {
	payments.Deduper
	consumer.Inbox
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLoggerWithLevel(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	var checks []runtime.ReadyCheck
	var store storage.Store
	var events eventInbox
	switch cfg.StorageDriver {
	case storagePostgres:
		pool, err := db.OpenWithOptions(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		store = storage.NewPostgres(pool)
		events = inbox.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		store = storage.NewMemory()
		events = inbox.NewMemory()
	}

	rdb, err := redisx.Open(ctx, redisx.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	var locker slotlock.Locker = slotlock.NewMemoryLocker(cfg.SlotLockWait)
	var limiter httpx.Limiter = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	if rdb != nil {
		defer rdb.Close()
		locker = slotlock.NewRedisLocker(rdb, slotlock.RedisConfig{
			TTL:    cfg.SlotLockTTL,
			Wait:   cfg.SlotLockWait,
			Prefix: cfg.Service + ":slot",
		})
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.Service+":ratelimit")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR not set; slot locks and rate limits are local to this replica")
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	catalog, err := availability.NewCatalog(cfg.SlotCatalog)
	if err != nil {
		panic(err)
	}
	svc := booking.NewService(store, locker, logger, bookingMetrics, booking.Config{
		Catalog:          catalog,
		Location:         cfg.Location,
		FeeCents:         cfg.FeeCents,
		RescheduleCutoff: cfg.RescheduleCutoff,
	})

	publisher := outbox.NewPublisher(store, logger, bookingMetrics, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	if cfg.KafkaBrokers != "" && cfg.KafkaPaymentTopic != "" {
		paymentConsumer := consumer.New(logger, events, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaPaymentTopic,
		}, consumer.PaymentConfirmedHandler(svc, logger, bookingMetrics))
		go paymentConsumer.Run(ctx)
	}

	go expiry.NewWorker(svc, logger, expiry.WorkerConfig{
		Interval: cfg.ExpiryInterval,
		After:    cfg.PendingExpiry,
	}).Run(ctx)

	grpcSrv := grpcserver.New(logger, checks...)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		if err := grpcSrv.Serve(ctx, lis, 10*time.Second); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handlers.NewBookingHandler(svc, logger).Register(mux)

	paymentHandler := payments.NewHandler(svc, events, logger, bookingMetrics, payments.Config{
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		StripeTolerance:     cfg.StripeTolerance,
	})
	mux.HandleFunc("/api/v1/payments/webhooks/stripe", paymentHandler.StripeWebhook)
	if cfg.LocalWebhook {
		logger.Warn("unsigned local payment webhook enabled")
		mux.HandleFunc("/api/v1/payments/webhooks/local", paymentHandler.LocalWebhook)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.OnlyPaths(httpx.WithTimeout(15*time.Second), "/api/"),
		httpx.OnlyPaths(httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader, handlers.HeaderUserID},
			MaxAge:         10 * time.Minute,
		}), "/api/v1/public/", "/api/v1/appointments", "/api/v1/reschedules"),
		httpx.OnlyPaths(httpx.RateLimit(limiter, logger, true), "/api/v1/public/"),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/batdimoiprint/medicare-booking/libs/config"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/availability"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/booking"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/consumer"
)

const (
	storageMemory   = "memory"
	storagePostgres = "postgres"
)

type settings struct {
	Service  string
	LogLevel string
	Port     string
	GRPCPort string

	StorageDriver string
	DatabaseURL   string
	DBMaxConns    int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers      string
	KafkaGroupID      string
	KafkaPaymentTopic string

	StripeWebhookSecret string
	StripeTolerance     time.Duration
	LocalWebhook        bool

	Location         *time.Location
	SlotCatalog      []string
	FeeCents         int64
	PendingExpiry    time.Duration
	ExpiryInterval   time.Duration
	RescheduleCutoff time.Duration
	SlotLockTTL      time.Duration
	SlotLockWait     time.Duration

	RateLimitPerMinute int
	CORSOrigins        []string
}

// loadSettings reads the environment. Every malformed variable is reported, not just
// the first one.
func loadSettings() (settings, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	s := settings{
		Service:             config.String("SERVICE_NAME", "booking-service"),
		LogLevel:            config.String("LOG_LEVEL", "info"),
		DatabaseURL:         config.String("DATABASE_URL", ""),
		RedisAddr:           config.String("REDIS_ADDR", ""),
		RedisPassword:       config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:        config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:        config.String("KAFKA_GROUP_ID", "booking-service"),
		KafkaPaymentTopic:   config.String("KAFKA_PAYMENT_TOPIC", consumer.PaymentTopic),
		StripeWebhookSecret: config.String("STRIPE_WEBHOOK_SECRET", ""),
		SlotCatalog:         config.List("SLOT_CATALOG", availability.DefaultCatalog),
		CORSOrigins:         config.List("CORS_ALLOWED_ORIGINS", nil),
	}

	var err error
	s.Port, err = config.Port("PORT", "8083")
	collect(err)
	s.GRPCPort, err = config.Port("GRPC_PORT", "9093")
	collect(err)
	s.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10)
	collect(err)
	// The unsigned gateway defaults on only while no Stripe secret is configured.
	s.LocalWebhook = config.Bool("PAYMENTS_LOCAL_WEBHOOK", s.StripeWebhookSecret == "")

	toleranceSeconds, err := config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)
	collect(err)
	s.StripeTolerance = time.Duration(toleranceSeconds) * time.Second

	fee, err := config.Int("RESERVATION_FEE_CENTS", 50000)
	collect(err)
	if fee < 0 {
		collect(errors.New("RESERVATION_FEE_CENTS must not be negative"))
	}
	s.FeeCents = int64(fee)

	s.PendingExpiry, err = config.Duration("PENDING_EXPIRY", 30*time.Minute)
	collect(err)
	s.ExpiryInterval, err = config.Duration("EXPIRY_INTERVAL", time.Minute)
	collect(err)
	s.RescheduleCutoff, err = config.Duration("RESCHEDULE_CUTOFF", booking.DefaultRescheduleCutoff)
	collect(err)
	s.SlotLockTTL, err = config.Duration("SLOT_LOCK_TTL", 10*time.Second)
	collect(err)
	s.SlotLockWait, err = config.Duration("SLOT_LOCK_WAIT", 5*time.Second)
	collect(err)
	s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)

	tz := config.String("CLINIC_TIMEZONE", "UTC")
	s.Location, err = time.LoadLocation(tz)
	if err != nil {
		collect(fmt.Errorf("CLINIC_TIMEZONE %q: %w", tz, err))
	}

	s.StorageDriver = strings.ToLower(config.String("STORAGE_DRIVER", ""))
	if s.StorageDriver == "" {
		s.StorageDriver = storageMemory
		if s.DatabaseURL != "" {
			s.StorageDriver = storagePostgres
		}
	}
	switch s.StorageDriver {
	case storageMemory:
	case storagePostgres:
		if s.DatabaseURL == "" {
			collect(errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	default:
		collect(fmt.Errorf("STORAGE_DRIVER must be %s or %s, got %q", storagePostgres, storageMemory, s.StorageDriver))
	}

	if _, err := availability.NewCatalog(s.SlotCatalog); err != nil {
		collect(fmt.Errorf("SLOT_CATALOG: %w", err))
	}

	if len(errs) > 0 {
		return settings{}, errors.Join(errs...)
	}
	return s, nil
}

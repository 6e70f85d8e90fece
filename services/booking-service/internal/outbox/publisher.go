package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/batdimoiprint/medicare-booking/libs/kafkax"
	otelx "github.com/batdimoiprint/medicare-booking/libs/otel"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// Source yields batches of unpublished records and marks them published when publish succeeds.
type Source interface {
	PublishBatch(ctx context.Context, limit int, publish func(context.Context, []Record) error) (int, error)
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	source    Source
	logger    *slog.Logger
	metrics   *metrics.BookingMetrics
	brokers   []string
	pollEvery time.Duration
	batchSize int

	newWriter func(brokers []string) MessageWriter
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(source Source, logger *slog.Logger, m *metrics.BookingMetrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		source:    source,
		logger:    logger,
		metrics:   m,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		newWriter: func(brokers []string) MessageWriter {
			return &kafka.Writer{
				Addr:                   kafka.TCP(brokers...),
				Balancer:               &kafka.Hash{},
				AllowAutoTopicCreation: true,
			}
		},
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := p.newWriter(p.brokers)
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx, writer); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishOnce drains at most one batch into w and reports how many records were published.
func (p *Publisher) PublishOnce(ctx context.Context, w MessageWriter) (int, error) {
	n, err := p.source.PublishBatch(ctx, p.batchSize, func(ctx context.Context, records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, Message(ctx, r))
		}
		return w.WriteMessages(ctx, msgs...)
	})
	if err != nil {
		p.metrics.ObserveOutbox("failed", 1)
		return 0, err
	}
	p.metrics.ObserveOutbox("published", n)
	return n, nil
}

// Message converts a record into its Kafka message, restoring the trace context captured
// when the event was written.
func Message(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	msg := kafka.Message{
		Topic: r.EventType,
		Key:   []byte(r.AggregateID),
		Value: r.Payload,
		Headers: kafkax.EventMeta{
			EventID:   r.EventID,
			EventType: r.EventType,
		}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}

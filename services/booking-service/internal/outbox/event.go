package outbox

import (
	"context"
	"encoding/json"
	"time"

	otelx "github.com/batdimoiprint/medicare-booking/libs/otel"
	"github.com/google/uuid"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event).
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
}

// NewEvent marshals payload and stamps the event with a fresh id and the trace context of ctx.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
	}, nil
}

// Record is a stored outbox row.
type Record struct {
	ID int64
	Event
	CreatedAt time.Time
}

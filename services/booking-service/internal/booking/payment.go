package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/statemachine"
	"go.opentelemetry.io/otel/attribute"
)

const expiryBatch = 100

// OnPaymentConfirmed moves a pending appointment to scheduled. An absent or non-pending
// appointment yields a *StateError matching ErrInvalidState, which is what a duplicate
// gateway delivery sees.
func (s *Service) OnPaymentConfirmed(ctx context.Context, appointmentID string) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "booking.payment_confirmed", attribute.String("appointment_id", appointmentID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, &ValidationError{Fields: map[string]string{"appointment_id": "required"}}
	}
	return s.applyTrigger(ctx, appointmentID, statemachine.PaymentConfirmed, ActorPaymentGateway, "")
}

// ExpirePending cancels pending reservations created more than olderThan ago and returns how
// many were cancelled. Reservations paid in the meantime are skipped. One call handles at most
// one batch; the expiry worker calls it on every tick.
func (s *Service) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)
	stale, err := s.store.ListPendingCreatedBefore(ctx, cutoff, expiryBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, appt := range stale {
		if _, err := s.applyTrigger(ctx, appt.ID, statemachine.Expire, ActorExpiry, "reservation fee not paid in time"); err != nil {
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			s.metrics.ObserveExpired(expired)
			return expired, err
		}
		expired++
	}
	s.metrics.ObserveExpired(expired)
	return expired, nil
}

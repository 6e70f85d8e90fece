package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/booking"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/metrics"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const PaymentTopic = "payments.reservation.confirmed.v1"

type Confirmer interface {
	OnPaymentConfirmed(ctx context.Context, appointmentID string) (model.Appointment, error)
}

type paymentConfirmed struct {
	AppointmentID string `json:"appointment_id"`
	PaymentID     string `json:"payment_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// PaymentConfirmedHandler applies payment confirmations published by the payment
// gateway. Malformed messages and confirmations with no effect are logged and dropped;
// only unexpected errors are returned.
func PaymentConfirmedHandler(svc Confirmer, logger *slog.Logger, m *metrics.BookingMetrics) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt paymentConfirmed
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid payment confirmation payload", "err", err, "offset", msg.Offset)
			m.ObservePayment("kafka", "invalid")
			return nil
		}
		id := strings.TrimSpace(evt.AppointmentID)
		if id == "" {
			logger.Warn("payment confirmation without appointment_id", "payment_id", evt.PaymentID)
			m.ObservePayment("kafka", "invalid")
			return nil
		}

		appt, err := svc.OnPaymentConfirmed(ctx, id)
		switch {
		case err == nil:
			logger.Info("payment confirmed", "appointment_id", id, "payment_id", evt.PaymentID, "status", appt.Status)
			m.ObservePayment("kafka", "ok")
			return nil
		case errors.Is(err, booking.ErrInvalidState), errors.Is(err, booking.ErrValidation):
			logger.Info("payment confirmation had no effect", "appointment_id", id, "payment_id", evt.PaymentID, "err", err)
			m.ObservePayment("kafka", "noop")
			return nil
		default:
			m.ObservePayment("kafka", "error")
			return err
		}
	}
}

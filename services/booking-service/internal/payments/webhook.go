// Package payments turns payment gateway notifications into OnPaymentConfirmed calls.
// Signature verification is the authentication; replayed provider events are dropped
// through the processed-events store.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/booking"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/metrics"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	ProviderStripe = "stripe"
	ProviderLocal  = "local"

	MetadataAppointmentID = "appointment_id"

	maxWebhookBody = 1 << 20
)

type Confirmer interface {
	OnPaymentConfirmed(ctx context.Context, appointmentID string) (model.Appointment, error)
}

// Deduper records provider event ids already applied.
type Deduper interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type Config struct {
	StripeWebhookSecret string
	StripeTolerance     time.Duration
}

type Handler struct {
	confirmer Confirmer
	dedup     Deduper
	logger    *slog.Logger
	metrics   *metrics.BookingMetrics
	cfg       Config
}

func NewHandler(confirmer Confirmer, dedup Deduper, logger *slog.Logger, m *metrics.BookingMetrics, cfg Config) *Handler {
	if cfg.StripeTolerance <= 0 {
		cfg.StripeTolerance = webhook.DefaultTolerance
	}
	return &Handler{confirmer: confirmer, dedup: dedup, logger: logger, metrics: m, cfg: cfg}
}

// outcome is what a single provider event did to the booking pipeline.
type outcome string

const (
	outcomeOK        outcome = "ok"
	outcomeDuplicate outcome = "duplicate"
	outcomeNoop      outcome = "noop"
	outcomeIgnored   outcome = "ignored"
)

// StripeWebhook handles signed Stripe events. payment_intent.succeeded and a paid
// checkout.session.completed confirm the appointment named in metadata.appointment_id.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.cfg.StripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.cfg.StripeWebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.cfg.StripeTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.metrics.ObservePayment(ProviderStripe, "bad_signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", ProviderStripe,
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	appointmentID, ok := stripeAppointmentID(evt, h.logger)
	if !ok {
		h.metrics.ObservePayment(ProviderStripe, string(outcomeIgnored))
		writeJSON(w, http.StatusOK, map[string]any{"status": outcomeIgnored})
		return
	}

	res, _, err := h.apply(r.Context(), ProviderStripe, evt.ID, appointmentID)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("stripe payment apply failed", "provider_event_id", evt.ID, "appointment_id", appointmentID, "err", err)
			http.Error(w, "failed to apply payment", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": res, "appointment_id": appointmentID})
}

func stripeAppointmentID(evt stripe.Event, logger *slog.Logger) (string, bool) {
	switch evt.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			logger.Error("stripe: invalid payment intent payload", "err", err)
			return "", false
		}
		id := strings.TrimSpace(intent.Metadata[MetadataAppointmentID])
		if id == "" {
			logger.Warn("stripe: missing metadata on payment intent (appointment_id)", "payment_intent", intent.ID)
		}
		return id, id != ""

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			logger.Error("stripe: invalid checkout session payload", "err", err)
			return "", false
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			logger.Info("stripe: checkout session completed without payment", "session_id", session.ID, "payment_status", session.PaymentStatus)
			return "", false
		}
		id := strings.TrimSpace(session.Metadata[MetadataAppointmentID])
		if id == "" {
			logger.Warn("stripe: missing metadata on checkout session (appointment_id)", "session_id", session.ID)
		}
		return id, id != ""
	}
	return "", false
}

type localPaymentRequest struct {
	EventID       string `json:"event_id"`
	AppointmentID string `json:"appointment_id"`
}

// LocalWebhook is the unsigned development gateway. It trusts the caller, so it is only
// mounted when PAYMENTS_LOCAL_WEBHOOK allows it.
func (h *Handler) LocalWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req localPaymentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	res, cause, err := h.apply(r.Context(), ProviderLocal, strings.TrimSpace(req.EventID), req.AppointmentID)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("local payment apply failed", "appointment_id", req.AppointmentID, "err", err)
			http.Error(w, "failed to apply payment", http.StatusInternalServerError)
		}
		return
	}
	if res == outcomeNoop && errors.Is(cause, booking.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": res, "appointment_id": req.AppointmentID})
}

// apply confirms appointmentID once per provider event. A confirmation that finds the
// appointment absent or no longer pending is a noop; the event is still marked processed.
// The noop cause is returned alongside. Unexpected errors leave the event unmarked so the
// provider retries.
func (h *Handler) apply(ctx context.Context, provider, eventID, appointmentID string) (outcome, error, error) {
	if eventID != "" && h.dedup != nil {
		seen, err := h.dedup.AlreadyProcessed(ctx, provider, eventID)
		if err != nil {
			return "", nil, err
		}
		if seen {
			h.logger.Info("payment provider event duplicate ignored", "provider", provider, "provider_event_id", eventID)
			h.metrics.ObservePayment(provider, string(outcomeDuplicate))
			return outcomeDuplicate, nil, nil
		}
	}

	res := outcomeOK
	var cause error
	if _, err := h.confirmer.OnPaymentConfirmed(ctx, appointmentID); err != nil {
		if !errors.Is(err, booking.ErrInvalidState) {
			h.metrics.ObservePayment(provider, "error")
			return "", nil, err
		}
		h.logger.Info("payment confirmation had no effect", "provider", provider, "appointment_id", appointmentID, "err", err)
		res = outcomeNoop
		cause = err
	}

	if eventID != "" && h.dedup != nil {
		if _, err := h.dedup.MarkProcessed(ctx, provider, eventID); err != nil {
			h.logger.Error("mark provider event processed failed", "provider", provider, "provider_event_id", eventID, "err", err)
		}
	}
	h.metrics.ObservePayment(provider, string(res))
	return res, cause, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

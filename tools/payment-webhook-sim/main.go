// Command payment-webhook-sim posts a signed Stripe event (or an unsigned local
// confirmation) for one appointment, standing in for the payment gateway during
// development.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType     = flag.String("type", getenv("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type, or \"local\" for the unsigned webhook")
		appointment = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment_id metadata")
		secret      = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
		eventID     = flag.String("event-id", "", "provider event id (default: generated)")
	)
	flag.Parse()

	if strings.TrimSpace(*appointment) == "" {
		fatal("APPOINTMENT_ID is required")
	}
	now := time.Now().UTC()
	if *eventID == "" {
		*eventID = fmt.Sprintf("evt_test_%d", now.UnixNano())
	}
	base := strings.TrimRight(*baseURL, "/")

	var (
		req *http.Request
		err error
	)
	if *evtType == "local" {
		body, _ := json.Marshal(map[string]string{"event_id": *eventID, "appointment_id": *appointment})
		req, err = http.NewRequest(http.MethodPost, base+"/api/v1/payments/webhooks/local", bytes.NewReader(body))
		if err != nil {
			fatal(err.Error())
		}
	} else {
		if strings.TrimSpace(*secret) == "" {
			fatal("STRIPE_WEBHOOK_SECRET is required")
		}
		payload, err := buildEventJSON(*eventID, *evtType, now, *appointment)
		if err != nil {
			fatal(err.Error())
		}
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    *secret,
			Timestamp: now,
			Scheme:    "v1",
		})
		req, err = http.NewRequest(http.MethodPost, base+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
		if err != nil {
			fatal(err.Error())
		}
		req.Header.Set("Stripe-Signature", signed.Header)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, appointmentID string) ([]byte, error) {
	var object map[string]any
	switch eventType {
	case "payment_intent.succeeded":
		object = map[string]any{
			"id":       fmt.Sprintf("pi_test_%d", t.UnixNano()),
			"object":   "payment_intent",
			"status":   "succeeded",
			"metadata": map[string]any{"appointment_id": appointmentID},
		}
	case "checkout.session.completed":
		object = map[string]any{
			"id":             fmt.Sprintf("cs_test_%d", t.UnixNano()),
			"object":         "checkout.session",
			"payment_status": "paid",
			"metadata":       map[string]any{"appointment_id": appointmentID},
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

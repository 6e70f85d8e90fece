package booking

import (
	"context"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/outbox"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/statemachine"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/storage"
)

// Outbound event types. Each is published to the Kafka topic of the same name.
const (
	EventAppointmentRequested = "booking.appointment.requested.v1"
	EventStatusChanged        = "booking.appointment.status_changed.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventRescheduleRequested  = "booking.reschedule.requested.v1"
	EventRescheduleDecided    = "booking.reschedule.decided.v1"
)

type appointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	PatientID       string `json:"patient_id"`
	DentistID       string `json:"dentist_id"`
	ServiceID       string `json:"service_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	FeeCents        int64  `json:"fee_cents"`
	Status          string `json:"status"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	RescheduledFrom string `json:"rescheduled_from,omitempty"`
}

type statusChangedPayload struct {
	appointmentPayload
	From       string `json:"from"`
	Trigger    string `json:"trigger"`
	Actor      string `json:"actor,omitempty"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

type reschedulePayload struct {
	RequestID             string `json:"request_id"`
	PatientID             string `json:"patient_id"`
	OriginalAppointmentID string `json:"original_appointment_id"`
	RequestedDate         string `json:"requested_date"`
	RequestedTime         string `json:"requested_time"`
	Reason                string `json:"reason,omitempty"`
	Status                string `json:"status"`
	DecidedBy             string `json:"decided_by,omitempty"`
	NewAppointmentID      string `json:"new_appointment_id,omitempty"`
}

func payloadFor(a model.Appointment) appointmentPayload {
	return appointmentPayload{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		DentistID:       a.DentistID,
		ServiceID:       a.ServiceID,
		Date:            model.FormatDate(a.Date),
		Time:            string(a.Time),
		FeeCents:        a.FeeCents,
		Status:          string(a.Status),
		ApprovedBy:      a.ApprovedBy,
		RescheduledFrom: a.RescheduledFrom,
	}
}

func reschedulePayloadFor(r model.RescheduleRequest) reschedulePayload {
	return reschedulePayload{
		RequestID:             r.ID,
		PatientID:             r.PatientID,
		OriginalAppointmentID: r.OriginalAppointmentID,
		RequestedDate:         model.FormatDate(r.RequestedDate),
		RequestedTime:         string(r.RequestedTime),
		Reason:                r.Reason,
		Status:                string(r.Status),
		DecidedBy:             r.DecidedBy,
		NewAppointmentID:      r.NewAppointmentID,
	}
}

func emit(ctx context.Context, tx storage.Tx, aggregateType, aggregateID, eventType string, payload any) error {
	evt, err := outbox.NewEvent(ctx, aggregateType, aggregateID, eventType, payload)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, evt)
}

func emitStatusChanged(ctx context.Context, tx storage.Tx, a model.Appointment, from model.Status, trigger statemachine.Trigger, actor, reason string, at time.Time) error {
	return emit(ctx, tx, "appointment", a.ID, EventStatusChanged, statusChangedPayload{
		appointmentPayload: payloadFor(a),
		From:               string(from),
		Trigger:            string(trigger),
		Actor:              actor,
		Reason:             reason,
		OccurredAt:         at.UTC().Format(time.RFC3339),
	})
}

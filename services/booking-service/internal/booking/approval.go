package booking

import (
	"context"
	"strings"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/statemachine"
	"go.opentelemetry.io/otel/attribute"
)

// ApprovalQueue lists every scheduled (paid, not yet approved) appointment, oldest first.
func (s *Service) ApprovalQueue(ctx context.Context) ([]model.Appointment, error) {
	return s.store.ListByStatus(ctx, model.StatusScheduled)
}

// Approve confirms a scheduled appointment and records the approver.
func (s *Service) Approve(ctx context.Context, appointmentID, approverID string) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "booking.approve", attribute.String("appointment_id", appointmentID))
	defer func() { endSpan(span, err) }()

	if err := requireActor(appointmentID, "approver_id", approverID); err != nil {
		return model.Appointment{}, err
	}
	return s.applyTrigger(ctx, appointmentID, statemachine.Approve, approverID, "")
}

// Reject cancels a scheduled appointment on the front desk's decision.
func (s *Service) Reject(ctx context.Context, appointmentID, approverID, reason string) (model.Appointment, error) {
	if err := requireActor(appointmentID, "approver_id", approverID); err != nil {
		return model.Appointment{}, err
	}
	return s.applyTrigger(ctx, appointmentID, statemachine.Reject, approverID, strings.TrimSpace(reason))
}

// Cancel is legal from every status that still has a future.
func (s *Service) Cancel(ctx context.Context, appointmentID, actor, reason string) (model.Appointment, error) {
	if err := requireActor(appointmentID, "actor", actor); err != nil {
		return model.Appointment{}, err
	}
	return s.applyTrigger(ctx, appointmentID, statemachine.Cancel, actor, strings.TrimSpace(reason))
}

func (s *Service) Complete(ctx context.Context, appointmentID, actor string) (model.Appointment, error) {
	if err := requireActor(appointmentID, "actor", actor); err != nil {
		return model.Appointment{}, err
	}
	return s.applyTrigger(ctx, appointmentID, statemachine.Complete, actor, "")
}

func (s *Service) MarkNoShow(ctx context.Context, appointmentID, actor string) (model.Appointment, error) {
	if err := requireActor(appointmentID, "actor", actor); err != nil {
		return model.Appointment{}, err
	}
	return s.applyTrigger(ctx, appointmentID, statemachine.NoShow, actor, "")
}

func requireActor(appointmentID, actorField, actor string) error {
	v := &validator{}
	v.required("appointment_id", appointmentID)
	v.required(actorField, actor)
	return v.err()
}

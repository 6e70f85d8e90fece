package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/statemachine"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// SubmitReschedule queues a patient's request to move a scheduled or confirmed appointment.
// The appointment itself is untouched until the front desk approves.
func (s *Service) SubmitReschedule(ctx context.Context, sub model.RescheduleSubmission) (req model.RescheduleRequest, err error) {
	ctx, span := s.startSpan(ctx, "booking.reschedule.submit", attribute.String("appointment_id", sub.AppointmentID))
	defer func() { endSpan(span, err) }()

	patientID := strings.TrimSpace(sub.PatientID)
	appointmentID := strings.TrimSpace(sub.AppointmentID)

	v := &validator{}
	v.required("patient_id", patientID)
	v.required("appointment_id", appointmentID)
	if err := v.err(); err != nil {
		s.metrics.ObserveReschedule("submit", "invalid")
		return model.RescheduleRequest{}, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFound("appointment", appointmentID)
			}
			return err
		}
		// Someone else's appointment is reported as missing.
		if appt.PatientID != patientID {
			return notFound("appointment", appointmentID)
		}
		if appt.Status != model.StatusScheduled && appt.Status != model.StatusConfirmed {
			return &StateError{ID: appt.ID, Current: string(appt.Status), Op: "reschedule"}
		}

		rv := &validator{}
		date, slot := s.validateSchedule(rv, "requested_date", "requested_time", sub.RequestedDate, sub.RequestedTime)
		if rv.err() == nil && model.SlotKey(appt.DentistID, date, slot) == appt.SlotKey() {
			rv.fail("requested_time", "same as the current appointment")
		}
		if err := rv.err(); err != nil {
			return err
		}

		start, err := appt.StartsAt(s.loc)
		if err != nil {
			return err
		}
		deadline := start.Add(-s.cutoff)
		if s.now().After(deadline) {
			return fmt.Errorf("%w: changes must be requested by %s", ErrCutoffViolation, deadline.Format("2006-01-02 3:04 PM MST"))
		}

		pending, err := tx.HasPendingReschedule(ctx, appt.ID)
		if err != nil {
			return err
		}
		if pending {
			return &StateError{ID: appt.ID, Current: "reschedule pending", Op: "reschedule"}
		}

		req = model.RescheduleRequest{
			ID:                    s.newID(),
			PatientID:             patientID,
			OriginalAppointmentID: appt.ID,
			RequestedDate:         date,
			RequestedTime:         slot,
			Reason:                strings.TrimSpace(sub.Reason),
			Status:                model.ReschedulePending,
			CreatedAt:             s.now().UTC(),
		}
		if err := tx.InsertReschedule(ctx, &req); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return &StateError{ID: appt.ID, Current: "reschedule pending", Op: "reschedule"}
			}
			return err
		}
		return emit(ctx, tx, "reschedule_request", req.ID, EventRescheduleRequested, reschedulePayloadFor(req))
	})
	if err != nil {
		s.metrics.ObserveReschedule("submit", resultLabel(err))
		return model.RescheduleRequest{}, err
	}

	s.metrics.ObserveReschedule("submit", "ok")
	s.logger.Info("reschedule requested",
		"request_id", req.ID,
		"appointment_id", req.OriginalAppointmentID,
		"requested_date", model.FormatDate(req.RequestedDate),
		"requested_time", req.RequestedTime,
	)
	return req, nil
}

// ApproveReschedule marks the original appointment rescheduled and books a new pending
// appointment at the requested slot, all in one transaction. It returns the new appointment.
func (s *Service) ApproveReschedule(ctx context.Context, requestID, approverID string) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "booking.reschedule.approve", attribute.String("request_id", requestID))
	defer func() { endSpan(span, err) }()

	v := &validator{}
	v.required("request_id", requestID)
	v.required("approver_id", approverID)
	if err := v.err(); err != nil {
		return model.Appointment{}, err
	}

	req, original, err := s.loadReschedule(ctx, requestID)
	if err != nil {
		s.metrics.ObserveReschedule("approve", resultLabel(err))
		return model.Appointment{}, err
	}

	start, err := s.slotStart(req.RequestedDate, req.RequestedTime)
	if err != nil {
		return model.Appointment{}, err
	}
	if start.Before(s.now()) {
		return model.Appointment{}, &ValidationError{Fields: map[string]string{"requested_date": "in the past"}}
	}

	release, err := s.lockSlot(ctx, original.DentistID, req.RequestedDate, req.RequestedTime)
	if err != nil {
		s.metrics.ObserveReschedule("approve", resultLabel(err))
		return model.Appointment{}, err
	}
	defer release()

	var originalFrom model.Status
	err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		current, err := tx.GetReschedule(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Status != model.ReschedulePending {
			return &StateError{ID: current.ID, Current: string(current.Status), Op: "approve reschedule"}
		}
		orig, err := tx.GetAppointment(ctx, current.OriginalAppointmentID)
		if err != nil {
			return err
		}
		originalFrom = orig.Status
		if err := s.transition(ctx, tx, &orig, statemachine.RescheduleApproved, approverID, current.Reason); err != nil {
			return err
		}

		appt = s.newPending(orig.PatientID, orig.DentistID, orig.ServiceID, current.RequestedDate, current.RequestedTime, orig.FeeCents)
		appt.RescheduledFrom = orig.ID
		if err := s.insertPending(ctx, tx, &appt, orig.ID); err != nil {
			return err
		}

		decidedAt := s.now().UTC()
		current.Status = model.RescheduleApproved
		current.DecidedBy = approverID
		current.DecidedAt = &decidedAt
		current.NewAppointmentID = appt.ID
		if err := s.updateReschedule(ctx, tx, &current); err != nil {
			return err
		}
		return emit(ctx, tx, "reschedule_request", current.ID, EventRescheduleDecided, reschedulePayloadFor(current))
	})
	if err != nil {
		s.metrics.ObserveReschedule("approve", resultLabel(err))
		return model.Appointment{}, err
	}

	s.metrics.ObserveReschedule("approve", "ok")
	s.metrics.ObserveTransition(string(originalFrom), string(model.StatusRescheduled))
	s.logger.Info("reschedule approved",
		"request_id", requestID,
		"original_appointment_id", original.ID,
		"appointment_id", appt.ID,
		"approver_id", approverID,
	)
	return appt, nil
}

// RejectReschedule closes the request; the original appointment stays as it is.
func (s *Service) RejectReschedule(ctx context.Context, requestID, approverID string) (model.RescheduleRequest, error) {
	v := &validator{}
	v.required("request_id", requestID)
	v.required("approver_id", approverID)
	if err := v.err(); err != nil {
		return model.RescheduleRequest{}, err
	}

	var out model.RescheduleRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		req, err := tx.GetReschedule(ctx, requestID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFound("reschedule request", requestID)
			}
			return err
		}
		if req.Status != model.ReschedulePending {
			return &StateError{ID: req.ID, Current: string(req.Status), Op: "reject reschedule"}
		}
		decidedAt := s.now().UTC()
		req.Status = model.RescheduleRejected
		req.DecidedBy = approverID
		req.DecidedAt = &decidedAt
		if err := s.updateReschedule(ctx, tx, &req); err != nil {
			return err
		}
		out = req
		return emit(ctx, tx, "reschedule_request", req.ID, EventRescheduleDecided, reschedulePayloadFor(req))
	})
	if err != nil {
		s.metrics.ObserveReschedule("reject", resultLabel(err))
		return model.RescheduleRequest{}, err
	}
	s.metrics.ObserveReschedule("reject", "ok")
	s.logger.Info("reschedule rejected", "request_id", requestID, "approver_id", approverID)
	return out, nil
}

// PendingReschedules is the front desk's reschedule queue, oldest first.
func (s *Service) PendingReschedules(ctx context.Context) ([]model.RescheduleRequest, error) {
	return s.store.ListReschedules(ctx, model.ReschedulePending)
}

func (s *Service) GetReschedule(ctx context.Context, requestID string) (model.RescheduleRequest, error) {
	req, err := s.store.GetReschedule(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.RescheduleRequest{}, notFound("reschedule request", requestID)
		}
		return model.RescheduleRequest{}, err
	}
	return req, nil
}

func (s *Service) loadReschedule(ctx context.Context, requestID string) (model.RescheduleRequest, model.Appointment, error) {
	req, err := s.GetReschedule(ctx, requestID)
	if err != nil {
		return model.RescheduleRequest{}, model.Appointment{}, err
	}
	if req.Status != model.ReschedulePending {
		return model.RescheduleRequest{}, model.Appointment{}, &StateError{ID: req.ID, Current: string(req.Status), Op: "approve reschedule"}
	}
	original, err := s.Get(ctx, req.OriginalAppointmentID)
	if err != nil {
		return model.RescheduleRequest{}, model.Appointment{}, err
	}
	return req, original, nil
}

func (s *Service) updateReschedule(ctx context.Context, tx storage.Tx, req *model.RescheduleRequest) error {
	if err := tx.UpdateReschedule(ctx, req); err != nil {
		if errors.Is(err, storage.ErrConcurrentUpdate) {
			return &StateError{ID: req.ID, Current: string(model.ReschedulePending), Op: "decide reschedule", Err: err}
		}
		return err
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrCutoffViolation):
		return "cutoff"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}

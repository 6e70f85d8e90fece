package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
)

// confirmedAt books D / 2025-01-10 / 10:00 AM and walks it to confirmed with the clock at now.
func confirmedAt(t *testing.T, now time.Time) (*harness, model.Appointment) {
	t.Helper()
	h := newHarness(t, now)
	ctx := context.Background()
	appt := h.book(t, "patient-1", "D", "2025-01-10", "10:00 AM")
	if _, err := h.svc.OnPaymentConfirmed(ctx, appt.ID); err != nil {
		t.Fatalf("OnPaymentConfirmed: %v", err)
	}
	confirmed, err := h.svc.Approve(ctx, appt.ID, "desk-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	return h, confirmed
}

var apptStart = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

func submission(apptID string) model.RescheduleSubmission {
	return model.RescheduleSubmission{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		RequestedDate: "2025-01-12",
		RequestedTime: "2:00 PM",
		Reason:        "work trip",
	}
}

func TestSubmitReschedule_Cutoff(t *testing.T) {
	h, appt := confirmedAt(t, apptStart.Add(-25*time.Hour))
	ctx := context.Background()

	h.clock.Set(apptStart.Add(-23 * time.Hour))
	_, err := h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if !errors.Is(err, ErrCutoffViolation) {
		t.Fatalf("expected ErrCutoffViolation at 23h, got %v", err)
	}

	h.clock.Set(apptStart.Add(-24 * time.Hour))
	req, err := h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if err != nil {
		t.Fatalf("exactly at the cutoff should be accepted: %v", err)
	}
	if req.Status != model.ReschedulePending || req.RequestedTime != "2:00 PM" {
		t.Fatalf("unexpected request %+v", req)
	}

	after, _ := h.svc.Get(ctx, appt.ID)
	if after.Status != model.StatusConfirmed || after.Version != appt.Version {
		t.Fatalf("submitting must not touch the appointment: %+v", after)
	}
}

func TestSubmitReschedule_Accepted25HoursAhead(t *testing.T) {
	h, appt := confirmedAt(t, apptStart.Add(-25*time.Hour))
	ctx := context.Background()

	req, err := h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if err != nil {
		t.Fatalf("SubmitReschedule: %v", err)
	}
	if req.OriginalAppointmentID != appt.ID || req.Reason != "work trip" {
		t.Fatalf("unexpected request %+v", req)
	}

	pending, err := h.svc.PendingReschedules(ctx)
	if err != nil || len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("PendingReschedules: %+v %v", pending, err)
	}

	_, err = h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second pending request must be refused, got %v", err)
	}
	if types := h.eventTypes(); types[len(types)-1] != EventRescheduleRequested {
		t.Fatalf("expected a reschedule.requested event last, got %v", types)
	}
}

func TestSubmitReschedule_Refusals(t *testing.T) {
	h, appt := confirmedAt(t, apptStart.Add(-72*time.Hour))
	ctx := context.Background()

	other := submission(appt.ID)
	other.PatientID = "patient-2"
	if _, err := h.svc.SubmitReschedule(ctx, other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign appointment must look missing, got %v", err)
	}

	if _, err := h.svc.SubmitReschedule(ctx, submission("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	same := submission(appt.ID)
	same.RequestedDate = "2025-01-10"
	same.RequestedTime = "10:00am"
	if _, err := h.svc.SubmitReschedule(ctx, same); !errors.Is(err, ErrValidation) {
		t.Fatalf("same slot must be a validation error, got %v", err)
	}

	bad := submission(appt.ID)
	bad.RequestedTime = "7:30 PM"
	if _, err := h.svc.SubmitReschedule(ctx, bad); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown slot must be a validation error, got %v", err)
	}

	pendingAppt := h.book(t, "patient-1", "D", "2025-01-11", "9:00 AM")
	sub := submission(pendingAppt.ID)
	if _, err := h.svc.SubmitReschedule(ctx, sub); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pending appointment cannot be rescheduled, got %v", err)
	}

	if _, err := h.svc.SubmitReschedule(ctx, model.RescheduleSubmission{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty submission must be a validation error, got %v", err)
	}
}

func TestApproveReschedule(t *testing.T) {
	h, appt := confirmedAt(t, apptStart.Add(-48*time.Hour))
	ctx := context.Background()

	req, err := h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if err != nil {
		t.Fatalf("SubmitReschedule: %v", err)
	}

	next, err := h.svc.ApproveReschedule(ctx, req.ID, "desk-2")
	if err != nil {
		t.Fatalf("ApproveReschedule: %v", err)
	}
	if next.Status != model.StatusPending || next.RescheduledFrom != appt.ID {
		t.Fatalf("unexpected new appointment %+v", next)
	}
	if model.FormatDate(next.Date) != "2025-01-12" || next.Time != "2:00 PM" || next.DentistID != "D" || next.FeeCents != appt.FeeCents {
		t.Fatalf("new appointment must take the requested slot: %+v", next)
	}

	original, _ := h.svc.Get(ctx, appt.ID)
	if original.Status != model.StatusRescheduled {
		t.Fatalf("original should be rescheduled, got %s", original.Status)
	}
	if label := original.StatusHistory[len(original.StatusHistory)-1].Label; label != "reschedule approved" {
		t.Fatalf("unexpected label %q", label)
	}
	assertHistoryValid(t, original, next)

	decided, err := h.svc.GetReschedule(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetReschedule: %v", err)
	}
	if decided.Status != model.RescheduleApproved || decided.DecidedBy != "desk-2" || decided.NewAppointmentID != next.ID || decided.DecidedAt == nil {
		t.Fatalf("unexpected decided request %+v", decided)
	}

	// The old slot is free again and the new one is held.
	h.book(t, "patient-9", "D", "2025-01-10", "10:00 AM")
	_, err = h.svc.CreateBooking(ctx, model.BookingRequest{PatientID: "patient-9", ServiceID: "cleaning", DentistID: "D", Date: "2025-01-12", Time: "2:00 PM"})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("requested slot should be held, got %v", err)
	}

	if _, err := h.svc.ApproveReschedule(ctx, req.ID, "desk-2"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second approval must fail, got %v", err)
	}
}

func TestApproveReschedule_SlotTakenMeanwhile(t *testing.T) {
	h, appt := confirmedAt(t, apptStart.Add(-48*time.Hour))
	ctx := context.Background()

	req, err := h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if err != nil {
		t.Fatalf("SubmitReschedule: %v", err)
	}
	h.book(t, "patient-7", "D", "2025-01-12", "2:00 PM")
	events := len(h.store.Events())

	_, err = h.svc.ApproveReschedule(ctx, req.ID, "desk-2")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	original, _ := h.svc.Get(ctx, appt.ID)
	if original.Status != model.StatusConfirmed || original.Version != appt.Version {
		t.Fatalf("failed approval must leave the original alone: %+v", original)
	}
	still, _ := h.svc.GetReschedule(ctx, req.ID)
	if still.Status != model.ReschedulePending {
		t.Fatalf("request should stay pending, got %s", still.Status)
	}
	if len(h.store.Events()) != events {
		t.Fatalf("failed approval emitted events")
	}
}

func TestRejectReschedule(t *testing.T) {
	h, appt := confirmedAt(t, apptStart.Add(-48*time.Hour))
	ctx := context.Background()

	req, err := h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if err != nil {
		t.Fatalf("SubmitReschedule: %v", err)
	}
	rejected, err := h.svc.RejectReschedule(ctx, req.ID, "desk-3")
	if err != nil {
		t.Fatalf("RejectReschedule: %v", err)
	}
	if rejected.Status != model.RescheduleRejected || rejected.DecidedBy != "desk-3" {
		t.Fatalf("unexpected rejected request %+v", rejected)
	}

	original, _ := h.svc.Get(ctx, appt.ID)
	if original.Status != model.StatusConfirmed || original.Version != appt.Version {
		t.Fatalf("rejection must leave the original alone: %+v", original)
	}

	if _, err := h.svc.RejectReschedule(ctx, req.ID, "desk-3"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second rejection must fail, got %v", err)
	}
	if _, err := h.svc.RejectReschedule(ctx, "missing", "desk-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A rejected request no longer blocks a new one.
	again, err := h.svc.SubmitReschedule(ctx, submission(appt.ID))
	if err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if again.ID == req.ID {
		t.Fatalf("expected a new request")
	}
}

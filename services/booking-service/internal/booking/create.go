package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/availability"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// CreateBooking reserves the requested slot as a pending appointment. It returns as soon as
// the reservation is stored; payment confirmation arrives separately via OnPaymentConfirmed.
func (s *Service) CreateBooking(ctx context.Context, req model.BookingRequest) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "booking.create",
		attribute.String("dentist_id", req.DentistID),
		attribute.String("date", req.Date),
		attribute.String("time", req.Time),
	)
	defer func() { endSpan(span, err) }()

	patientID := strings.TrimSpace(req.PatientID)
	serviceID := strings.TrimSpace(req.ServiceID)
	dentistID := strings.TrimSpace(req.DentistID)

	v := &validator{}
	v.required("patient_id", patientID)
	v.required("service_id", serviceID)
	v.required("dentist_id", dentistID)
	date, slot := s.validateSchedule(v, "date", "time", req.Date, req.Time)
	if err := v.err(); err != nil {
		s.metrics.ObserveBooking("invalid")
		return model.Appointment{}, err
	}

	release, err := s.lockSlot(ctx, dentistID, date, slot)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.ObserveBooking("slot_unavailable")
		}
		return model.Appointment{}, err
	}
	defer release()

	appt = s.newPending(patientID, dentistID, serviceID, date, slot, s.feeCents)
	err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return s.insertPending(ctx, tx, &appt, "")
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.ObserveBooking("slot_unavailable")
			s.logger.Info("booking lost slot", "dentist_id", dentistID, "date", model.FormatDate(date), "time", slot)
		}
		return model.Appointment{}, err
	}

	s.metrics.ObserveBooking("created")
	s.logger.Info("appointment requested",
		"appointment_id", appt.ID,
		"patient_id", appt.PatientID,
		"dentist_id", appt.DentistID,
		"date", model.FormatDate(appt.Date),
		"time", appt.Time,
	)
	return appt, nil
}

// validateSchedule parses a date/slot pair, requiring a catalog slot that has not started.
func (s *Service) validateSchedule(v *validator, dateField, timeField, rawDate, rawTime string) (time.Time, model.Slot) {
	v.required(dateField, rawDate)
	v.required(timeField, rawTime)
	if strings.TrimSpace(rawDate) == "" || strings.TrimSpace(rawTime) == "" {
		return time.Time{}, ""
	}

	date, err := model.ParseDate(rawDate)
	if err != nil {
		v.fail(dateField, "must be YYYY-MM-DD")
	}
	slot, ok := s.catalog.Resolve(rawTime)
	if !ok {
		v.fail(timeField, "not a clinic slot")
	}
	if err != nil || !ok {
		return time.Time{}, ""
	}

	start, err := s.slotStart(date, slot)
	if err != nil {
		v.fail(timeField, "not a clinic slot")
		return time.Time{}, ""
	}
	if start.Before(s.now()) {
		v.fail(dateField, "in the past")
	}
	return date, slot
}

// Slots lists the free, not yet started catalog slots for a dentist on a date.
func (s *Service) Slots(ctx context.Context, dentistID, rawDate string) ([]model.Slot, error) {
	v := &validator{}
	v.required("dentist_id", dentistID)
	v.required("date", rawDate)
	date, err := model.ParseDate(rawDate)
	if err != nil && strings.TrimSpace(rawDate) != "" {
		v.fail("date", "must be YYYY-MM-DD")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	appts, err := s.store.AppointmentsForDentistDay(ctx, dentistID, date)
	if err != nil {
		return nil, err
	}
	free := availability.AvailableSlots(dentistID, date, appts, s.catalog)
	return availability.Upcoming(date, free, s.now(), s.loc), nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, &ValidationError{Fields: map[string]string{"appointment_id": "required"}}
	}
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, notFound("appointment", id)
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, &ValidationError{Fields: map[string]string{"patient_id": "required"}}
	}
	return s.store.ListByPatient(ctx, patientID)
}

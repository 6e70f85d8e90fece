// Package booking drives appointments from the patient's request through payment and
// front-desk approval, and handles reschedule requests. Every mutation runs inside one
// storage transaction together with its history items and outbound events.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/batdimoiprint/medicare-booking/libs/otel"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/availability"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/history"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/metrics"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/slotlock"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/statemachine"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Actor names used when the system, not a person, triggers a transition.
const (
	ActorPaymentGateway = "payment-gateway"
	ActorExpiry         = "system:expiry"
)

const DefaultRescheduleCutoff = 24 * time.Hour

type Config struct {
	Catalog          availability.Catalog
	Location         *time.Location
	FeeCents         int64
	RescheduleCutoff time.Duration
}

type Service struct {
	store   storage.Store
	locker  slotlock.Locker
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
	tracer  trace.Tracer

	catalog  availability.Catalog
	loc      *time.Location
	feeCents int64
	cutoff   time.Duration

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(store storage.Store, locker slotlock.Locker, logger *slog.Logger, m *metrics.BookingMetrics, cfg Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RescheduleCutoff <= 0 {
		cfg.RescheduleCutoff = DefaultRescheduleCutoff
	}
	if cfg.FeeCents < 0 {
		cfg.FeeCents = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		locker:   locker,
		logger:   logger,
		metrics:  m,
		tracer:   otelx.Tracer("booking-service/booking"),
		catalog:  cfg.Catalog,
		loc:      cfg.Location,
		feeCents: cfg.FeeCents,
		cutoff:   cfg.RescheduleCutoff,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Catalog() availability.Catalog { return s.catalog }

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// lockSlot takes the slot guard for one dentist/date/time.
func (s *Service) lockSlot(ctx context.Context, dentistID string, date time.Time, slot model.Slot) (func(), error) {
	started := time.Now()
	release, err := s.locker.Lock(ctx, model.SlotKey(dentistID, date, slot))
	s.metrics.ObserveSlotLockWait(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, slotlock.ErrTimeout) {
			return nil, s.lockTimeout(ctx, dentistID, date, slot)
		}
		return nil, fmt.Errorf("slot lock: %w", err)
	}
	return release, nil
}

// lockTimeout answers a guard wait that ran out. The slot is only reported taken when the
// store already holds an occupying appointment for it.
func (s *Service) lockTimeout(ctx context.Context, dentistID string, date time.Time, slot model.Slot) error {
	key := model.SlotKey(dentistID, date, slot)
	sameDay, err := s.store.AppointmentsForDentistDay(ctx, dentistID, date)
	if err != nil {
		return fmt.Errorf("slot lock timed out, recheck %s: %w", key, err)
	}
	if !availability.IsSlotAvailable(dentistID, date, slot, sameDay) {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, key)
	}
	return fmt.Errorf("%w: %s", ErrSlotBusy, key)
}

// insertPending re-checks the slot inside tx and stores appt. ignoreID is left out of the
// availability check.
func (s *Service) insertPending(ctx context.Context, tx storage.Tx, appt *model.Appointment, ignoreID string) error {
	sameDay, err := tx.AppointmentsForDentistDay(ctx, appt.DentistID, appt.Date)
	if err != nil {
		return fmt.Errorf("load dentist day: %w", err)
	}
	if !availability.IsSlotAvailableExcept(appt.DentistID, appt.Date, appt.Time, sameDay, ignoreID) {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, appt.SlotKey())
	}
	if err := tx.InsertAppointment(ctx, appt); err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return fmt.Errorf("%w: %s", ErrSlotUnavailable, appt.SlotKey())
		}
		return err
	}
	return emit(ctx, tx, "appointment", appt.ID, EventAppointmentRequested, payloadFor(*appt))
}

func (s *Service) newPending(patientID, dentistID, serviceID string, date time.Time, slot model.Slot, feeCents int64) model.Appointment {
	now := s.now().UTC()
	return model.Appointment{
		ID:            s.newID(),
		PatientID:     patientID,
		DentistID:     dentistID,
		ServiceID:     serviceID,
		Date:          date,
		Time:          slot,
		FeeCents:      feeCents,
		Status:        model.StatusPending,
		StatusHistory: history.Append(nil, now, statemachine.InitialLabel),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// transition applies trigger to appt inside tx: status, history, version check and the
// status_changed event. appt is updated in place on success.
func (s *Service) transition(ctx context.Context, tx storage.Tx, appt *model.Appointment, trigger statemachine.Trigger, actor, reason string) error {
	res, err := statemachine.Apply(appt.Status, trigger)
	if err != nil {
		return &StateError{ID: appt.ID, Current: string(appt.Status), Op: string(trigger), Err: err}
	}

	now := s.now().UTC()
	from := appt.Status
	before := len(appt.StatusHistory)
	next := appt.Clone()
	next.StatusHistory = history.Append(appt.StatusHistory, now, res.Labels...)
	next.Status = res.To
	next.UpdatedAt = now
	if trigger == statemachine.Approve {
		next.ApprovedBy = actor
	}

	if err := tx.ApplyTransition(ctx, &next, history.Since(next.StatusHistory, before)); err != nil {
		if errors.Is(err, storage.ErrConcurrentUpdate) {
			return &StateError{ID: appt.ID, Current: string(from), Op: string(trigger), Err: err}
		}
		return fmt.Errorf("apply %s: %w", trigger, err)
	}
	if err := emitStatusChanged(ctx, tx, next, from, trigger, actor, reason, now); err != nil {
		return err
	}
	if next.Status == model.StatusConfirmed {
		if err := emit(ctx, tx, "appointment", next.ID, EventAppointmentConfirmed, payloadFor(next)); err != nil {
			return err
		}
	}
	*appt = next
	return nil
}

// applyTrigger loads the appointment, applies trigger and commits.
func (s *Service) applyTrigger(ctx context.Context, id string, trigger statemachine.Trigger, actor, reason string) (model.Appointment, error) {
	var out model.Appointment
	var from model.Status
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return &StateError{ID: id, Op: string(trigger), Err: ErrNotFound}
			}
			return err
		}
		from = appt.Status
		if err := s.transition(ctx, tx, &appt, trigger, actor, reason); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.metrics.ObserveTransition(string(from), string(out.Status))
	s.logger.Info("appointment transitioned",
		"appointment_id", out.ID,
		"from", from,
		"to", out.Status,
		"trigger", trigger,
		"actor", actor,
	)
	return out, nil
}

func (s *Service) slotStart(date time.Time, slot model.Slot) (time.Time, error) {
	return model.StartsAt(date, slot, s.loc)
}

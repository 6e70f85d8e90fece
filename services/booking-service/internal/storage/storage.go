// Package storage is the persistence boundary of the booking service. Callers mutate state
// only inside Store.InTx so a status change, its history items and its outbound events
// commit together or not at all.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/outbox"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrSlotTaken        = errors.New("slot already taken")
	ErrConcurrentUpdate = errors.New("concurrent update")
	ErrDuplicate        = errors.New("duplicate")
)

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Appointment, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Appointment, error)
	AppointmentsForDentistDay(ctx context.Context, dentistID string, date time.Time) ([]model.Appointment, error)

	GetReschedule(ctx context.Context, id string) (model.RescheduleRequest, error)
	ListReschedules(ctx context.Context, status model.RescheduleStatus) ([]model.RescheduleRequest, error)

	outbox.Source
}

// Tx is the set of reads and writes available inside a transaction. Reads through Tx see
// the transaction's own writes.
type Tx interface {
	AppointmentsForDentistDay(ctx context.Context, dentistID string, date time.Time) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)

	// InsertAppointment stores a new appointment with its history. It fails with
	// ErrSlotTaken when another occupying appointment holds the same slot.
	InsertAppointment(ctx context.Context, appt *model.Appointment) error

	// ApplyTransition persists appt's status fields and the appended history items if the
	// stored version still equals appt.Version, then bumps appt.Version.
	ApplyTransition(ctx context.Context, appt *model.Appointment, appended []model.StatusHistoryItem) error

	GetReschedule(ctx context.Context, id string) (model.RescheduleRequest, error)
	HasPendingReschedule(ctx context.Context, appointmentID string) (bool, error)
	InsertReschedule(ctx context.Context, req *model.RescheduleRequest) error
	UpdateReschedule(ctx context.Context, req *model.RescheduleRequest) error

	AppendEvent(ctx context.Context, evt outbox.Event) error
}

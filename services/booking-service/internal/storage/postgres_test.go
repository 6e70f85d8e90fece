package storage

import (
	"context"
	"testing"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var appointmentCols = []string{"id", "patient_id", "dentist_id", "service_id", "appt_date", "appt_time", "fee_cents", "status",
	"approved_by", "rescheduled_from", "version", "created_at", "updated_at"}

var historyCols = []string{"appointment_id", "step", "label", "occurred_at", "completed"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgres_InsertAppointment(t *testing.T) {
	mock := newMock(t)
	store := NewPostgres(mock)
	appt := newAppt("a1", "D", "10:00 AM", model.StatusPending, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").WithArgs(anyArgs(13)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO appointment_status_history").
		WithArgs("a1", 1, "service and schedule selected", pgxmock.AnyArg(), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertAppointment(ctx, appt)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if appt.Version != 1 {
		t.Fatalf("expected version 1, got %d", appt.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_InsertAppointmentSlotTaken(t *testing.T) {
	mock := newMock(t)
	store := NewPostgres(mock)
	appt := newAppt("a2", "D", "10:00 AM", model.StatusPending, time.Now())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").WithArgs(anyArgs(13)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uq"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertAppointment(ctx, appt)
	})
	if err != ErrSlotTaken {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_ApplyTransitionStaleVersion(t *testing.T) {
	mock := newMock(t)
	store := NewPostgres(mock)
	appt := newAppt("a1", "D", "10:00 AM", model.StatusScheduled, time.Now())
	appt.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").WithArgs("a1", int64(3), "scheduled", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.ApplyTransition(ctx, appt, nil)
	})
	if err != ErrConcurrentUpdate {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if appt.Version != 3 {
		t.Fatalf("version must not change on conflict")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_ApplyTransition(t *testing.T) {
	mock := newMock(t)
	store := NewPostgres(mock)
	appt := newAppt("a1", "D", "10:00 AM", model.StatusConfirmed, time.Now())
	appt.Version = 2
	appt.ApprovedBy = "desk-1"
	added := []model.StatusHistoryItem{
		{Step: 4, Label: "front-desk approved", Timestamp: time.Now(), Completed: true},
		{Step: 5, Label: "records synchronized", Timestamp: time.Now(), Completed: true},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").WithArgs("a1", int64(2), "confirmed", "desk-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO appointment_status_history").WithArgs("a1", 4, "front-desk approved", pgxmock.AnyArg(), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO appointment_status_history").WithArgs("a1", 5, "records synchronized", pgxmock.AnyArg(), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.ApplyTransition(ctx, appt, added)
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if appt.Version != 3 {
		t.Fatalf("expected version 3, got %d", appt.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_GetAppointment(t *testing.T) {
	mock := newMock(t)
	store := NewPostgres(mock)
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, patient_id").WithArgs("a1").WillReturnRows(
		pgxmock.NewRows(appointmentCols).AddRow("a1", "p1", "D", "cleaning", day, "10:00 AM", int64(50000), "scheduled", "", "", int64(2), created, created),
	)
	mock.ExpectQuery("FROM appointment_status_history").WithArgs([]string{"a1"}).WillReturnRows(
		pgxmock.NewRows(historyCols).
			AddRow("a1", 1, "service and schedule selected", created, true).
			AddRow("a1", 2, "availability re-confirmed", created, true).
			AddRow("a1", 3, "payment recorded", created, true),
	)

	appt, err := store.GetAppointment(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if appt.Status != model.StatusScheduled || appt.Time != "10:00 AM" || appt.FeeCents != 50000 {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if len(appt.StatusHistory) != 3 || appt.StatusHistory[2].Label != "payment recorded" {
		t.Fatalf("unexpected history %+v", appt.StatusHistory)
	}

	mock.ExpectQuery("SELECT id, patient_id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	if _, err := store.GetAppointment(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_ListByStatusEmpty(t *testing.T) {
	mock := newMock(t)
	store := NewPostgres(mock)

	mock.ExpectQuery("WHERE status = ").WithArgs("scheduled").WillReturnRows(pgxmock.NewRows(appointmentCols))

	appts, err := store.ListByStatus(context.Background(), model.StatusScheduled)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 0 {
		t.Fatalf("expected no appointments, got %d", len(appts))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_InsertRescheduleDuplicate(t *testing.T) {
	mock := newMock(t)
	store := NewPostgres(mock)
	req := &model.RescheduleRequest{ID: "r1", PatientID: "p", OriginalAppointmentID: "a1", RequestedDate: day, RequestedTime: "2:00 PM", Status: model.ReschedulePending, CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reschedule_requests").WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "reschedule_requests_pending_uq"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertReschedule(ctx, req)
	})
	if err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

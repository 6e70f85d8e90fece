package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/batdimoiprint/medicare-booking/libs/db"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// Constraint names from the migrations that map to domain errors.
const (
	constraintActiveSlot        = "appointments_active_slot_uq"
	constraintPendingReschedule = "reschedule_requests_pending_uq"
)

// DB is the query surface the Postgres store needs; *db.Pool and pgxmock pools satisfy it.
type DB interface {
	outbox.Beginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db     DB
	source *outbox.PostgresSource
}

func NewPostgres(conn DB) *Postgres {
	return &Postgres{db: conn, source: outbox.NewPostgresSource(conn)}
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) PublishBatch(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	return p.source.PublishBatch(ctx, limit, publish)
}

const appointmentColumns = `id, patient_id, dentist_id, service_id, appt_date, appt_time, fee_cents, status,
			approved_by, rescheduled_from, version, created_at, updated_at`

func (p *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointmentPG(ctx, p.db, id, false)
}

func (p *Postgres) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return listAppointmentsPG(ctx, p.db, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at, id
	`, patientID)
}

func (p *Postgres) ListByStatus(ctx context.Context, status model.Status) ([]model.Appointment, error) {
	return listAppointmentsPG(ctx, p.db, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		ORDER BY created_at, id
	`, string(status))
}

func (p *Postgres) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	return listAppointmentsPG(ctx, p.db, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2
	`, cutoff, limit)
}

func (p *Postgres) AppointmentsForDentistDay(ctx context.Context, dentistID string, date time.Time) ([]model.Appointment, error) {
	return dentistDayPG(ctx, p.db, dentistID, date)
}

func (p *Postgres) GetReschedule(ctx context.Context, id string) (model.RescheduleRequest, error) {
	return getReschedulePG(ctx, p.db, id, false)
}

func (p *Postgres) ListReschedules(ctx context.Context, status model.RescheduleStatus) ([]model.RescheduleRequest, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+rescheduleColumns+`
		FROM reschedule_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at, id
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RescheduleRequest
	for rows.Next() {
		r, err := scanReschedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) AppointmentsForDentistDay(ctx context.Context, dentistID string, date time.Time) ([]model.Appointment, error) {
	return dentistDayPG(ctx, t.tx, dentistID, date)
}

// GetAppointment locks the row for the rest of the transaction.
func (t *pgTx) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointmentPG(ctx, t.tx, id, true)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	if appt.Version == 0 {
		appt.Version = 1
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, patient_id, dentist_id, service_id, appt_date, appt_time, fee_cents, status,
			 approved_by, rescheduled_from, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, appt.ID, appt.PatientID, appt.DentistID, appt.ServiceID, appt.Date, string(appt.Time), appt.FeeCents,
		string(appt.Status), appt.ApprovedBy, appt.RescheduledFrom, appt.Version, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		if db.IsConstraintViolation(err, constraintActiveSlot) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return t.insertHistory(ctx, appt.ID, appt.StatusHistory)
}

func (t *pgTx) ApplyTransition(ctx context.Context, appt *model.Appointment, appended []model.StatusHistoryItem) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			approved_by = $4,
			updated_at = $5,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, appt.ID, appt.Version, string(appt.Status), appt.ApprovedBy, appt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	if err := t.insertHistory(ctx, appt.ID, appended); err != nil {
		return err
	}
	appt.Version++
	return nil
}

func (t *pgTx) insertHistory(ctx context.Context, appointmentID string, items []model.StatusHistoryItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO appointment_status_history (appointment_id, step, label, occurred_at, completed)
			VALUES ($1, $2, $3, $4, $5)
		`, appointmentID, item.Step, item.Label, item.Timestamp, item.Completed); err != nil {
			return fmt.Errorf("insert history step %d: %w", item.Step, err)
		}
	}
	return nil
}

func (t *pgTx) GetReschedule(ctx context.Context, id string) (model.RescheduleRequest, error) {
	return getReschedulePG(ctx, t.tx, id, true)
}

func (t *pgTx) HasPendingReschedule(ctx context.Context, appointmentID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reschedule_requests
			WHERE original_appointment_id = $1 AND status = 'pending'
		)
	`, appointmentID).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertReschedule(ctx context.Context, req *model.RescheduleRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reschedule_requests
			(id, patient_id, original_appointment_id, requested_date, requested_time, reason, status,
			 decided_by, decided_at, new_appointment_id, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, req.ID, req.PatientID, req.OriginalAppointmentID, req.RequestedDate, string(req.RequestedTime), req.Reason,
		string(req.Status), req.DecidedBy, req.DecidedAt, req.NewAppointmentID, req.Version, req.CreatedAt)
	if err != nil {
		if db.IsConstraintViolation(err, constraintPendingReschedule) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert reschedule: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateReschedule(ctx context.Context, req *model.RescheduleRequest) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE reschedule_requests
		SET status = $3,
			decided_by = $4,
			decided_at = $5,
			new_appointment_id = $6,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, req.ID, req.Version, string(req.Status), req.DecidedBy, req.DecidedAt, req.NewAppointmentID)
	if err != nil {
		return fmt.Errorf("update reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	req.Version++
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, t.tx, evt)
}

func getAppointmentPG(ctx context.Context, q querier, id string, forUpdate bool) (model.Appointment, error) {
	sql := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1`
	if forUpdate {
		sql += `
		FOR UPDATE`
	}
	appt, err := scanAppointment(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	hist, err := loadHistory(ctx, q, []string{appt.ID})
	if err != nil {
		return model.Appointment{}, err
	}
	appt.StatusHistory = hist[appt.ID]
	return appt, nil
}

func dentistDayPG(ctx context.Context, q querier, dentistID string, date time.Time) ([]model.Appointment, error) {
	return listAppointmentsPG(ctx, q, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = $1 AND appt_date = $2
		ORDER BY created_at, id
	`, dentistID, date)
}

func listAppointmentsPG(ctx context.Context, q querier, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		appts = append(appts, appt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ID)
	}
	hist, err := loadHistory(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range appts {
		appts[i].StatusHistory = hist[appts[i].ID]
	}
	return appts, nil
}

func loadHistory(ctx context.Context, q querier, ids []string) (map[string][]model.StatusHistoryItem, error) {
	rows, err := q.Query(ctx, `
		SELECT appointment_id, step, label, occurred_at, completed
		FROM appointment_status_history
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, step
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.StatusHistoryItem, len(ids))
	for rows.Next() {
		var id string
		var item model.StatusHistoryItem
		if err := rows.Scan(&id, &item.Step, &item.Label, &item.Timestamp, &item.Completed); err != nil {
			return nil, err
		}
		item.Timestamp = item.Timestamp.UTC()
		out[id] = append(out[id], item)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var slot, status string
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.DentistID,
		&appt.ServiceID,
		&appt.Date,
		&slot,
		&appt.FeeCents,
		&status,
		&appt.ApprovedBy,
		&appt.RescheduledFrom,
		&appt.Version,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Time = model.Slot(slot)
	appt.Status = model.Status(status)
	appt.Date = model.DateOf(appt.Date)
	return appt, nil
}

const rescheduleColumns = `id, patient_id, original_appointment_id, requested_date, requested_time, reason, status,
			decided_by, decided_at, new_appointment_id, version, created_at`

func getReschedulePG(ctx context.Context, q querier, id string, forUpdate bool) (model.RescheduleRequest, error) {
	sql := `
		SELECT ` + rescheduleColumns + `
		FROM reschedule_requests
		WHERE id = $1`
	if forUpdate {
		sql += `
		FOR UPDATE`
	}
	req, err := scanReschedule(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RescheduleRequest{}, ErrNotFound
		}
		return model.RescheduleRequest{}, err
	}
	return req, nil
}

func scanReschedule(row pgx.Row) (model.RescheduleRequest, error) {
	var r model.RescheduleRequest
	var slot, status string
	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.OriginalAppointmentID,
		&r.RequestedDate,
		&slot,
		&r.Reason,
		&status,
		&r.DecidedBy,
		&r.DecidedAt,
		&r.NewAppointmentID,
		&r.Version,
		&r.CreatedAt,
	)
	if err != nil {
		return model.RescheduleRequest{}, err
	}
	r.RequestedTime = model.Slot(slot)
	r.Status = model.RescheduleStatus(status)
	r.RequestedDate = model.DateOf(r.RequestedDate)
	return r, nil
}

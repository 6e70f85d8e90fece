package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/outbox"
)

// Memory is an in-process Store. Transactions are serialized and work on a copy of the
// state that replaces the committed state only when fn succeeds.
type Memory struct {
	txMu  sync.Mutex
	pubMu sync.Mutex

	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memOutboxRow struct {
	rec       outbox.Record
	published bool
}

type memState struct {
	appts       map[string]model.Appointment
	reschedules map[string]model.RescheduleRequest
	outbox      []memOutboxRow
	nextEventID int64
}

func NewMemory() *Memory {
	return &Memory{
		state: &memState{
			appts:       map[string]model.Appointment{},
			reschedules: map[string]model.RescheduleRequest{},
		},
		now: time.Now,
	}
}

func (s *memState) clone() *memState {
	out := &memState{
		appts:       make(map[string]model.Appointment, len(s.appts)),
		reschedules: make(map[string]model.RescheduleRequest, len(s.reschedules)),
		outbox:      append([]memOutboxRow(nil), s.outbox...),
		nextEventID: s.nextEventID,
	}
	for id, a := range s.appts {
		out.appts[id] = a.Clone()
	}
	for id, r := range s.reschedules {
		out.reschedules[id] = r
	}
	return out
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	working := m.state.clone()
	m.mu.RUnlock()

	if err := fn(ctx, &memTx{state: working, now: m.now}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = working
	m.mu.Unlock()
	return nil
}

func (m *Memory) read() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	return getAppointment(m.read(), id)
}

func (m *Memory) ListByPatient(_ context.Context, patientID string) ([]model.Appointment, error) {
	return filterAppointments(m.read(), func(a model.Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *Memory) ListByStatus(_ context.Context, status model.Status) ([]model.Appointment, error) {
	return filterAppointments(m.read(), func(a model.Appointment) bool { return a.Status == status }), nil
}

func (m *Memory) ListPendingCreatedBefore(_ context.Context, cutoff time.Time, limit int) ([]model.Appointment, error) {
	out := filterAppointments(m.read(), func(a model.Appointment) bool {
		return a.Status == model.StatusPending && a.CreatedAt.Before(cutoff)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) AppointmentsForDentistDay(_ context.Context, dentistID string, date time.Time) ([]model.Appointment, error) {
	return dentistDay(m.read(), dentistID, date), nil
}

func (m *Memory) GetReschedule(_ context.Context, id string) (model.RescheduleRequest, error) {
	return getReschedule(m.read(), id)
}

func (m *Memory) ListReschedules(_ context.Context, status model.RescheduleStatus) ([]model.RescheduleRequest, error) {
	st := m.read()
	var out []model.RescheduleRequest
	for _, r := range st.reschedules {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PublishBatch implements outbox.Source. publish runs without the transaction lock, so a
// slow broker does not hold up bookings. Batches are serialized with each other.
func (m *Memory) PublishBatch(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.RLock()
	var batch []outbox.Record
	for _, row := range m.state.outbox {
		if row.published {
			continue
		}
		batch = append(batch, row.rec)
		if limit > 0 && len(batch) == limit {
			break
		}
	}
	m.mu.RUnlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	sent := make(map[int64]bool, len(batch))
	for _, rec := range batch {
		sent[rec.ID] = true
	}
	// Taking txMu keeps a transaction that cloned the old rows from committing over the flags.
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *m.state
	next.outbox = make([]memOutboxRow, len(m.state.outbox))
	for i, row := range m.state.outbox {
		if sent[row.rec.ID] {
			row.published = true
		}
		next.outbox[i] = row
	}
	m.state = &next
	return len(batch), nil
}

// Events returns every outbox record written so far, published or not.
func (m *Memory) Events() []outbox.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]outbox.Record, 0, len(m.state.outbox))
	for _, row := range m.state.outbox {
		out = append(out, row.rec)
	}
	return out
}

type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) AppointmentsForDentistDay(_ context.Context, dentistID string, date time.Time) ([]model.Appointment, error) {
	return dentistDay(t.state, dentistID, date), nil
}

func (t *memTx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	return getAppointment(t.state, id)
}

func (t *memTx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	if _, exists := t.state.appts[appt.ID]; exists {
		return fmt.Errorf("appointment %s: %w", appt.ID, ErrDuplicate)
	}
	if appt.Status.OccupiesSlot() {
		for _, other := range t.state.appts {
			if other.Status.OccupiesSlot() && other.SlotKey() == appt.SlotKey() {
				return ErrSlotTaken
			}
		}
	}
	if appt.Version == 0 {
		appt.Version = 1
	}
	t.state.appts[appt.ID] = appt.Clone()
	return nil
}

func (t *memTx) ApplyTransition(_ context.Context, appt *model.Appointment, appended []model.StatusHistoryItem) error {
	stored, ok := t.state.appts[appt.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != appt.Version {
		return ErrConcurrentUpdate
	}
	next := appt.Clone()
	next.StatusHistory = append(stored.Clone().StatusHistory, appended...)
	next.Version = stored.Version + 1
	t.state.appts[appt.ID] = next
	appt.Version = next.Version
	appt.StatusHistory = append([]model.StatusHistoryItem(nil), next.StatusHistory...)
	return nil
}

func (t *memTx) GetReschedule(_ context.Context, id string) (model.RescheduleRequest, error) {
	return getReschedule(t.state, id)
}

func (t *memTx) HasPendingReschedule(_ context.Context, appointmentID string) (bool, error) {
	for _, r := range t.state.reschedules {
		if r.OriginalAppointmentID == appointmentID && r.Status == model.ReschedulePending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertReschedule(ctx context.Context, req *model.RescheduleRequest) error {
	if _, exists := t.state.reschedules[req.ID]; exists {
		return fmt.Errorf("reschedule %s: %w", req.ID, ErrDuplicate)
	}
	if req.Status == model.ReschedulePending {
		pending, _ := t.HasPendingReschedule(ctx, req.OriginalAppointmentID)
		if pending {
			return ErrDuplicate
		}
	}
	if req.Version == 0 {
		req.Version = 1
	}
	t.state.reschedules[req.ID] = *req
	return nil
}

func (t *memTx) UpdateReschedule(_ context.Context, req *model.RescheduleRequest) error {
	stored, ok := t.state.reschedules[req.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != req.Version {
		return ErrConcurrentUpdate
	}
	req.Version++
	t.state.reschedules[req.ID] = *req
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, evt outbox.Event) error {
	t.state.nextEventID++
	t.state.outbox = append(t.state.outbox, memOutboxRow{rec: outbox.Record{
		ID:        t.state.nextEventID,
		Event:     evt,
		CreatedAt: t.now().UTC(),
	}})
	return nil
}

func getAppointment(st *memState, id string) (model.Appointment, error) {
	a, ok := st.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a.Clone(), nil
}

func getReschedule(st *memState, id string) (model.RescheduleRequest, error) {
	r, ok := st.reschedules[id]
	if !ok {
		return model.RescheduleRequest{}, ErrNotFound
	}
	return r, nil
}

func dentistDay(st *memState, dentistID string, date time.Time) []model.Appointment {
	day := model.FormatDate(date)
	return filterAppointments(st, func(a model.Appointment) bool {
		return a.DentistID == dentistID && model.FormatDate(a.Date) == day
	})
}

// filterAppointments returns matches ordered by creation time.
func filterAppointments(st *memState, keep func(model.Appointment) bool) []model.Appointment {
	var out []model.Appointment
	for _, a := range st.appts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

package model

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending     Status = "pending"
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

var allStatuses = []Status{
	StatusPending,
	StatusScheduled,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
	StatusRescheduled,
}

func ParseStatus(raw string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transitions exist for s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// OccupiesSlot reports whether an appointment in status s holds its dentist/date/time.
// Unpaid pending reservations count as a soft hold.
func (s Status) OccupiesSlot() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed, StatusCompleted:
		return true
	}
	return false
}

// OccupyingStatuses lists the statuses that hold a slot, in lifecycle order.
func OccupyingStatuses() []Status {
	return []Status{StatusPending, StatusScheduled, StatusConfirmed, StatusCompleted}
}

type StatusHistoryItem struct {
	Step      int       `json:"step"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
	Completed bool      `json:"completed"`
}

type Appointment struct {
	ID              string
	PatientID       string
	DentistID       string
	ServiceID       string
	Date            time.Time
	Time            Slot
	FeeCents        int64
	Status          Status
	ApprovedBy      string
	StatusHistory   []StatusHistoryItem
	RescheduledFrom string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a copy that shares no history backing array with a.
func (a Appointment) Clone() Appointment {
	out := a
	out.StatusHistory = append([]StatusHistoryItem(nil), a.StatusHistory...)
	return out
}

// StartsAt is the wall-clock start of the appointment in loc.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return StartsAt(a.Date, a.Time, loc)
}

// SlotKey identifies the dentist/date/time triple an appointment occupies.
func (a Appointment) SlotKey() string {
	return SlotKey(a.DentistID, a.Date, a.Time)
}

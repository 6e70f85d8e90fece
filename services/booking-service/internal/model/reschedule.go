package model

import "time"

type RescheduleStatus string

const (
	ReschedulePending  RescheduleStatus = "pending"
	RescheduleApproved RescheduleStatus = "approved"
	RescheduleRejected RescheduleStatus = "rejected"
)

// RescheduleRequest asks the front desk to move an appointment. It never changes the
// original appointment until approved.
type RescheduleRequest struct {
	ID                    string
	PatientID             string
	OriginalAppointmentID string
	RequestedDate         time.Time
	RequestedTime         Slot
	Reason                string
	Status                RescheduleStatus
	DecidedBy             string
	DecidedAt             *time.Time
	NewAppointmentID      string
	Version               int64
	CreatedAt             time.Time
}

type RescheduleSubmission struct {
	PatientID     string
	AppointmentID string
	RequestedDate string
	RequestedTime string
	Reason        string
}

package model

// BookingRequest is a patient's raw booking input; Date is "2006-01-02" and Time a
// catalog slot label.
type BookingRequest struct {
	PatientID string
	ServiceID string
	DentistID string
	Date      string
	Time      string
}

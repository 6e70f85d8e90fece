package handlers

import (
	"net/http"
	"strings"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
)

type createBookingRequest struct {
	PatientID string `json:"patient_id"`
	ServiceID string `json:"service_id"`
	DentistID string `json:"dentist_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// The gateway's identity wins over a patient id in the body.
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		req.PatientID = id
	}

	appt, err := h.svc.CreateBooking(r.Context(), model.BookingRequest{
		PatientID: req.PatientID,
		ServiceID: req.ServiceID,
		DentistID: req.DentistID,
		Date:      req.Date,
		Time:      req.Time,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

type slotsResponse struct {
	DentistID string   `json:"dentist_id"`
	Date      string   `json:"date"`
	Slots     []string `json:"slots"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	dentistID := strings.TrimSpace(q.Get("dentist_id"))
	date := strings.TrimSpace(q.Get("date"))

	slots, err := h.svc.Slots(r.Context(), dentistID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := slotsResponse{DentistID: dentistID, Date: date, Slots: make([]string, 0, len(slots))}
	for _, s := range slots {
		out.Slots = append(out.Slots, string(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	patientID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if patientID == "" {
		patientID = strings.TrimSpace(r.URL.Query().Get("patient_id"))
	}
	appts, err := h.svc.ListForPatient(r.Context(), patientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(appts))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	appt, err := h.svc.Get(r.Context(), strings.TrimSpace(r.URL.Query().Get("appointment_id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), strings.TrimSpace(req.AppointmentID), userID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	RequestedDate string `json:"requested_date"`
	RequestedTime string `json:"requested_time"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) SubmitReschedule(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	patientID, ok := actor(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.SubmitReschedule(r.Context(), model.RescheduleSubmission{
		PatientID:     patientID,
		AppointmentID: req.AppointmentID,
		RequestedDate: req.RequestedDate,
		RequestedTime: req.RequestedTime,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRescheduleResponse(out))
}

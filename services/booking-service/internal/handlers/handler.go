package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/booking"
	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
)

// HeaderUserID carries the caller identity set by the upstream gateway.
const HeaderUserID = "X-User-Id"

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

// Register mounts the patient, front-desk and clinical routes.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/book", h.Create)
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/get", h.Get)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/reschedules", h.SubmitReschedule)

	mux.HandleFunc("/api/v1/frontdesk/queue", h.Queue)
	mux.HandleFunc("/api/v1/frontdesk/approve", h.Approve)
	mux.HandleFunc("/api/v1/frontdesk/reject", h.Reject)
	mux.HandleFunc("/api/v1/frontdesk/reschedules", h.PendingReschedules)
	mux.HandleFunc("/api/v1/frontdesk/reschedules/approve", h.ApproveReschedule)
	mux.HandleFunc("/api/v1/frontdesk/reschedules/reject", h.RejectReschedule)

	mux.HandleFunc("/api/v1/clinical/complete", h.Complete)
	mux.HandleFunc("/api/v1/clinical/no-show", h.NoShow)
}

type appointmentResponse struct {
	AppointmentID   string                    `json:"appointment_id"`
	PatientID       string                    `json:"patient_id"`
	DentistID       string                    `json:"dentist_id"`
	ServiceID       string                    `json:"service_id"`
	Date            string                    `json:"date"`
	Time            string                    `json:"time"`
	FeeCents        int64                     `json:"fee_cents"`
	Status          string                    `json:"status"`
	ApprovedBy      string                    `json:"approved_by,omitempty"`
	RescheduledFrom string                    `json:"rescheduled_from,omitempty"`
	StatusHistory   []model.StatusHistoryItem `json:"status_history"`
	Progress        model.Progress            `json:"progress"`
	CreatedAt       string                    `json:"created_at"`
	UpdatedAt       string                    `json:"updated_at"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		DentistID:       a.DentistID,
		ServiceID:       a.ServiceID,
		Date:            model.FormatDate(a.Date),
		Time:            string(a.Time),
		FeeCents:        a.FeeCents,
		Status:          string(a.Status),
		ApprovedBy:      a.ApprovedBy,
		RescheduledFrom: a.RescheduledFrom,
		StatusHistory:   a.StatusHistory,
		Progress:        model.ProgressFor(a.Status),
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAppointmentList(appts []model.Appointment) []appointmentResponse {
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	return items
}

type rescheduleResponse struct {
	RequestID             string `json:"request_id"`
	PatientID             string `json:"patient_id"`
	OriginalAppointmentID string `json:"original_appointment_id"`
	RequestedDate         string `json:"requested_date"`
	RequestedTime         string `json:"requested_time"`
	Reason                string `json:"reason,omitempty"`
	Status                string `json:"status"`
	DecidedBy             string `json:"decided_by,omitempty"`
	DecidedAt             string `json:"decided_at,omitempty"`
	NewAppointmentID      string `json:"new_appointment_id,omitempty"`
	CreatedAt             string `json:"created_at"`
}

func toRescheduleResponse(r model.RescheduleRequest) rescheduleResponse {
	out := rescheduleResponse{
		RequestID:             r.ID,
		PatientID:             r.PatientID,
		OriginalAppointmentID: r.OriginalAppointmentID,
		RequestedDate:         model.FormatDate(r.RequestedDate),
		RequestedTime:         string(r.RequestedTime),
		Reason:                r.Reason,
		Status:                string(r.Status),
		DecidedBy:             r.DecidedBy,
		NewAppointmentID:      r.NewAppointmentID,
		CreatedAt:             r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.DecidedAt != nil {
		out.DecidedAt = r.DecidedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// writeError maps booking errors onto status codes. Not-found is checked first because a
// missing appointment on a transition is also an invalid-state error.
func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *booking.ValidationError
	switch {
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, booking.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrSlotUnavailable):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, booking.ErrSlotBusy):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "time slot is being booked, retry shortly", http.StatusServiceUnavailable)
	case errors.Is(err, booking.ErrCutoffViolation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

// actor returns the caller from X-User-Id, answering 401 when it is missing.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		http.Error(w, "missing "+HeaderUserID+" header", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

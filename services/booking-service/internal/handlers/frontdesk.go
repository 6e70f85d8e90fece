package handlers

import (
	"net/http"
	"strings"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
)

type decisionRequest struct {
	AppointmentID string `json:"appointment_id"`
	RequestID     string `json:"request_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Queue(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	appts, err := h.svc.ApprovalQueue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(appts))
}

// decide reads the body and caller shared by every front-desk and clinical action.
func (h *BookingHandler) decide(w http.ResponseWriter, r *http.Request) (decisionRequest, string, bool) {
	var req decisionRequest
	if !requireMethod(w, r, http.MethodPost) {
		return req, "", false
	}
	userID, ok := actor(w, r)
	if !ok {
		return req, "", false
	}
	if !decodeJSON(w, r, &req) {
		return req, "", false
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Reason = strings.TrimSpace(req.Reason)
	return req, userID, true
}

func (h *BookingHandler) transitionResponse(w http.ResponseWriter, r *http.Request, appt model.Appointment, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := h.decide(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Approve(r.Context(), req.AppointmentID, userID)
	h.transitionResponse(w, r, appt, err)
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := h.decide(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Reject(r.Context(), req.AppointmentID, userID, req.Reason)
	h.transitionResponse(w, r, appt, err)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := h.decide(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Complete(r.Context(), req.AppointmentID, userID)
	h.transitionResponse(w, r, appt, err)
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := h.decide(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.MarkNoShow(r.Context(), req.AppointmentID, userID)
	h.transitionResponse(w, r, appt, err)
}

func (h *BookingHandler) PendingReschedules(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	reqs, err := h.svc.PendingReschedules(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]rescheduleResponse, 0, len(reqs))
	for _, rr := range reqs {
		items = append(items, toRescheduleResponse(rr))
	}
	writeJSON(w, http.StatusOK, items)
}

type rescheduleApprovalResponse struct {
	Request     rescheduleResponse  `json:"request"`
	Appointment appointmentResponse `json:"appointment"`
}

func (h *BookingHandler) ApproveReschedule(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := h.decide(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.ApproveReschedule(r.Context(), req.RequestID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	decided, err := h.svc.GetReschedule(r.Context(), req.RequestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rescheduleApprovalResponse{
		Request:     toRescheduleResponse(decided),
		Appointment: toAppointmentResponse(appt),
	})
}

func (h *BookingHandler) RejectReschedule(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := h.decide(w, r)
	if !ok {
		return
	}
	out, err := h.svc.RejectReschedule(r.Context(), req.RequestID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRescheduleResponse(out))
}

// Package statemachine holds the appointment transition table. It is a pure lookup: the
// current status lives on the appointment, never here.
package statemachine

import (
	"errors"
	"fmt"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
)

type Trigger string

const (
	PaymentConfirmed   Trigger = "payment_confirmed"
	Cancel             Trigger = "cancel"
	Approve            Trigger = "approve"
	Reject             Trigger = "reject"
	Complete           Trigger = "complete"
	NoShow             Trigger = "no_show"
	RescheduleApproved Trigger = "reschedule_approved"
	Expire             Trigger = "expire"
)

// InitialLabel is the history label written when an appointment is created.
const InitialLabel = "service and schedule selected"

var ErrIllegalTransition = errors.New("illegal transition")

type IllegalTransitionError struct {
	From    model.Status
	To      model.Status
	Trigger Trigger
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s on %s", e.From, e.To, e.Trigger)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Result is the outcome of a legal transition: the new status and the history labels to
// append, in order.
type Result struct {
	To     model.Status
	Labels []string
}

type edge struct {
	from    model.Status
	trigger Trigger
}

var targets = map[Trigger]model.Status{
	PaymentConfirmed:   model.StatusScheduled,
	Cancel:             model.StatusCancelled,
	Approve:            model.StatusConfirmed,
	Reject:             model.StatusCancelled,
	Complete:           model.StatusCompleted,
	NoShow:             model.StatusNoShow,
	RescheduleApproved: model.StatusRescheduled,
	Expire:             model.StatusCancelled,
}

var transitions = map[edge][]string{
	{model.StatusPending, PaymentConfirmed}: {"availability re-confirmed", "payment recorded"},
	{model.StatusPending, Cancel}:           {"appointment cancelled"},
	{model.StatusPending, Expire}:           {"reservation expired before payment"},

	{model.StatusScheduled, Approve}:            {"front-desk approved", "records synchronized"},
	{model.StatusScheduled, Reject}:             {"front-desk rejected"},
	{model.StatusScheduled, Cancel}:             {"appointment cancelled"},
	{model.StatusScheduled, RescheduleApproved}: {"reschedule approved"},

	{model.StatusConfirmed, Complete}:           {"visit completed"},
	{model.StatusConfirmed, NoShow}:             {"patient did not appear"},
	{model.StatusConfirmed, Cancel}:             {"appointment cancelled"},
	{model.StatusConfirmed, RescheduleApproved}: {"reschedule approved"},
}

// Target is the status trigger t leads to when it is legal.
func Target(t Trigger) model.Status {
	return targets[t]
}

func Apply(current model.Status, t Trigger) (Result, error) {
	labels, ok := transitions[edge{from: current, trigger: t}]
	if !ok {
		return Result{}, &IllegalTransitionError{From: current, To: targets[t], Trigger: t}
	}
	return Result{
		To:     targets[t],
		Labels: append([]string(nil), labels...),
	}, nil
}

func CanApply(current model.Status, t Trigger) bool {
	_, ok := transitions[edge{from: current, trigger: t}]
	return ok
}

package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrInvalidState    = errors.New("invalid state")
	ErrCutoffViolation = errors.New("reschedule cutoff violated")
	ErrNotFound        = errors.New("not found")

	// ErrSlotBusy means another booking held the slot guard past the wait. Retry later.
	ErrSlotBusy = errors.New("slot is being booked")
)

// ValidationError lists every rejected request field with the reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type validator struct {
	fields map[string]string
}

func (v *validator) fail(field, reason string) {
	if v.fields == nil {
		v.fields = map[string]string{}
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = reason
	}
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field, "required")
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// StateError reports an operation refused because of the current status of an appointment
// or reschedule request. It always matches ErrInvalidState, plus whatever Err matches.
type StateError struct {
	ID      string
	Current string
	Op      string
	Err     error
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("%s %s: invalid state", e.Op, e.ID)
	if e.Current != "" {
		msg = fmt.Sprintf("%s %s: not allowed from %s", e.Op, e.ID, e.Current)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StateError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidState}
	}
	return []error{ErrInvalidState, e.Err}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

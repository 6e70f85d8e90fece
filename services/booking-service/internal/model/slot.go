package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	SlotLayout = "3:04 PM"
)

// Slot is a time-of-day label from the clinic slot catalog, e.g. "10:00 AM".
type Slot string

// ParseSlot normalizes a slot label, accepting "10:00 am" or "10:00AM".
func ParseSlot(raw string) (Slot, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if !strings.Contains(s, " ") && len(s) > 2 {
		s = s[:len(s)-2] + " " + s[len(s)-2:]
	}
	t, err := time.Parse(SlotLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid slot %q", raw)
	}
	return Slot(t.Format(SlotLayout)), nil
}

// Clock returns the hour and minute the slot starts at.
func (s Slot) Clock() (int, int, error) {
	t, err := time.Parse(SlotLayout, string(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid slot %q", string(s))
	}
	return t.Hour(), t.Minute(), nil
}

// ParseDate parses a calendar date and returns it as midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return d, nil
}

// DateOf truncates t to its calendar date in t's location, returned as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// StartsAt combines a calendar date and slot into an instant in loc.
func StartsAt(date time.Time, slot Slot, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	h, m, err := slot.Clock()
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc), nil
}

func SlotKey(dentistID string, date time.Time, slot Slot) string {
	return dentistID + "|" + FormatDate(date) + "|" + string(slot)
}

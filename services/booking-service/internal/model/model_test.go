package model

import (
	"testing"
	"time"
)

func TestParseSlot(t *testing.T) {
	cases := map[string]Slot{
		"10:00 AM": "10:00 AM",
		"10:00 am": "10:00 AM",
		"9:30PM":   "9:30 PM",
		"09:00 AM": "9:00 AM",
	}
	for in, want := range cases {
		got, err := ParseSlot(in)
		if err != nil {
			t.Fatalf("ParseSlot(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseSlot(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "25:00 AM", "noon", "10:00"} {
		if _, err := ParseSlot(bad); err == nil {
			t.Fatalf("ParseSlot(%q) expected error", bad)
		}
	}
}

func TestStartsAt(t *testing.T) {
	loc := time.FixedZone("PHT", 8*60*60)
	date, err := ParseDate("2025-01-10")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	got, err := StartsAt(date, "2:30 PM", loc)
	if err != nil {
		t.Fatalf("StartsAt: %v", err)
	}
	want := time.Date(2025, 1, 10, 14, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("StartsAt = %s, want %s", got, want)
	}
	if key := SlotKey("d1", date, "2:30 PM"); key != "d1|2025-01-10|2:30 PM" {
		t.Fatalf("unexpected slot key %q", key)
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range OccupyingStatuses() {
		if !s.OccupiesSlot() {
			t.Fatalf("%s should occupy slot", s)
		}
	}
	for _, s := range []Status{StatusCancelled, StatusNoShow, StatusRescheduled} {
		if s.OccupiesSlot() {
			t.Fatalf("%s should release slot", s)
		}
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if _, ok := ParseStatus("confirmed"); !ok {
		t.Fatalf("expected confirmed to parse")
	}
	if _, ok := ParseStatus("Confirmed"); ok {
		t.Fatalf("status parsing is case sensitive")
	}
}

func TestProgressFor(t *testing.T) {
	if p := ProgressFor(StatusScheduled); p.Current != 2 || p.Done {
		t.Fatalf("scheduled progress = %+v", p)
	}
	if p := ProgressFor(StatusCompleted); p.Current != 4 || !p.Done {
		t.Fatalf("completed progress = %+v", p)
	}
	p := ProgressFor(StatusCancelled)
	if !p.Done || p.Outcome != StatusCancelled || p.Current != 0 {
		t.Fatalf("cancelled progress = %+v", p)
	}
	if len(p.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(p.Steps))
	}
}

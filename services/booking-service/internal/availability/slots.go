package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
)

// DefaultCatalog is the clinic-wide slot list used when none is configured.
var DefaultCatalog = []string{"9:00 AM", "10:00 AM", "11:00 AM", "1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM"}

// Catalog is the ordered, clinic-wide list of bookable times of day.
type Catalog struct {
	slots []model.Slot
	index map[model.Slot]int
}

// NewCatalog parses and deduplicates labels, keeping first-seen order.
func NewCatalog(labels []string) (Catalog, error) {
	c := Catalog{index: map[model.Slot]int{}}
	for _, raw := range labels {
		s, err := model.ParseSlot(raw)
		if err != nil {
			return Catalog{}, fmt.Errorf("slot catalog: %w", err)
		}
		if _, dup := c.index[s]; dup {
			continue
		}
		c.index[s] = len(c.slots)
		c.slots = append(c.slots, s)
	}
	if len(c.slots) == 0 {
		return Catalog{}, errors.New("slot catalog: empty")
	}
	return c, nil
}

func (c Catalog) Slots() []model.Slot {
	return append([]model.Slot(nil), c.slots...)
}

func (c Catalog) Contains(s model.Slot) bool {
	_, ok := c.index[s]
	return ok
}

// Resolve parses raw and checks it is a catalog slot.
func (c Catalog) Resolve(raw string) (model.Slot, bool) {
	s, err := model.ParseSlot(raw)
	if err != nil || !c.Contains(s) {
		return "", false
	}
	return s, true
}

// AvailableSlots returns the catalog slots, in catalog order, that no occupying appointment
// for dentistID on date holds. It makes no judgement about whether date is in the past.
func AvailableSlots(dentistID string, date time.Time, appts []model.Appointment, catalog Catalog) []model.Slot {
	taken := occupied(dentistID, date, appts, "")
	var free []model.Slot
	for _, s := range catalog.slots {
		if !taken[s] {
			free = append(free, s)
		}
	}
	return free
}

func IsSlotAvailable(dentistID string, date time.Time, slot model.Slot, appts []model.Appointment) bool {
	return IsSlotAvailableExcept(dentistID, date, slot, appts, "")
}

// IsSlotAvailableExcept ignores the appointment with id exceptID, which lets a reschedule
// land on a slot its own original holds.
func IsSlotAvailableExcept(dentistID string, date time.Time, slot model.Slot, appts []model.Appointment, exceptID string) bool {
	return !occupied(dentistID, date, appts, exceptID)[slot]
}

// Upcoming drops slots whose start on date is not after now.
func Upcoming(date time.Time, slots []model.Slot, now time.Time, loc *time.Location) []model.Slot {
	var out []model.Slot
	for _, s := range slots {
		start, err := model.StartsAt(date, s, loc)
		if err != nil || !start.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func occupied(dentistID string, date time.Time, appts []model.Appointment, exceptID string) map[model.Slot]bool {
	day := model.FormatDate(date)
	taken := map[model.Slot]bool{}
	for _, a := range appts {
		if a.ID == exceptID && exceptID != "" {
			continue
		}
		if a.DentistID != dentistID || model.FormatDate(a.Date) != day {
			continue
		}
		if a.Status.OccupiesSlot() {
			taken[a.Time] = true
		}
	}
	return taken
}

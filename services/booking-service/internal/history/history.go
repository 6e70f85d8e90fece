package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/batdimoiprint/medicare-booking/services/booking-service/internal/model"
)

var ErrCorrupt = errors.New("status history corrupt")

// Append returns a new slice holding log followed by one completed item per label.
// Steps continue from the last item; log itself is not modified.
func Append(log []model.StatusHistoryItem, at time.Time, labels ...string) []model.StatusHistoryItem {
	out := make([]model.StatusHistoryItem, len(log), len(log)+len(labels))
	copy(out, log)
	step := NextStep(log)
	for _, label := range labels {
		out = append(out, model.StatusHistoryItem{
			Step:      step,
			Label:     label,
			Timestamp: at.UTC(),
			Completed: true,
		})
		step++
	}
	return out
}

// Since returns the items appended after the first n.
func Since(log []model.StatusHistoryItem, n int) []model.StatusHistoryItem {
	if n >= len(log) {
		return nil
	}
	return log[n:]
}

func NextStep(log []model.StatusHistoryItem) int {
	if len(log) == 0 {
		return 1
	}
	return log[len(log)-1].Step + 1
}

func Latest(log []model.StatusHistoryItem) (model.StatusHistoryItem, bool) {
	if len(log) == 0 {
		return model.StatusHistoryItem{}, false
	}
	return log[len(log)-1], true
}

// Validate checks that log is non-empty, steps strictly increase and every item is completed.
func Validate(log []model.StatusHistoryItem) error {
	if len(log) == 0 {
		return fmt.Errorf("%w: empty", ErrCorrupt)
	}
	for i, item := range log {
		if !item.Completed {
			return fmt.Errorf("%w: step %d not completed", ErrCorrupt, item.Step)
		}
		if i > 0 && item.Step <= log[i-1].Step {
			return fmt.Errorf("%w: step %d follows %d", ErrCorrupt, item.Step, log[i-1].Step)
		}
	}
	return nil
}

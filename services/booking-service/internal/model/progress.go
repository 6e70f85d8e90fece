package model

// Step is one stage of the patient-facing booking timeline.
type Step struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

var bookingSteps = []string{
	"Service and schedule selected",
	"Reservation fee paid",
	"Front-desk approval",
	"Visit",
}

// Progress is the derived timeline view of an appointment. It is computed from status,
// never from history labels.
type Progress struct {
	Steps   []Step `json:"steps"`
	Current int    `json:"current"`
	Done    bool   `json:"done"`
	Outcome Status `json:"outcome,omitempty"`
}

func ProgressFor(s Status) Progress {
	steps := make([]Step, len(bookingSteps))
	for i, name := range bookingSteps {
		steps[i] = Step{Index: i + 1, Name: name}
	}
	p := Progress{Steps: steps}
	switch s {
	case StatusPending:
		p.Current = 1
	case StatusScheduled:
		p.Current = 2
	case StatusConfirmed:
		p.Current = 3
	case StatusCompleted:
		p.Current = 4
		p.Done = true
	case StatusCancelled, StatusNoShow, StatusRescheduled:
		p.Done = true
		p.Outcome = s
	}
	return p
}

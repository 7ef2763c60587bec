package events

import (
	"time"
)

var TaskCompletedTopic = "TaskCompletedEvent"

// SourceReport is the outcome of one source within a fetch task.
type SourceReport struct {
	Source     string
	Fetched    int
	Inserted   int
	Merged     int
	Probable   int
	Discarded  int
	Failed     int
	Skipped    bool
	SkipReason string
	Errors     []error
}

type TaskCompleted struct {
	MessageID string
	UserID    string
	Sources   []SourceReport
	Duration  time.Duration
	Acked     bool
}

func (e TaskCompleted) Inserted() int {
	total := 0
	for _, s := range e.Sources {
		total += s.Inserted
	}
	return total
}

// Errors flattens every per-source error.
func (e TaskCompleted) Errors() []error {
	var all []error
	for _, s := range e.Sources {
		all = append(all, s.Errors...)
	}
	return all
}

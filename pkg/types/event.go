package types

import "fmt"

// Priority orders events in the queue. Lower values are more urgent,
// so a plain ascending sort yields critical first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

var priorityNames = [...]string{"critical", "high", "normal", "low"}

func (p Priority) String() string {
	if p < PriorityCritical || p > PriorityLow {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority maps a priority name to its value.
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if s == name {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q (use: critical, high, normal, low)", s)
}

// Event is one queued notification as seen by a listing. The filename is
// the event's identity; full content lives in the file itself.
type Event struct {
	Filename string
	Source   string
	Type     string
	Priority Priority
	// Creation time in microseconds since the epoch, parsed from the
	// filename. Used for ordering and age display.
	TimestampMicros int64
}

package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the channel file does not exist. Distinct from an
	// empty channel, which reads successfully with zero messages.
	ErrNotFound = errors.New("channel file not found")

	// ErrExists: Create refuses to overwrite an existing channel.
	ErrExists = errors.New("channel file already exists")

	// ErrTimeout: Poll saw no message from another participant within
	// the wait budget.
	ErrTimeout = errors.New("poll timed out")
)

// CorruptionError reports shared state that violates a format invariant.
// It is never downgraded to a warning: guessing at corrupted state would
// compound the damage for every other participant reading the same file.
type CorruptionError struct {
	Path      string
	Invariant string
	Expected  string
	Actual    string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("channel %s corrupt: %s (expected %s, actual %s)",
		e.Path, e.Invariant, e.Expected, e.Actual)
}

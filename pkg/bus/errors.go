package bus

import "errors"

var (
	// ErrDirNotFound reports a missing or non-directory events path.
	ErrDirNotFound = errors.New("events directory not found")

	// ErrNotFound reports a named event that is neither pending nor
	// already acknowledged.
	ErrNotFound = errors.New("event not found")

	// ErrAlreadyAcked reports an ack race lost to another party: the
	// event is gone from pending but present under processed/.
	ErrAlreadyAcked = errors.New("event already acknowledged")

	// ErrDeduplicated reports a publish suppressed by the dedup window.
	ErrDeduplicated = errors.New("event deduplicated")

	// ErrInvalidName reports an event filename that is not a bare name
	// (empty, contains a path separator, or is a dot component).
	ErrInvalidName = errors.New("invalid event filename")

	// ErrInvalidArgs reports malformed publish arguments such as
	// whitespace in the source or type.
	ErrInvalidArgs = errors.New("invalid arguments")
)

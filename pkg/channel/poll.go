package channel

import (
	"fmt"
	"time"

	"github.com/filebus-org/go-filebus/pkg/types"
)

const pollInterval = time.Second

// Poll blocks until a message from a handle other than the caller's
// appears beyond the current end of the channel, or until timeout
// elapses (ErrTimeout). Only the calling process blocks; the channel is
// re-read at a fixed interval rather than subscribed to, so termination
// mid-wait leaves nothing behind.
func Poll(path, handle string, timeout time.Duration) (*types.Message, error) {
	state, err := Read(path)
	if err != nil {
		return nil, err
	}
	initialCount := len(state.Messages)

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrTimeout)
		}
		if remaining < pollInterval {
			time.Sleep(remaining)
		} else {
			time.Sleep(pollInterval)
		}

		state, err := Read(path)
		if err != nil {
			return nil, err
		}
		for i := initialCount; i < len(state.Messages); i++ {
			if state.Messages[i].Handle != handle {
				m := state.Messages[i]
				return &m, nil
			}
		}
	}
}

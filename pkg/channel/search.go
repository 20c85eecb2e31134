package channel

import (
	"fmt"
	"regexp"

	"github.com/filebus-org/go-filebus/pkg/types"
)

// Match is one search hit with its absolute channel index.
type Match struct {
	Index   int
	Message types.Message
}

// Search scans decoded payloads for pattern (Go regexp), optionally
// restricted to one sender. There is no index; cost is linear in the
// channel size.
func Search(path, pattern, handle string) ([]Match, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
	}

	state, err := Read(path)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for i, m := range state.Messages {
		if handle != "" && m.Handle != handle {
			continue
		}
		if re.MatchString(m.Content) {
			matches = append(matches, Match{Index: i, Message: m})
		}
	}
	return matches, nil
}

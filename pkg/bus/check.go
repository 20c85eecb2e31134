package bus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/filebus-org/go-filebus/pkg/types"
)

// Check lists pending events, most urgent first, ties broken by age.
// A non-empty source restricts the listing to that publisher. The
// result reflects the directory at scan time; nothing is cached.
func Check(dir, source string) ([]types.Event, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	events, err := scanPending(dir)
	if err != nil {
		return nil, err
	}
	if source == "" {
		return events, nil
	}
	filtered := events[:0]
	for _, ev := range events {
		if ev.Source == source {
			filtered = append(filtered, ev)
		}
	}
	return filtered, nil
}

// ReadEvent returns the raw content of one pending event file. The
// name must be bare; missing files report ErrNotFound.
func ReadEvent(dir, name string) ([]byte, error) {
	if !validEventName(name) {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading event %s: %w", name, err)
	}
	return data, nil
}

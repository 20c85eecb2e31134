package bus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/filebus-org/go-filebus/util"
)

// Ack moves one event from pending into processed/ with a single
// rename. When several parties ack the same name, exactly one rename
// succeeds; a loser gets ErrAlreadyAcked if the name now sits under
// processed/, otherwise ErrNotFound. A successful return only proves
// this caller relocated the file, not that it handled the event.
func Ack(dir, name string) error {
	if !validEventName(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	if err := checkDir(dir); err != nil {
		return err
	}
	if err := ensureProcessed(dir); err != nil {
		return err
	}

	src := filepath.Join(dir, name)
	dst := filepath.Join(dir, processedDir, name)
	if err := os.Rename(src, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			return fmt.Errorf("%s: %w", name, ErrAlreadyAcked)
		}
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return nil
}

// AckAll acknowledges every pending event, optionally only those from
// one source, and returns how many this caller actually moved. Events
// raced away by a concurrent ack are counted as someone else's.
func AckAll(dir, source string) (int, error) {
	events, err := Check(dir, source)
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, ev := range events {
		if err := Ack(dir, ev.Filename); err != nil {
			util.Debug("ack-all: %s: %v", ev.Filename, err)
			continue
		}
		acked++
	}
	return acked, nil
}

package channel

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/filebus-org/go-filebus/pkg/lockfile"
	"github.com/filebus-org/go-filebus/pkg/types"
	"github.com/filebus-org/go-filebus/util"
)

// Read cursors live in a sidecar <channel>.cursors file: one
// "handle=index" line per participant, where index is the last message
// index that handle has seen. The sidecar shares the channel's lock.
//
// Two cursor semantics exist and must not be conflated: "after my last
// post" is served by SinceOwnPost and never touches this file; "after my
// last read" is served by ReadUnread and is the only thing that advances
// a cursor (besides cursor-on-write at send time).

type cursorEntry struct {
	handle string
	index  int
}

func cursorPath(channelPath string) string {
	return channelPath + ".cursors"
}

// readCursors parses the sidecar without locking. Callers that go on to
// write must hold the channel lock across read and write.
func readCursors(channelPath string) ([]cursorEntry, error) {
	f, err := os.Open(cursorPath(channelPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open cursor file: %w", err)
	}
	defer f.Close()

	var entries []cursorEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		entries = append(entries, cursorEntry{
			handle: line[:eq],
			index:  util.ParseInt(line[eq+1:], 0),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cursor file: %w", err)
	}
	return entries, nil
}

// writeCursors replaces the sidecar via temp file and atomic rename.
func writeCursors(channelPath string, entries []cursorEntry) error {
	cpath := cursorPath(channelPath)

	var b strings.Builder
	b.WriteString("# Read cursors: last-read message index per handle\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s=%d\n", e.handle, e.index)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cpath), ".cursors-*")
	if err != nil {
		return fmt.Errorf("create cursor temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cursor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("flush cursor file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod cursor file: %w", err)
	}
	if err := os.Rename(tmpName, cpath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize cursor file: %w", err)
	}
	return nil
}

// Cursor returns handle's stored cursor, reporting whether one exists.
func Cursor(channelPath, handle string) (int, bool, error) {
	entries, err := readCursors(channelPath)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.handle == handle {
			return e.index, true, nil
		}
	}
	return 0, false, nil
}

// AdvanceCursor moves handle's cursor to index under the channel lock.
// The move is strictly monotonic: a stale caller can never drag the
// cursor backwards.
func AdvanceCursor(channelPath, handle string, index int) error {
	if index < 0 {
		return fmt.Errorf("cursor index must be non-negative, got %d", index)
	}
	// Check existence before locking so a bad path does not leave a
	// stray lock file behind.
	if _, err := os.Stat(channelPath); os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", channelPath, ErrNotFound)
	}

	lk, err := lockfile.Acquire(channelPath, lockfile.DefaultTimeout)
	if err != nil {
		return err
	}
	defer lk.Release()

	return advanceCursorLocked(channelPath, handle, index)
}

// setCursorLocked stores index for handle unconditionally, including a
// value lower than the current one. It exists for clamping: a stale
// out-of-range cursor must be lowered on disk, or the monotonic guard in
// advanceCursorLocked would pin it above every future message. Caller
// holds the channel lock. index may be -1, meaning nothing read yet.
func setCursorLocked(channelPath, handle string, index int) error {
	entries, err := readCursors(channelPath)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].handle == handle {
			entries[i].index = index
			return writeCursors(channelPath, entries)
		}
	}
	return writeCursors(channelPath, append(entries, cursorEntry{handle: handle, index: index}))
}

func advanceCursorLocked(channelPath, handle string, index int) error {
	entries, err := readCursors(channelPath)
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].handle != handle {
			continue
		}
		found = true
		if entries[i].index >= index {
			return nil // monotonic: never move backward
		}
		entries[i].index = index
	}
	if !found {
		entries = append(entries, cursorEntry{handle: handle, index: index})
	}

	return writeCursors(channelPath, entries)
}

// ReadUnread returns the messages handle has not read yet and advances
// the cursor to the current end, exactly once, under the channel lock.
// The state written is always the true on-disk end observed after lock
// acquisition, never a pre-lock snapshot, so two concurrent reads under a
// shared handle cannot store an inconsistent position.
func ReadUnread(channelPath, handle string) ([]types.Message, error) {
	if _, err := os.Stat(channelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", channelPath, ErrNotFound)
	}

	lk, err := lockfile.Acquire(channelPath, lockfile.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	defer lk.Release()

	state, _, err := readFile(channelPath)
	if err != nil {
		return nil, err
	}

	start := 0
	last := len(state.Messages) - 1
	cursor, ok, err := Cursor(channelPath, handle)
	if err != nil {
		return nil, err
	}
	if ok {
		// Clamp a cursor pointing past the end (stale process, or a
		// log that was recreated shorter) into range, and persist the
		// lowered value: left at its stale height, the monotonic
		// advance below would never move it again and every later
		// message would stay invisible to this handle.
		if cursor > last {
			cursor = last
			if err := setCursorLocked(channelPath, handle, cursor); err != nil {
				return nil, fmt.Errorf("clamp cursor for %s: %w", handle, err)
			}
		}
		start = cursor + 1
	}

	unread := state.Messages[start:]

	if last >= 0 {
		if err := advanceCursorLocked(channelPath, handle, last); err != nil {
			return nil, fmt.Errorf("advance cursor for %s: %w", handle, err)
		}
	}

	return unread, nil
}

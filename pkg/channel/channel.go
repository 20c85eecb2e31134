// Package channel implements the append-only, multi-writer message log.
//
// A channel is one text file: a fixed header (format marker, last writer,
// last write time, self-referential declared length, participant table)
// followed by one base64-encoded record per message in append order. The
// declared length lets any reader detect a torn or tampered file without
// parsing every record.
//
// Mutations take the exclusive lock from pkg/lockfile, re-read the
// authoritative on-disk state, and replace the file with a single atomic
// rename. Nothing observed before lock acquisition is ever trusted:
// another process may have appended in between.
package channel

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/filebus-org/go-filebus/pkg/codec"
	"github.com/filebus-org/go-filebus/pkg/lockfile"
	"github.com/filebus-org/go-filebus/pkg/types"
	"github.com/filebus-org/go-filebus/util"
)

// maxRecordLine bounds a single encoded record line.
const maxRecordLine = 1 << 20

// State is a point-in-time snapshot of one channel file.
type State struct {
	LastWriter   string
	LastWrite    string
	FileLength   int64
	Participants []types.Participant
	Messages     []types.Message
}

// Create writes an empty channel at path. It fails with ErrExists if the
// file is already present.
func Create(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}

	body := formatMarker + "\n" +
		lastWriterPrefix + "system\n" +
		lastWritePrefix + time.Now().Format(timestampLayout) + "\n" +
		participantsPrefix + "\n" +
		headerDelimiter + "\n"

	return writeChannelFile(path, body, computeFileLength(body))
}

// Read parses the channel at path and verifies the declared length
// against the actual file size. A mismatch is corruption: the sequence is
// refused rather than guessed at.
func Read(path string) (*State, error) {
	state, _, err := readFile(path)
	return state, err
}

// Send appends one message under the channel lock and returns its index.
// The sender's read cursor is advanced to the new message afterwards
// (cursor-on-write), so the sender's own post never shows up as unread.
func Send(path, handle, text string) (int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, fmt.Errorf("%s: %w", path, ErrNotFound)
	}

	lk, err := lockfile.Acquire(path, lockfile.DefaultTimeout)
	if err != nil {
		return 0, err
	}

	index, err := appendLocked(path, handle, text)
	releaseErr := lk.Release()
	if err != nil {
		return 0, err
	}
	if releaseErr != nil {
		return 0, releaseErr
	}

	// Cursor-on-write runs after the channel lock is released so
	// AdvanceCursor can take it independently. The race window is
	// benign: if another message lands first, the cursor ends up at our
	// index or later, both of which are correct.
	if err := AdvanceCursor(path, handle, index); err != nil {
		util.Warn("cursor-on-write failed for %s: %v", handle, err)
	}

	return index, nil
}

// appendLocked performs the read-modify-write cycle. Caller holds the lock.
func appendLocked(path, handle, text string) (int, error) {
	state, encodedLines, err := readFile(path)
	if err != nil {
		return 0, err
	}

	record := fmt.Sprintf("%s|%d: %s", handle, time.Now().Unix(), text)
	encoded := codec.Encode([]byte(record))
	index := len(encodedLines)

	state.LastWriter = handle
	state.LastWrite = time.Now().Format(timestampLayout)
	state.Participants = bumpParticipant(state.Participants, handle)

	var b strings.Builder
	b.WriteString(formatMarker + "\n")
	b.WriteString(lastWriterPrefix + state.LastWriter + "\n")
	b.WriteString(lastWritePrefix + state.LastWrite + "\n")
	b.WriteString(participantsPrefix + formatParticipants(state.Participants) + "\n")
	b.WriteString(headerDelimiter + "\n")
	for _, line := range encodedLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(encoded)
	b.WriteByte('\n')

	body := b.String()
	if err := writeChannelFile(path, body, computeFileLength(body)); err != nil {
		return 0, err
	}
	return index, nil
}

// writeChannelFile writes the header (with the file-length line inserted
// after last-write) plus body to a temp file and renames it over path.
// The rename keeps lockless readers safe: they see the old file or the
// new one, never a torn write.
func writeChannelFile(path, bodyWithoutLength string, fileLength int64) error {
	insertAt := strings.Index(bodyWithoutLength, participantsPrefix)
	if insertAt < 0 {
		return fmt.Errorf("malformed channel body: no participant table")
	}
	content := bodyWithoutLength[:insertAt] +
		fileLengthPrefix + strconv.FormatInt(fileLength, 10) + "\n" +
		bodyWithoutLength[insertAt:]

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".chat-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write channel file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("flush channel file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod channel file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize channel file: %w", err)
	}

	// Postcondition: the declared length matches what we wrote.
	if int64(len(content)) != fileLength {
		return &CorruptionError{
			Path:      path,
			Invariant: "declared file-length equals written size",
			Expected:  strconv.FormatInt(fileLength, 10),
			Actual:    strconv.Itoa(len(content)),
		}
	}
	return nil
}

// readFile parses path into a State plus the raw encoded record lines
// (needed by appendLocked to rewrite the file byte-exactly).
func readFile(path string) (*State, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("open channel %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat channel %s: %w", path, err)
	}
	actualSize := info.Size()

	state := &State{}
	var encodedLines []string

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxRecordLine)

	sawMarker := false
	inHeader := false
	pastHeader := false
	declaredSeen := false

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if !sawMarker {
			if line != formatMarker {
				return nil, nil, &CorruptionError{
					Path:      path,
					Invariant: "file begins with the format marker",
					Expected:  formatMarker,
					Actual:    truncateForError(line),
				}
			}
			sawMarker = true
			inHeader = true
			continue
		}

		if inHeader {
			if line == headerDelimiter {
				inHeader = false
				pastHeader = true
				// Verify the declared length before touching any
				// record: truncation must be detectable without
				// decoding the tail of a damaged file.
				if !declaredSeen {
					return nil, nil, &CorruptionError{
						Path:      path,
						Invariant: "header declares a file-length",
						Expected:  "file-length header line",
						Actual:    "absent",
					}
				}
				if state.FileLength != actualSize {
					return nil, nil, &CorruptionError{
						Path:      path,
						Invariant: "declared file-length equals actual file size",
						Expected:  strconv.FormatInt(state.FileLength, 10),
						Actual:    strconv.FormatInt(actualSize, 10),
					}
				}
				continue
			}
			switch {
			case strings.HasPrefix(line, lastWriterPrefix):
				state.LastWriter = line[len(lastWriterPrefix):]
			case strings.HasPrefix(line, lastWritePrefix):
				state.LastWrite = line[len(lastWritePrefix):]
			case strings.HasPrefix(line, fileLengthPrefix):
				n, err := strconv.ParseInt(strings.TrimSpace(line[len(fileLengthPrefix):]), 10, 64)
				if err != nil {
					return nil, nil, &CorruptionError{
						Path:      path,
						Invariant: "declared file-length is a decimal integer",
						Expected:  "integer",
						Actual:    truncateForError(line[len(fileLengthPrefix):]),
					}
				}
				state.FileLength = n
				declaredSeen = true
			case strings.HasPrefix(line, participantsPrefix):
				state.Participants = parseParticipants(line[len(participantsPrefix):])
			}
			continue
		}

		if pastHeader && line != "" {
			msg, err := decodeRecord(path, line, len(encodedLines))
			if err != nil {
				return nil, nil, err
			}
			encodedLines = append(encodedLines, line)
			state.Messages = append(state.Messages, msg)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read channel %s: %w", path, err)
	}

	if !pastHeader {
		return nil, nil, &CorruptionError{
			Path:      path,
			Invariant: "header ends with a delimiter",
			Expected:  headerDelimiter,
			Actual:    "absent",
		}
	}

	return state, encodedLines, nil
}

// decodeRecord turns one encoded line into a Message. Records are
// "handle|epoch: content"; records without the epoch (written before
// timestamps existed) parse with a zero timestamp.
func decodeRecord(path, line string, index int) (types.Message, error) {
	raw, err := codec.Decode(line)
	if err != nil {
		return types.Message{}, &CorruptionError{
			Path:      path,
			Invariant: fmt.Sprintf("record %d is canonical base64", index),
			Expected:  "decodable record",
			Actual:    err.Error(),
		}
	}

	text := string(raw)
	sep := strings.Index(text, ": ")
	if sep <= 0 {
		return types.Message{}, &CorruptionError{
			Path:      path,
			Invariant: fmt.Sprintf("record %d has a sender prefix", index),
			Expected:  "handle|epoch: content",
			Actual:    truncateForError(text),
		}
	}

	prefix := text[:sep]
	content := text[sep+2:]

	handle := prefix
	var epoch int64
	if pipe := strings.IndexByte(prefix, '|'); pipe > 0 {
		handle = prefix[:pipe]
		if v, err := strconv.ParseInt(prefix[pipe+1:], 10, 64); err == nil && v > 0 {
			epoch = v
		}
	}
	if handle == "" {
		return types.Message{}, &CorruptionError{
			Path:      path,
			Invariant: fmt.Sprintf("record %d has a non-empty sender", index),
			Expected:  "handle",
			Actual:    "empty",
		}
	}

	return types.Message{Handle: handle, Timestamp: epoch, Content: content}, nil
}

func truncateForError(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}

// Participants returns the header's participant table.
func Participants(path string) ([]types.Participant, error) {
	state, err := Read(path)
	if err != nil {
		return nil, err
	}
	return state.Participants, nil
}

// SinceOwnPost returns the messages strictly after handle's most recent
// post. It reads nothing destructively and is repeatable; a handle that
// has never posted sees the full history.
func SinceOwnPost(state *State, handle string) []types.Message {
	last := -1
	for i, m := range state.Messages {
		if m.Handle == handle {
			last = i
		}
	}
	return state.Messages[last+1:]
}

// AfterIndex returns the messages strictly after the absolute index.
func AfterIndex(state *State, index int) []types.Message {
	if index < -1 {
		index = -1
	}
	if index >= len(state.Messages) {
		return nil
	}
	return state.Messages[index+1:]
}

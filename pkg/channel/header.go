package channel

import (
	"strconv"
	"strings"

	"github.com/filebus-org/go-filebus/pkg/types"
	"github.com/filebus-org/go-filebus/util"
)

// Header field prefixes of the channel file format.
const (
	formatMarker       = "=== filebus-chat ==="
	headerDelimiter    = "---"
	lastWriterPrefix   = "last-writer: "
	lastWritePrefix    = "last-write: "
	fileLengthPrefix   = "file-length: "
	participantsPrefix = "participants: "
)

const timestampLayout = "2006-01-02T15:04:05-0700"

// parseParticipants reads a "alice(3), bob(1)" participant table.
// Malformed counts default to zero rather than failing the whole header.
func parseParticipants(line string) []types.Participant {
	var parts []types.Participant
	for _, field := range strings.Split(line, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		handle := field
		count := 0
		if open := strings.IndexByte(field, '('); open >= 0 {
			handle = field[:open]
			if end := strings.IndexByte(field[open:], ')'); end > 0 {
				count = util.ParseInt(field[open+1:open+end], 0)
			}
		}
		if handle == "" {
			continue
		}
		parts = append(parts, types.Participant{Handle: handle, Count: count})
	}
	return parts
}

func formatParticipants(parts []types.Participant) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Handle)
		b.WriteByte('(')
		b.WriteString(strconv.Itoa(p.Count))
		b.WriteByte(')')
	}
	return b.String()
}

// bumpParticipant increments handle's message count, appending a new
// entry on first contact.
func bumpParticipant(parts []types.Participant, handle string) []types.Participant {
	for i := range parts {
		if parts[i].Handle == handle {
			parts[i].Count++
			return parts
		}
	}
	return append(parts, types.Participant{Handle: handle, Count: 1})
}

// computeFileLength solves the self-referential declared length: the
// header's "file-length: N" line counts toward N, so N depends on its own
// digit count. content is the full file text without that line.
func computeFileLength(content string) int64 {
	base := int64(len(content))

	// The inserted line is "file-length: " + digits + "\n" = 14 + digits.
	digits := int64(len(strconv.FormatInt(base, 10)))
	candidate := base + 14 + digits

	// Inserting the line may have pushed N across a digit boundary.
	if int64(len(strconv.FormatInt(candidate, 10))) != digits {
		candidate = base + 14 + int64(len(strconv.FormatInt(candidate, 10)))
	}
	return candidate
}

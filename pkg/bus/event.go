// Package bus implements a directory-backed priority event queue.
//
// Every event is one YAML file in the events directory. Publishing
// writes a temp file and renames it into place; acknowledging renames
// the file into the processed/ subdirectory. Both transitions are a
// single rename, so an event is never observable half-written and
// exactly one concurrent ack of a given name succeeds. No lock is
// taken for publish because each event creates a new unique file.
//
// Deduplication is best-effort, not a guarantee: the pending-directory
// scan runs without a lock, so two publishers racing inside the same
// window can both miss each other's in-flight event. The dedup-key is
// recorded in every event regardless of whether a window is in force.
package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/filebus-org/go-filebus/pkg/types"
	"github.com/filebus-org/go-filebus/util"
)

const (
	eventSuffix  = ".event"
	processedDir = "processed"
	timeLayout   = "2006-01-02T15:04:05Z"
)

// record is the on-disk YAML shape of one event. Field order matches
// the emitted document; payload renders as a block scalar when it
// spans lines, so an operator can read the file without tooling.
type record struct {
	Source    string `yaml:"source"`
	Type      string `yaml:"type"`
	Priority  string `yaml:"priority"`
	Timestamp string `yaml:"timestamp"`
	DedupKey  string `yaml:"dedup-key"`
	Payload   string `yaml:"payload,omitempty"`
}

// eventFilename builds a collision-proof name. The microsecond
// timestamp gives sortable uniqueness in time; the uuid fragment
// breaks ties between concurrent publishers in the same microsecond.
func eventFilename(tsMicros int64, source, eventType string) string {
	return fmt.Sprintf("%d-%s-%s-%s%s",
		tsMicros, source, eventType, uuid.NewString()[:8], eventSuffix)
}

// filenameTimestamp extracts the leading microsecond timestamp. Source
// and type may themselves contain '-', so the filename is authoritative
// only for the timestamp; the file content carries the rest.
func filenameTimestamp(name string) (int64, bool) {
	dash := strings.IndexByte(name, '-')
	if dash <= 0 {
		return 0, false
	}
	var ts int64
	for _, c := range name[:dash] {
		if c < '0' || c > '9' {
			return 0, false
		}
		ts = ts*10 + int64(c-'0')
	}
	return ts, true
}

// validEventName rejects anything that is not a bare filename. Event
// names come from untrusted callers and are joined onto the events
// directory, so path components must never pass through.
func validEventName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}

func readRecord(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("malformed event %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// scanPending collects the pending events of dir, skipping the
// processed/ subdirectory, non-event names, and files that vanish or
// fail to parse mid-scan. Ordering is priority-major (critical first)
// then timestamp-minor, recomputed fresh on every call.
func scanPending(dir string) ([]types.Event, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", dir, ErrDirNotFound)
		}
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	var events []types.Event
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, eventSuffix) {
			continue
		}
		ts, ok := filenameTimestamp(name)
		if !ok {
			continue
		}
		rec, err := readRecord(filepath.Join(dir, name))
		if err != nil {
			util.Debug("skipping unreadable event %s: %v", name, err)
			continue
		}
		pri, err := types.ParsePriority(rec.Priority)
		if err != nil {
			pri = types.PriorityNormal
		}
		events = append(events, types.Event{
			Filename:        name,
			Source:          rec.Source,
			Type:            rec.Type,
			Priority:        pri,
			TimestampMicros: ts,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Priority != events[j].Priority {
			return events[i].Priority < events[j].Priority
		}
		return events[i].TimestampMicros < events[j].TimestampMicros
	})
	return events, nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, ErrDirNotFound)
	}
	return nil
}

func ensureProcessed(dir string) error {
	path := filepath.Join(dir, processedDir)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return nil
}

// FormatAge renders a microsecond age the way check output shows it.
func FormatAge(deltaMicros int64) string {
	seconds := deltaMicros / int64(time.Second/time.Microsecond)
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh ago", seconds/3600)
	default:
		return fmt.Sprintf("%dd ago", seconds/86400)
	}
}

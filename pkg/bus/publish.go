package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/filebus-org/go-filebus/pkg/types"
	"github.com/filebus-org/go-filebus/util"
)

// Publish writes one event into dir and returns its filename. The
// source and type become part of the filename and the dedup-key, so
// neither may be empty or contain whitespace. The processed/
// subdirectory is created here so a later ack never races mkdir.
func Publish(dir, source, eventType string, priority types.Priority, payload string) (string, error) {
	if source == "" || hasWhitespace(source) {
		return "", fmt.Errorf("source handle %q must be non-empty without whitespace: %w",
			source, ErrInvalidArgs)
	}
	if eventType == "" || hasWhitespace(eventType) {
		return "", fmt.Errorf("event type %q must be non-empty without whitespace: %w",
			eventType, ErrInvalidArgs)
	}
	if err := checkDir(dir); err != nil {
		return "", err
	}
	if err := ensureProcessed(dir); err != nil {
		return "", err
	}

	now := time.Now()
	rec := record{
		Source:    source,
		Type:      eventType,
		Priority:  priority.String(),
		Timestamp: now.UTC().Format(timeLayout),
		DedupKey:  source + ":" + eventType,
		Payload:   payload,
	}
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return "", fmt.Errorf("encoding event: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+eventSuffix)
	if err != nil {
		return "", fmt.Errorf("creating event file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing event file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("flushing event file: %w", err)
	}

	filename := eventFilename(now.UnixMicro(), source, eventType)
	if err := os.Rename(tmp.Name(), filepath.Join(dir, filename)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("finalising event file: %w", err)
	}
	return filename, nil
}

// PublishDedup is Publish with a suppression window: if a pending
// event with the same source:type key is younger than window, the new
// event is dropped with ErrDeduplicated. Suppression is best-effort
// (see the package comment); a zero window publishes unconditionally.
func PublishDedup(dir, source, eventType string, priority types.Priority, payload string, window time.Duration) (string, error) {
	if window <= 0 {
		return Publish(dir, source, eventType, priority, payload)
	}

	key := source + ":" + eventType
	cutoff := time.Now().Add(-window).UnixMicro()

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Let Publish produce the canonical directory error.
		return Publish(dir, source, eventType, priority, payload)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, eventSuffix) {
			continue
		}
		ts, ok := filenameTimestamp(name)
		if !ok || ts < cutoff {
			continue
		}
		rec, err := readRecord(filepath.Join(dir, name))
		if err != nil {
			util.Debug("dedup scan: %v", err)
			continue
		}
		if rec.DedupKey == key {
			return "", fmt.Errorf("%s within window: %w", key, ErrDeduplicated)
		}
	}

	return Publish(dir, source, eventType, priority, payload)
}

func hasWhitespace(s string) bool {
	return strings.ContainsFunc(s, unicode.IsSpace)
}

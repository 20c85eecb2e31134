package bus

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filebus-org/go-filebus/pkg/types"
)

// Status summarises a queue directory at a point in time.
type Status struct {
	Pending      int
	ByPriority   [4]int
	OldestMicros int64 // zero when nothing is pending

	ProcessedCount int
	ProcessedBytes int64

	// Stale counts pending events older than the configured
	// ack-timeout. Zero when no timeout is configured.
	Stale int
}

// QueueStatus inspects dir and its processed/ subdirectory. A missing
// processed/ directory reads as zero processed events, not an error.
func QueueStatus(dir string) (*Status, error) {
	events, err := Check(dir, "")
	if err != nil {
		return nil, err
	}

	st := &Status{Pending: len(events)}
	for _, ev := range events {
		if ev.Priority >= types.PriorityCritical && ev.Priority <= types.PriorityLow {
			st.ByPriority[ev.Priority]++
		}
		if st.OldestMicros == 0 || ev.TimestampMicros < st.OldestMicros {
			st.OldestMicros = ev.TimestampMicros
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, processedDir))
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), eventSuffix) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			st.ProcessedCount++
			st.ProcessedBytes += info.Size()
		}
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	if cfg.AckTimeout > 0 {
		cutoff := time.Now().Add(-cfg.AckTimeout).UnixMicro()
		for _, ev := range events {
			if ev.TimestampMicros < cutoff {
				st.Stale++
			}
		}
	}
	return st, nil
}

package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/filebus-org/go-filebus/util"
)

// PruneResult reports what a prune pass removed and what remains in
// processed/.
type PruneResult struct {
	Pruned         int
	RemainingBytes int64
}

type pruneEntry struct {
	name string
	tsUs int64
	size int64
}

// scanProcessed lists processed events oldest first. An absent
// processed/ directory yields an empty list.
func scanProcessed(dir string) ([]pruneEntry, int64, error) {
	processed := filepath.Join(dir, processedDir)
	entries, err := os.ReadDir(processed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("scanning %s: %w", processed, err)
	}

	var list []pruneEntry
	var total int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, eventSuffix) {
			continue
		}
		ts, ok := filenameTimestamp(name)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		list = append(list, pruneEntry{name: name, tsUs: ts, size: info.Size()})
		total += info.Size()
	}
	sort.Slice(list, func(i, j int) bool { return list[i].tsUs < list[j].tsUs })
	return list, total, nil
}

// PruneBytes deletes oldest processed events until the processed/
// directory fits maxBytes. Pending events are never touched.
func PruneBytes(dir string, maxBytes int64) (*PruneResult, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	list, total, err := scanProcessed(dir)
	if err != nil {
		return nil, err
	}

	res := &PruneResult{RemainingBytes: total}
	for _, e := range list {
		if res.RemainingBytes <= maxBytes {
			break
		}
		if err := os.Remove(filepath.Join(dir, processedDir, e.name)); err != nil {
			util.Warn("failed to prune %s: %v", e.name, err)
			continue
		}
		res.RemainingBytes -= e.size
		res.Pruned++
	}
	return res, nil
}

// PruneAge deletes processed events older than maxAge. Pending events
// are never touched.
func PruneAge(dir string, maxAge time.Duration) (*PruneResult, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	list, total, err := scanProcessed(dir)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge).UnixMicro()
	res := &PruneResult{RemainingBytes: total}
	for _, e := range list {
		if e.tsUs >= cutoff {
			break // oldest-first order, the rest are younger
		}
		if err := os.Remove(filepath.Join(dir, processedDir, e.name)); err != nil {
			util.Warn("failed to prune %s: %v", e.name, err)
			continue
		}
		res.RemainingBytes -= e.size
		res.Pruned++
	}
	return res, nil
}

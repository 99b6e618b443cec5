package panels

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// historyIndexEntry is one line in history/index.json, newest-first.
type historyIndexEntry struct {
	Timestamp int64  `json:"timestamp"`
	File      string `json:"file"`
}

// writeHistory clones the given panel export files into a per-cycle
// timestamped directory under <dir>/history, appends to the index
// file (newest-first), and prunes to limit entries, per spec.md §4.7
// item 4.
func writeHistory(dir string, generated time.Time, panelFiles map[string][]byte, limit int) error {
	if limit <= 0 {
		limit = 50
	}
	histDir := filepath.Join(dir, "history")
	if err := os.MkdirAll(histDir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	ts := generated.UTC().Unix()
	cloneName := strconv.FormatInt(ts, 10) + ".json"
	clonePath := filepath.Join(histDir, cloneName)
	clone, err := json.MarshalIndent(panelFiles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history clone: %w", err)
	}
	if err := writeAtomic(clonePath, clone); err != nil {
		return err
	}

	indexPath := filepath.Join(histDir, "index.json")
	var entries []historyIndexEntry
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = json.Unmarshal(data, &entries)
	}
	entries = append([]historyIndexEntry{{Timestamp: ts, File: cloneName}}, entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })

	var pruned []historyIndexEntry
	if len(entries) > limit {
		pruned = entries[limit:]
		entries = entries[:limit]
	}
	for _, p := range pruned {
		os.Remove(filepath.Join(histDir, p.File))
	}

	return writeJSONAtomic(indexPath, entries)
}

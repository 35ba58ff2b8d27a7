// Package journal mirrors decision_logs rows to human-readable JSON files on
// disk, one per decision, as a companion to the database-backed audit trail:
// the teacher's own per-cycle JSON dump, repointed at consensus decisions
// instead of LLM trading cycles.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hivemind-decide/pkg/decisionlog"
)

// Writer persists decisionlog.Record values to a directory as JSON files.
// Safe for concurrent use by multiple handleFill goroutines.
type Writer struct {
	dir   string
	nowFn func() time.Time

	mu  sync.Mutex
	seq int
}

// NewWriter constructs a journal writer rooted at dir, creating it if
// necessary. An empty dir defaults to "journal".
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteDecision writes one decision record to a timestamped JSON file and
// returns its path. Implements decisionlog.Dumper.
func (w *Writer) WriteDecision(record decisionlog.Record) (string, error) {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	ts := record.CreatedAt
	if ts.IsZero() {
		ts = w.nowFn()
	}
	name := fmt.Sprintf("%s_%s_%05d.json", record.DecisionType, ts.UTC().Format("20060102_150405"), seq)
	path := filepath.Join(w.dir, name)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("journal: marshal record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("journal: write %s: %w", path, err)
	}
	return path, nil
}

// Package runlog records per-resource progress of batch fetch runs.
//
// Layout under the runs directory:
//
//	<dir>/<run_id>/
//	  progress.jsonl   # one JSON object per processed resource
//	  ok/<resource>.ok     # empty marker
//	  err/<resource>.json  # structured error payload
//
// The log is append-only and idempotent: logging the same resource twice
// just appends another line. Timestamps are UTC RFC 3339.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Status classifies the outcome for one resource in a run.
type Status string

const (
	StatusOK   Status = "ok"
	StatusSkip Status = "skip"
	StatusErr  Status = "err"
)

// Entry is one progress line.
type Entry struct {
	Time     string `json:"time"`
	Resource string `json:"resource"`
	Status   Status `json:"status"`
	Bucket   string `json:"bucket,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Log writes progress for one batch run.
type Log struct {
	runDir string
	runID  string

	mu       sync.Mutex
	progress *os.File
}

// New opens a run log under dir. An empty runID defaults to a
// filesystem-safe UTC timestamp, e.g. "2025-10-30T07-59-12".
func New(dir, runID string) (*Log, error) {
	if runID == "" {
		runID = time.Now().UTC().Format("2006-01-02T15-04-05")
	}

	runDir := filepath.Join(dir, runID)
	for _, d := range []string{runDir, filepath.Join(runDir, "ok"), filepath.Join(runDir, "err")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
	}

	progress, err := os.OpenFile(
		filepath.Join(runDir, "progress.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open progress log: %w", err)
	}

	return &Log{runDir: runDir, runID: runID, progress: progress}, nil
}

// RunID returns the identifier of this run.
func (l *Log) RunID() string {
	return l.runID
}

// Dir returns the directory holding this run's files.
func (l *Log) Dir() string {
	return l.runDir
}

// Log appends an entry to progress.jsonl. The entry's Time is stamped here.
func (l *Log) Log(e Entry) error {
	e.Time = time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal progress entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.progress.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append progress entry: %w", err)
	}
	return nil
}

// MarkOK drops an empty OK marker for resource.
func (l *Log) MarkOK(resource string) error {
	path := filepath.Join(l.runDir, "ok", sanitize(resource)+".ok")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("mark ok %s: %w", resource, err)
	}
	return f.Close()
}

// MarkErr writes a structured error payload for resource.
func (l *Log) MarkErr(resource string, detail map[string]any) error {
	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal error payload for %s: %w", resource, err)
	}
	path := filepath.Join(l.runDir, "err", sanitize(resource)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("mark err %s: %w", resource, err)
	}
	return nil
}

// sanitize maps a resource id onto a safe marker file name. Slashes and
// other unsafe characters become underscores so a marker can never land
// outside the run directory.
func sanitize(resource string) string {
	var b strings.Builder
	b.Grow(len(resource))
	for _, r := range resource {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Close closes the progress file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress.Close()
}

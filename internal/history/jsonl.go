package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lp-pool-watcher/internal/model"
)

// FileRecorder appends snapshots as JSON lines into daily files under a
// data directory.
type FileRecorder struct {
	dir string
	mu  sync.Mutex
}

// NewFileRecorder constructs a FileRecorder rooted at dir.
func NewFileRecorder(dir string) *FileRecorder {
	return &FileRecorder{dir: dir}
}

// Append writes one snapshot to the current day's file.
func (r *FileRecorder) Append(_ context.Context, snapshot model.PoolSnapshot) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("snapshots_%s.jsonl", snapshot.SampledAt.UTC().Format("20060102")))

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush history file: %w", err)
	}

	return nil
}

var _ Recorder = (*FileRecorder)(nil)

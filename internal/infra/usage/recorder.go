// Package usage implements the append-only attempt log. Every terminal
// outcome (success or exhaustion) is recorded; the prompt itself never is,
// only its one-way hash, so usage stays auditable without retaining content.
package usage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vietddude/genroute/internal/core/domain"
)

// Recorder accepts terminal attempt records. Implementations must never fail
// the caller: write errors are swallowed and logged at debug level.
type Recorder interface {
	Record(rec domain.AttemptRecord)
}

// HashContent returns the hex SHA-256 of a request payload.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FileRecorder appends one JSON line per record. Concurrent writers from
// other processes share the file; consumers must tolerate a partial last
// line.
type FileRecorder struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFileRecorder creates a recorder appending to the given JSONL file.
func NewFileRecorder(path string) *FileRecorder {
	return &FileRecorder{path: path}
}

// Record appends the record. Failures are downgraded to a debug trace.
func (r *FileRecorder) Record(rec domain.AttemptRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			slog.Debug("Usage log dir create failed", "path", r.path, "error", err)
			return
		}
		f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			slog.Debug("Usage log open failed", "path", r.path, "error", err)
			return
		}
		r.file = f
	}

	line, err := json.Marshal(rec)
	if err != nil {
		slog.Debug("Usage record marshal failed", "error", err)
		return
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		slog.Debug("Usage log write failed", "path", r.path, "error", err)
	}
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// MultiRecorder fans records out to several sinks.
type MultiRecorder []Recorder

// Record sends the record to every sink.
func (m MultiRecorder) Record(rec domain.AttemptRecord) {
	for _, r := range m {
		r.Record(rec)
	}
}

// NopRecorder discards everything.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(domain.AttemptRecord) {}

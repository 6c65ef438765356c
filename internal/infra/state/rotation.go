package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/vietddude/genroute/internal/core/domain"
)

// RotationStore persists the per-tier round-robin cursor: the index at which
// the next resolution starts iterating an already-ranked candidate list.
//
// There is deliberately no cross-process lock here. A lost update between two
// processes only skews fairness for a call or two; it never corrupts state.
type RotationStore interface {
	// StartIndex returns the persisted cursor for the tier, 0 when the
	// file or key is absent or unreadable.
	StartIndex(tier string) int

	// Advance moves the cursor past the chosen key. Called only after a
	// successful generation. A no-op when the key is not in candidates.
	Advance(tier string, chosen domain.ModelKey, candidates []domain.ModelKey)
}

// FileRotationStore is the file-backed RotationStore. The backing file is a
// flat JSON map of tier name to next index.
type FileRotationStore struct {
	path string
	mu   sync.Mutex
}

// NewFileRotationStore creates a store over the given JSON file.
func NewFileRotationStore(path string) *FileRotationStore {
	return &FileRotationStore{path: path}
}

// StartIndex reads the persisted cursor, failing open to 0 (declared order).
func (s *FileRotationStore) StartIndex(tier string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursors := s.read()
	idx := cursors[tier]
	if idx < 0 {
		return 0
	}
	return idx
}

// Advance persists the cursor just past the chosen key.
func (s *FileRotationStore) Advance(tier string, chosen domain.ModelKey, candidates []domain.ModelKey) {
	pos := -1
	for i, key := range candidates {
		if key == chosen {
			pos = i
			break
		}
	}
	if pos < 0 {
		// Config changed under us; skip rather than guess.
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cursors := s.read()
	cursors[tier] = (pos + 1) % len(candidates)

	if err := writeJSONAtomic(s.path, cursors); err != nil {
		slog.Debug("Rotation persist failed", "path", s.path, "tier", tier, "error", err)
	}
}

// read loads the backing file fresh on every call so cursors advanced by
// sibling processes are honored. Any error means "start at declared order".
func (s *FileRotationStore) read() map[string]int {
	cursors := make(map[string]int)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Rotation file read failed", "path", s.path, "error", err)
		}
		return cursors
	}
	if err := json.Unmarshal(data, &cursors); err != nil {
		slog.Debug("Rotation file unparsable", "path", s.path, "error", err)
		return make(map[string]int)
	}
	return cursors
}

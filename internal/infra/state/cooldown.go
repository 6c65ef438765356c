package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// CooldownStore maps a provider to the time its cooldown expires. Entries at
// or past expiry are logically absent. Set never shortens an active cooldown.
//
// Persistence failures are swallowed: a cooldown that fails to persist is
// merely forgotten when the process exits, it never breaks generation.
type CooldownStore interface {
	// Get reports whether the provider is cooling down and until when.
	Get(provider string) (time.Time, bool)

	// Set extends the provider's cooldown to now+d, unless an existing
	// entry already expires later.
	Set(provider string, d time.Duration)
}

// FileCooldownStore is the file-backed CooldownStore. The backing file is a
// flat JSON map of provider name to epoch-seconds expiry, shared by all
// cooperating processes on the host. Reloads are debounced on the file's
// modification time.
type FileCooldownStore struct {
	path string

	mu      sync.Mutex
	entries map[string]time.Time
	lastMod time.Time

	now func() time.Time
}

// NewFileCooldownStore creates a store over the given JSON file. An absent
// file means no active cooldowns.
func NewFileCooldownStore(path string) *FileCooldownStore {
	return &FileCooldownStore{
		path:    path,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Get reports whether the provider is cooling down. Expired entries are
// pruned from both the cache and the backing file.
func (s *FileCooldownStore) Get(provider string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadIfChanged()

	until, ok := s.entries[provider]
	if !ok {
		return time.Time{}, false
	}
	if !until.After(s.now()) {
		// Self-prune: the entry expired since it was cached.
		delete(s.entries, provider)
		s.persist()
		return time.Time{}, false
	}
	return until, true
}

// Set extends the provider's cooldown to now+d. A no-op when an existing
// entry already expires later, so concurrent stale writers never weaken an
// active cooldown.
func (s *FileCooldownStore) Set(provider string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadIfChanged()

	until := s.now().Add(d)
	if existing, ok := s.entries[provider]; ok && existing.After(until) {
		return
	}
	s.entries[provider] = until
	s.persist()
}

// reloadIfChanged re-reads the backing file when its modification time moved,
// dropping entries that have already expired. Callers hold s.mu.
func (s *FileCooldownStore) reloadIfChanged() {
	info, err := os.Stat(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Cooldown file stat failed", "path", s.path, "error", err)
		}
		return
	}
	if info.ModTime().Equal(s.lastMod) {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		slog.Debug("Cooldown file read failed", "path", s.path, "error", err)
		return
	}

	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Debug("Cooldown file unparsable, keeping cached entries", "path", s.path, "error", err)
		return
	}

	now := s.now()
	entries := make(map[string]time.Time, len(raw))
	for name, epoch := range raw {
		until := time.Unix(epoch, 0)
		if until.After(now) {
			entries[name] = until
		}
	}
	s.entries = entries
	s.lastMod = info.ModTime()
}

// persist writes the current entries atomically. Errors are swallowed.
// Callers hold s.mu.
func (s *FileCooldownStore) persist() {
	raw := make(map[string]int64, len(s.entries))
	for name, until := range s.entries {
		raw[name] = until.Unix()
	}

	if err := writeJSONAtomic(s.path, raw); err != nil {
		slog.Debug("Cooldown persist failed", "path", s.path, "error", err)
		return
	}
	if info, err := os.Stat(s.path); err == nil {
		// Remember our own write so the next Get skips the reload.
		s.lastMod = info.ModTime()
	}
}

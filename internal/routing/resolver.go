package routing

import (
	"fmt"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/core/domain"
	"github.com/vietddude/genroute/internal/infra/state"
)

// Resolution is an ordered, rotation-adjusted candidate list for one call.
type Resolution struct {
	Task       string
	Tier       string
	Candidates []domain.ModelKey
	// Forced marks a pinned-model request; the rotation cursor is not
	// advanced on the forced path.
	Forced bool
}

// Resolver maps a task name onto its ordered candidate models.
type Resolver struct {
	cfg      *config.AppConfig
	rotation state.RotationStore
}

// NewResolver creates a resolver over the loaded configuration.
func NewResolver(cfg *config.AppConfig, rotation state.RotationStore) *Resolver {
	return &Resolver{cfg: cfg, rotation: rotation}
}

// Resolve produces the candidate list for a task. The tier's declared order
// is the preference ranking; the persisted rotation cursor picks where in
// that circular order iteration starts, so equally-ranked candidates are
// visited round-robin across calls instead of index 0 winning every time.
//
// When forced is set the pinned key goes first; with fallback disabled it is
// the only candidate and any failure on it is terminal.
func (r *Resolver) Resolve(task string, forced domain.ModelKey, allowFallback bool) (*Resolution, error) {
	taskCfg, ok := r.cfg.Tasks[task]
	if !ok {
		return nil, &config.ConfigurationError{
			Path:   "tasks." + task,
			Reason: "unknown task",
		}
	}

	keys, ok := r.cfg.Tiers[taskCfg.Tier]
	if !ok || len(keys) == 0 {
		return nil, &config.ConfigurationError{
			Path:   "tiers." + taskCfg.Tier,
			Reason: "tier has no candidates",
		}
	}

	if forced != "" {
		if _, ok := r.cfg.Models[forced]; !ok {
			return nil, &config.ConfigurationError{
				Path:   "models." + string(forced),
				Reason: fmt.Sprintf("unknown forced model %q", forced),
			}
		}
		if !allowFallback {
			return &Resolution{
				Task:       task,
				Tier:       taskCfg.Tier,
				Candidates: []domain.ModelKey{forced},
				Forced:     true,
			}, nil
		}
	}

	rotated := r.rotate(taskCfg.Tier, keys)

	if forced == "" {
		return &Resolution{Task: task, Tier: taskCfg.Tier, Candidates: rotated}, nil
	}

	// Forced key first, rotated list as fallback, duplicates removed.
	candidates := make([]domain.ModelKey, 0, len(rotated)+1)
	candidates = append(candidates, forced)
	for _, key := range rotated {
		if key != forced {
			candidates = append(candidates, key)
		}
	}
	return &Resolution{Task: task, Tier: taskCfg.Tier, Candidates: candidates, Forced: true}, nil
}

// rotate treats the declared list as circular, starting at the persisted
// cursor.
func (r *Resolver) rotate(tier string, keys []domain.ModelKey) []domain.ModelKey {
	idx := r.rotation.StartIndex(tier) % len(keys)
	if idx == 0 {
		out := make([]domain.ModelKey, len(keys))
		copy(out, keys)
		return out
	}
	out := make([]domain.ModelKey, 0, len(keys))
	out = append(out, keys[idx:]...)
	out = append(out, keys[:idx]...)
	return out
}

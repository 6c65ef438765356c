package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/infra/provider"
	"github.com/vietddude/genroute/internal/infra/state"
	"github.com/vietddude/genroute/internal/infra/usage"
)

// Engine bundles a ready-to-use orchestrator with the resources it owns.
type Engine struct {
	*Orchestrator

	closers []func() error
}

// NewEngine assembles adapters, stores and recorders from configuration.
// The cooldown store is Redis-backed when state.redis_url is set, file-backed
// otherwise; the usage log always writes JSONL and additionally mirrors into
// Postgres when usage.postgres_url is set.
func NewEngine(ctx context.Context, cfg *config.AppConfig) (*Engine, error) {
	adapters, err := provider.BuildAll(cfg.Providers)
	if err != nil {
		return nil, err
	}

	e := &Engine{}

	var cooldowns state.CooldownStore
	if cfg.State.RedisURL != "" {
		rs, err := state.NewRedisCooldownStore(cfg.State.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cooldown store: %w", err)
		}
		e.closers = append(e.closers, rs.Close)
		cooldowns = rs
	} else {
		cooldowns = state.NewFileCooldownStore(cfg.State.CooldownFile)
	}

	rotation := state.NewFileRotationStore(cfg.State.RotationFile)

	fileRec := usage.NewFileRecorder(cfg.Usage.LogFile)
	e.closers = append(e.closers, fileRec.Close)

	var recorder usage.Recorder = fileRec
	if cfg.Usage.PostgresURL != "" {
		sink, err := usage.NewPostgresSink(ctx, cfg.Usage.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres usage sink: %w", err)
		}
		e.closers = append(e.closers, sink.Close)
		recorder = usage.MultiRecorder{fileRec, sink}
	}

	e.Orchestrator = NewOrchestrator(cfg, adapters, cooldowns, rotation, recorder)
	return e, nil
}

// Close releases every resource the engine owns.
func (e *Engine) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			slog.Debug("Engine close", "error", err)
		}
	}
}

// Package routing handles candidate resolution, rotation, retry, and
// failover logic.
//
// This package contains:
//   - Resolver: task name to ordered, rotation-adjusted candidate list
//   - Orchestrator: the per-candidate retry/fallback state machine
//   - Normalize: option merging and capability-driven field dropping
//   - ClassifyError: retry-vs-quarantine failure classification
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/core/domain"
	"github.com/vietddude/genroute/internal/infra/provider"
	"github.com/vietddude/genroute/internal/infra/state"
	"github.com/vietddude/genroute/internal/infra/usage"
	"github.com/vietddude/genroute/internal/metrics"
)

// ExhaustedError is returned when every candidate was skipped or exhausted.
// It aggregates one line per candidate tried.
type ExhaustedError struct {
	Task        string
	ForcedModel domain.ModelKey
	Failures    []domain.CandidateFailure
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.Model, f.Reason))
	}
	if e.ForcedModel != "" {
		return fmt.Sprintf("task %q (forced model %s): all candidates exhausted: %s",
			e.Task, e.ForcedModel, strings.Join(reasons, "; "))
	}
	return fmt.Sprintf("task %q: all candidates exhausted: %s", e.Task, strings.Join(reasons, "; "))
}

// Orchestrator iterates resolved candidates, consulting the cooldown store
// before each, invoking adapters with bounded retries, and quarantining
// providers that signal quota exhaustion. The first success short-circuits;
// otherwise every candidate's last error is aggregated into one failure.
type Orchestrator struct {
	cfg       *config.AppConfig
	resolver  *Resolver
	adapters  map[string]provider.Adapter
	cooldowns state.CooldownStore
	rotation  state.RotationStore
	recorder  usage.Recorder

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the engine together.
func NewOrchestrator(
	cfg *config.AppConfig,
	adapters map[string]provider.Adapter,
	cooldowns state.CooldownStore,
	rotation state.RotationStore,
	recorder usage.Recorder,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		resolver:  NewResolver(cfg, rotation),
		adapters:  adapters,
		cooldowns: cooldowns,
		rotation:  rotation,
		recorder:  recorder,
		sleep:     sleepCtx,
	}
}

// Generate resolves the task's candidates and runs the retry/fallback state
// machine until one succeeds or all are exhausted. Resolver errors propagate
// unchanged; per-attempt errors are accumulated and only the aggregate
// surfaces on total failure.
func (o *Orchestrator) Generate(ctx context.Context, opts domain.RequestOptions) (*domain.GenerationResult, error) {
	res, err := o.resolver.Resolve(opts.Task, opts.ForcedModel, !opts.NoFallback)
	if err != nil {
		return nil, err
	}

	taskCfg := o.cfg.Tasks[opts.Task]
	requestID := uuid.New().String()
	contentHash := usage.HashContent(opts.Prompt)
	start := time.Now()

	var failures []domain.CandidateFailure
	var lastKey domain.ModelKey
	var lastProvider string
	var lastAttempts int

	for _, key := range res.Candidates {
		modelCfg := o.cfg.Models[key]
		lastKey = key
		lastProvider = modelCfg.Provider
		lastAttempts = 0

		adapter, ok := o.adapters[modelCfg.Provider]
		if !ok {
			failures = append(failures, domain.CandidateFailure{
				Model:  key,
				Reason: fmt.Sprintf("no adapter for provider %q", modelCfg.Provider),
			})
			continue
		}

		// Skipping a cooling provider spends none of its retry budget.
		if until, cooling := o.cooldowns.Get(modelCfg.Provider); cooling {
			metrics.CooldownSkipsTotal.WithLabelValues(modelCfg.Provider).Inc()
			slog.Debug("Skipping candidate, provider cooling down",
				"model", key, "provider", modelCfg.Provider, "until", until)
			failures = append(failures, domain.CandidateFailure{
				Model:  key,
				Reason: fmt.Sprintf("skipped: provider cooling down until %s", until.Format(time.RFC3339)),
			})
			continue
		}

		normalized := Normalize(opts, taskCfg, modelCfg)
		maxAttempts := taskCfg.Retries + 1

		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			lastAttempts = attempt
			callStart := time.Now()
			result, err := adapter.Generate(ctx, modelCfg, normalized)
			metrics.GenerationLatency.WithLabelValues(modelCfg.Provider, modelCfg.Model).
				Observe(time.Since(callStart).Seconds())

			if err == nil && result != nil && len(result.Payloads) == 0 {
				err = fmt.Errorf("backend returned zero payloads")
			}

			if err == nil {
				result.RequestID = requestID
				if !res.Forced {
					o.rotation.Advance(res.Tier, key, o.cfg.Tiers[res.Tier])
					metrics.RotationAdvances.WithLabelValues(res.Tier).Inc()
				}
				metrics.AttemptsTotal.WithLabelValues(opts.Task, modelCfg.Provider, modelCfg.Model, "success").Inc()
				o.recorder.Record(domain.AttemptRecord{
					Timestamp:   time.Now().UTC(),
					Success:     true,
					Task:        opts.Task,
					Tier:        res.Tier,
					Model:       key,
					Provider:    modelCfg.Provider,
					RequestID:   requestID,
					DurationMS:  time.Since(start).Milliseconds(),
					ContentHash: contentHash,
					Attempt:     attempt,
					Errors:      failureReasons(failures),
				})
				slog.Info("Generation succeeded",
					"task", opts.Task, "model", key, "provider", modelCfg.Provider,
					"attempt", attempt, "payloads", len(result.Payloads))
				return result, nil
			}

			lastErr = err
			metrics.AttemptsTotal.WithLabelValues(opts.Task, modelCfg.Provider, modelCfg.Model, "failure").Inc()

			if ClassifyError(err) == ActionQuarantine {
				// No point retrying a quota error: quarantine the
				// provider and move to the next candidate. Other
				// providers in the tier are still tried.
				d := cooldownFor(err, o.cfg.State)
				o.cooldowns.Set(modelCfg.Provider, d)
				metrics.CooldownsTotal.WithLabelValues(modelCfg.Provider).Inc()
				slog.Warn("Provider quarantined",
					"provider", modelCfg.Provider, "model", key, "cooldown", d, "error", err)
				break
			}

			slog.Debug("Generation attempt failed",
				"task", opts.Task, "model", key, "attempt", attempt,
				"max_attempts", maxAttempts, "error", err)

			if attempt < maxAttempts {
				if serr := o.sleep(ctx, o.cfg.State.RetryDelay); serr != nil {
					failures = append(failures, domain.CandidateFailure{Model: key, Reason: serr.Error()})
					o.recordFailure(opts, res, key, modelCfg.Provider, requestID, contentHash, start, attempt, failures)
					return nil, serr
				}
			}
		}

		failures = append(failures, domain.CandidateFailure{Model: key, Reason: lastErr.Error()})
	}

	o.recordFailure(opts, res, lastKey, lastProvider, requestID, contentHash, start, lastAttempts, failures)
	return nil, &ExhaustedError{Task: opts.Task, ForcedModel: opts.ForcedModel, Failures: failures}
}

func (o *Orchestrator) recordFailure(
	opts domain.RequestOptions,
	res *Resolution,
	model domain.ModelKey,
	providerName string,
	requestID, contentHash string,
	start time.Time,
	attempt int,
	failures []domain.CandidateFailure,
) {
	o.recorder.Record(domain.AttemptRecord{
		Timestamp:   time.Now().UTC(),
		Success:     false,
		Task:        opts.Task,
		Tier:        res.Tier,
		Model:       model,
		Provider:    providerName,
		RequestID:   requestID,
		DurationMS:  time.Since(start).Milliseconds(),
		ContentHash: contentHash,
		Attempt:     attempt,
		Errors:      failureReasons(failures),
	})
}

func failureReasons(failures []domain.CandidateFailure) []string {
	if len(failures) == 0 {
		return nil
	}
	out := make([]string, 0, len(failures))
	for _, f := range failures {
		out = append(out, fmt.Sprintf("%s: %s", f.Model, f.Reason))
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

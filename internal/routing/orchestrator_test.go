package routing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/core/domain"
	"github.com/vietddude/genroute/internal/infra/provider"
	"github.com/vietddude/genroute/internal/infra/state"
)

// fakeAdapter scripts one provider's behavior and records invoked models.
type fakeAdapter struct {
	name  string
	calls []string
	fn    func(model config.ModelConfig, opts domain.RequestOptions) (*domain.GenerationResult, error)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Generate(_ context.Context, model config.ModelConfig, opts domain.RequestOptions) (*domain.GenerationResult, error) {
	f.calls = append(f.calls, model.Model)
	return f.fn(model, opts)
}

func succeed(model config.ModelConfig, _ domain.RequestOptions) (*domain.GenerationResult, error) {
	return &domain.GenerationResult{
		Payloads: [][]byte{[]byte("img")},
		Provider: model.Provider,
		Model:    model.Model,
	}, nil
}

func failGeneric(config.ModelConfig, domain.RequestOptions) (*domain.GenerationResult, error) {
	return nil, errors.New("connection reset by peer")
}

func failRateLimited(hint time.Duration) func(config.ModelConfig, domain.RequestOptions) (*domain.GenerationResult, error) {
	return func(model config.ModelConfig, _ domain.RequestOptions) (*domain.GenerationResult, error) {
		return nil, &provider.RateLimitError{
			Provider:   model.Provider,
			StatusCode: 429,
			RetryAfter: hint,
		}
	}
}

type captureRecorder struct {
	records []domain.AttemptRecord
}

func (r *captureRecorder) Record(rec domain.AttemptRecord) {
	r.records = append(r.records, rec)
}

func testConfig(dir string) *config.AppConfig {
	return &config.AppConfig{
		Providers: map[string]config.ProviderConfig{
			"alpha": {Adapter: "openai"},
			"beta":  {Adapter: "gemini"},
		},
		Models: map[domain.ModelKey]config.ModelConfig{
			"a1": {Provider: "alpha", Model: "alpha-1"},
			"a2": {Provider: "alpha", Model: "alpha-2"},
			"a3": {Provider: "alpha", Model: "alpha-3"},
			"b1": {Provider: "beta", Model: "beta-1"},
		},
		Tiers: map[string][]domain.ModelKey{
			"pool": {"a1", "a2", "a3"},
			"flux": {"a1", "b1"},
		},
		Tasks: map[string]config.TaskConfig{
			"banner":    {Tier: "pool", Retries: 0},
			"thumbnail": {Tier: "flux", Retries: 2},
		},
		State: config.StateConfig{
			CooldownFile:      filepath.Join(dir, "cooldowns.json"),
			RotationFile:      filepath.Join(dir, "rotation.json"),
			DefaultCooldown:   5 * time.Minute,
			RateLimitCooldown: 10 * time.Minute,
			BillingCooldown:   30 * time.Minute,
			RetryDelay:        0,
		},
	}
}

type testEngine struct {
	orch      *Orchestrator
	alpha     *fakeAdapter
	beta      *fakeAdapter
	cooldowns *state.FileCooldownStore
	rotation  *state.FileRotationStore
	recorder  *captureRecorder
	cfg       *config.AppConfig
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	cfg := testConfig(t.TempDir())
	e := &testEngine{
		cfg:       cfg,
		alpha:     &fakeAdapter{name: "alpha", fn: succeed},
		beta:      &fakeAdapter{name: "beta", fn: succeed},
		cooldowns: state.NewFileCooldownStore(cfg.State.CooldownFile),
		rotation:  state.NewFileRotationStore(cfg.State.RotationFile),
		recorder:  &captureRecorder{},
	}
	adapters := map[string]provider.Adapter{"alpha": e.alpha, "beta": e.beta}
	e.orch = NewOrchestrator(cfg, adapters, e.cooldowns, e.rotation, e.recorder)
	return e
}

func (e *testEngine) generate(t *testing.T, opts domain.RequestOptions) *domain.GenerationResult {
	t.Helper()
	result, err := e.orch.Generate(context.Background(), opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return result
}

func TestRotationFairness(t *testing.T) {
	// Three equally-ranked candidates, three successful calls: each is
	// chosen exactly once, in starting-index order, before any repeat.
	e := newTestEngine(t)

	var served []string
	for i := 0; i < 4; i++ {
		res := e.generate(t, domain.RequestOptions{Task: "banner", Prompt: "p"})
		served = append(served, res.Model)
	}

	want := []string{"alpha-1", "alpha-2", "alpha-3", "alpha-1"}
	for i := range want {
		if served[i] != want[i] {
			t.Fatalf("served = %v, want %v", served, want)
		}
	}
}

func TestSuccessShortCircuits(t *testing.T) {
	e := newTestEngine(t)

	res := e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	if res.Model != "alpha-1" {
		t.Errorf("served by %s, want alpha-1", res.Model)
	}
	if len(e.beta.calls) != 0 {
		t.Errorf("beta invoked %d times after first-candidate success", len(e.beta.calls))
	}
}

func TestQuotaErrorShortCircuitsCandidate(t *testing.T) {
	// A rate-limited model burns exactly one attempt, not retries+1, and
	// its provider lands on cooldown while the next candidate serves.
	e := newTestEngine(t)
	e.alpha.fn = failRateLimited(0)

	res := e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	if res.Model != "beta-1" {
		t.Errorf("served by %s, want beta-1", res.Model)
	}
	if len(e.alpha.calls) != 1 {
		t.Errorf("alpha attempted %d times, want exactly 1", len(e.alpha.calls))
	}
	if _, cooling := e.cooldowns.Get("alpha"); !cooling {
		t.Error("alpha not quarantined after rate limit")
	}
	if _, cooling := e.cooldowns.Get("beta"); cooling {
		t.Error("beta quarantined without cause")
	}
}

func TestGenericFailureRetriesThenFallsBack(t *testing.T) {
	e := newTestEngine(t)
	e.alpha.fn = failGeneric

	res := e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	if res.Model != "beta-1" {
		t.Errorf("served by %s, want beta-1", res.Model)
	}
	// retries=2 means 3 attempts before abandoning the candidate.
	if len(e.alpha.calls) != 3 {
		t.Errorf("alpha attempted %d times, want 3", len(e.alpha.calls))
	}
	if _, cooling := e.cooldowns.Get("alpha"); cooling {
		t.Error("generic failures must not quarantine the provider")
	}
}

func TestRetryThenSucceedOnSameModel(t *testing.T) {
	e := newTestEngine(t)
	attempts := 0
	e.alpha.fn = func(model config.ModelConfig, opts domain.RequestOptions) (*domain.GenerationResult, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("timeout")
		}
		return succeed(model, opts)
	}

	res := e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	if res.Model != "alpha-1" {
		t.Errorf("served by %s, want alpha-1 on second attempt", res.Model)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestForcedModelWithoutFallback(t *testing.T) {
	// Forced model, fallback disabled, always failing: exactly retries+1
	// attempts on the forced model and no other model ever invoked.
	e := newTestEngine(t)
	e.alpha.fn = failGeneric

	_, err := e.orch.Generate(context.Background(), domain.RequestOptions{
		Task:        "thumbnail",
		Prompt:      "p",
		ForcedModel: "a1",
		NoFallback:  true,
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if exhausted.ForcedModel != "a1" {
		t.Errorf("ForcedModel = %s, want a1", exhausted.ForcedModel)
	}
	if len(e.alpha.calls) != 3 {
		t.Errorf("alpha attempted %d times, want 3 (retries+1)", len(e.alpha.calls))
	}
	if len(e.beta.calls) != 0 {
		t.Errorf("beta invoked despite no-fallback, calls = %v", e.beta.calls)
	}
}

func TestForcedPathDoesNotAdvanceRotation(t *testing.T) {
	e := newTestEngine(t)

	e.generate(t, domain.RequestOptions{Task: "banner", Prompt: "p", ForcedModel: "a2"})

	if got := e.rotation.StartIndex("pool"); got != 0 {
		t.Errorf("rotation cursor = %d after forced success, want 0", got)
	}
}

func TestRotationPersistsAcrossCalls(t *testing.T) {
	// Scenario: tier [a1, b1], cursor 0. First call served by a1 moves the
	// persisted cursor to 1, so the next resolution starts at b1.
	e := newTestEngine(t)

	res := e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})
	if res.Model != "alpha-1" {
		t.Fatalf("first call served by %s, want alpha-1", res.Model)
	}
	if got := e.rotation.StartIndex("flux"); got != 1 {
		t.Fatalf("persisted cursor = %d, want 1", got)
	}

	res = e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})
	if res.Model != "beta-1" {
		t.Errorf("second call served by %s, want beta-1", res.Model)
	}
}

func TestRateLimitHintSetsCooldownWindow(t *testing.T) {
	// Scenario: a 429 with retry-after 5s quarantines the provider for the
	// next 5 seconds, not the configured default.
	e := newTestEngine(t)
	e.alpha.fn = failRateLimited(5 * time.Second)

	before := time.Now()
	e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	until, cooling := e.cooldowns.Get("alpha")
	if !cooling {
		t.Fatal("alpha not cooling down")
	}
	remaining := until.Sub(before)
	if remaining <= 4*time.Second || remaining > 6*time.Second {
		t.Errorf("cooldown window = %v, want about 5s from the hint", remaining)
	}
}

func TestAllProvidersCoolingDown(t *testing.T) {
	// Scenario: every candidate's provider is quarantined; the call fails
	// with an aggregate naming each skipped candidate, and no adapter is
	// ever invoked.
	e := newTestEngine(t)
	e.cooldowns.Set("alpha", time.Minute)
	e.cooldowns.Set("beta", time.Minute)

	_, err := e.orch.Generate(context.Background(), domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if len(exhausted.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(exhausted.Failures))
	}
	for _, f := range exhausted.Failures {
		if !strings.Contains(f.Reason, "cooling down") {
			t.Errorf("failure reason %q does not mention cooling down", f.Reason)
		}
	}
	for _, key := range []domain.ModelKey{"a1", "b1"} {
		if !strings.Contains(err.Error(), string(key)) {
			t.Errorf("aggregate message missing candidate %s: %s", key, err)
		}
	}
	if len(e.alpha.calls)+len(e.beta.calls) != 0 {
		t.Error("adapters invoked despite all providers cooling down")
	}
}

func TestCooldownSkipSpendsNoRetryBudget(t *testing.T) {
	e := newTestEngine(t)
	e.cooldowns.Set("alpha", time.Minute)

	res := e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	if res.Model != "beta-1" {
		t.Errorf("served by %s, want beta-1", res.Model)
	}
	if len(e.alpha.calls) != 0 {
		t.Errorf("alpha invoked %d times while cooling down", len(e.alpha.calls))
	}
}

func TestResolverErrorPropagatesUnchanged(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.orch.Generate(context.Background(), domain.RequestOptions{Task: "nope", Prompt: "p"})

	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestAttemptRecordNeverStoresPrompt(t *testing.T) {
	e := newTestEngine(t)
	prompt := "a very secret prompt"

	e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: prompt})

	if len(e.recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(e.recorder.records))
	}
	rec := e.recorder.records[0]
	if !rec.Success {
		t.Error("success record marked failed")
	}
	if rec.ContentHash == "" || rec.ContentHash == prompt {
		t.Errorf("content hash = %q, want a one-way hash", rec.ContentHash)
	}
	if strings.Contains(fmt.Sprintf("%+v", rec), prompt) {
		t.Error("attempt record leaks the prompt")
	}
	if rec.Task != "thumbnail" || rec.Tier != "flux" || rec.Provider != "alpha" {
		t.Errorf("record fields wrong: %+v", rec)
	}
	if rec.RequestID == "" {
		t.Error("record missing request id")
	}
}

func TestTerminalFailureRecorded(t *testing.T) {
	e := newTestEngine(t)
	e.alpha.fn = failGeneric
	e.beta.fn = failGeneric

	_, err := e.orch.Generate(context.Background(), domain.RequestOptions{Task: "thumbnail", Prompt: "p"})
	if err == nil {
		t.Fatal("expected failure")
	}

	if len(e.recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(e.recorder.records))
	}
	rec := e.recorder.records[0]
	if rec.Success {
		t.Error("failure record marked successful")
	}
	if len(rec.Errors) != 2 {
		t.Errorf("record errors = %v, want one per candidate", rec.Errors)
	}
}

func TestZeroPayloadSuccessIsFailure(t *testing.T) {
	e := newTestEngine(t)
	e.alpha.fn = func(model config.ModelConfig, _ domain.RequestOptions) (*domain.GenerationResult, error) {
		return &domain.GenerationResult{Provider: model.Provider, Model: model.Model}, nil
	}

	res := e.generate(t, domain.RequestOptions{Task: "thumbnail", Prompt: "p"})

	if res.Model != "beta-1" {
		t.Errorf("served by %s, want beta-1 after zero-payload result", res.Model)
	}
}

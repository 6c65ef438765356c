package routing

import (
	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/core/domain"
)

// Normalize merges caller-supplied options over the task's defaults (caller
// wins when set), clamps replicas to at least 1, then drops every field the
// chosen model's capability flags disable. The adapter never sees a value the
// backend would reject or silently ignore.
func Normalize(opts domain.RequestOptions, task config.TaskConfig, model config.ModelConfig) domain.RequestOptions {
	out := opts.Clone()

	if out.AspectRatio == "" {
		out.AspectRatio = task.Defaults.AspectRatio
	}
	if out.Size == "" {
		out.Size = task.Defaults.Size
	}
	if out.Seed == nil && task.Defaults.Seed != nil {
		seed := *task.Defaults.Seed
		out.Seed = &seed
	}
	if out.NegativePrompt == "" {
		out.NegativePrompt = task.Defaults.NegativePrompt
	}
	if out.Replicas <= 0 {
		out.Replicas = task.Defaults.Replicas
	}
	if out.Replicas < 1 {
		out.Replicas = 1
	}

	caps := model.Capabilities
	if !caps.SupportsAspectRatio() {
		out.AspectRatio = ""
	}
	if !caps.SupportsSize() {
		out.Size = ""
	}
	if !caps.SupportsSeed() {
		out.Seed = nil
	}
	if !caps.SupportsNegativePrompt() {
		out.NegativePrompt = ""
	}

	return out
}

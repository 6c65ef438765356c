package domain

// ModelKey uniquely identifies one backend model configuration.
type ModelKey string

// RequestOptions describe a single generation request. Zero values mean
// "unset"; unset fields fall back to the task's configured defaults during
// normalization.
type RequestOptions struct {
	Task   string
	Prompt string

	AspectRatio    string
	Size           string
	Seed           *int64
	NegativePrompt string

	// Replicas is clamped to at least 1 during normalization.
	Replicas int

	// ForcedModel pins the request to a specific model. When set and
	// NoFallback is true, no other candidate is ever tried.
	ForcedModel ModelKey
	NoFallback  bool

	// Extra carries adapter-specific options that pass through untouched.
	Extra map[string]any
}

// Clone returns a shallow copy safe for per-candidate mutation. The Extra map
// is shared; normalization never writes into it.
func (o RequestOptions) Clone() RequestOptions {
	out := o
	if o.Seed != nil {
		seed := *o.Seed
		out.Seed = &seed
	}
	return out
}

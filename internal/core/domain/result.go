package domain

// GenerationResult is a successful generation outcome.
type GenerationResult struct {
	// Payloads holds the decoded artifact bytes, one entry per replica.
	// A result with zero payloads is treated as a failure upstream even if
	// the backend answered 200.
	Payloads [][]byte

	Provider string
	Model    string

	RequestID string
	Metadata  map[string]string
}

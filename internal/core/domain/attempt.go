package domain

import "time"

// AttemptRecord is one terminal outcome in the usage log. The request prompt
// itself is never stored, only its one-way hash.
type AttemptRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Task        string    `json:"task"`
	Tier        string    `json:"tier"`
	Model       ModelKey  `json:"model_key"`
	Provider    string    `json:"provider"`
	RequestID   string    `json:"request_id,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	ContentHash string    `json:"content_hash"`
	Attempt     int       `json:"attempt_number"`
	Errors      []string  `json:"errors,omitempty"`
}

// CandidateFailure records why one candidate did not produce a result.
type CandidateFailure struct {
	Model  ModelKey
	Reason string
}

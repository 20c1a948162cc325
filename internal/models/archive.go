package models

import "time"

// ArchiveEntry is a historical decision plus the context it was made in.
// Outcome and Success stay nil until feedback arrives.
type ArchiveEntry struct {
	DecisionID string         `json:"decision_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Decision   Decision       `json:"decision"`
	Context    map[string]any `json:"context,omitempty"`
	Outcome    map[string]any `json:"outcome,omitempty"`
	Success    *bool          `json:"success,omitempty"`
}

// SimilarDecision is an archive entry annotated with its similarity to a query.
type SimilarDecision struct {
	ArchiveEntry
	Similarity float64 `json:"similarity"`
}

// ArchiveFilter narrows archive searches. Zero values match everything.
type ArchiveFilter struct {
	Action  Action
	Success *bool
	Start   time.Time
	End     time.Time
	Limit   int
}

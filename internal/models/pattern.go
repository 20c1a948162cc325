package models

import "time"

// ActionPattern is a mined aggregate of how an action performed for one
// classified event type.
type ActionPattern struct {
	ID            string    `json:"id"`
	EventType     EventType `json:"event_type"`
	Action        Action    `json:"action"`
	Occurrences   int       `json:"occurrences"`
	Successes     int       `json:"successes"`
	SuccessRate   float64   `json:"success_rate"`
	AvgConfidence float64   `json:"avg_confidence"`
	LastSeen      time.Time `json:"last_seen"`
}

package models

import "time"

// Event is an infrastructure observation produced by upstream monitoring.
// Type carries the producer's raw label; classification into an EventType
// happens in the router.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventType enumerates classified event categories.
type EventType string

const (
	EventTypeError    EventType = "error"
	EventTypeCrash    EventType = "crash"
	EventTypeOverload EventType = "overload"
	EventTypeAnomaly  EventType = "anomaly"
	EventTypeAttack   EventType = "attack"
	EventTypeUnknown  EventType = "unknown"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SystemState is the platform snapshot advisors reason over.
type SystemState struct {
	CPUUsage         float64 `json:"cpu_usage"`
	MemoryUsage      float64 `json:"memory_usage"`
	ErrorRate        float64 `json:"error_rate"`
	NetworkLatency   float64 `json:"network_latency"`
	Replicas         int     `json:"replicas"`
	DependencyHealth float64 `json:"dependency_health"`
}

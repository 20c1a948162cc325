package models

import "time"

// Recommendation is a single advisor's proposed remediation. Ephemeral; only
// the recommendations folded into a Decision survive.
type Recommendation struct {
	Action     Action         `json:"action"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// Decision is the fused, safety-checked output for one event.
type Decision struct {
	ID              string           `json:"id"`
	Action          Action           `json:"action"`
	Confidence      float64          `json:"confidence"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	RiskScore       float64          `json:"risk_score"`
	Params          map[string]any   `json:"params,omitempty"`
	SafetyChecked   bool             `json:"safety_checked"`
	SafetyCorrected bool             `json:"safety_corrected"`
	SafetyWarning   string           `json:"safety_warning,omitempty"`
	IsSafe          bool             `json:"is_safe"`
}

// AgentType enumerates the downstream agents decisions are routed to.
type AgentType string

const (
	AgentCodeFix     AgentType = "code_agent"
	AgentSelfHealing AgentType = "self_healing_agent"
	AgentScaling     AgentType = "scaling_agent"
	AgentMonitoring  AgentType = "monitoring_agent"
	AgentSecurity    AgentType = "security_agent"
)

// RoutingDecision records where an event was sent and why.
type RoutingDecision struct {
	EventType   EventType `json:"event_type"`
	TargetAgent AgentType `json:"target_agent"`
	Confidence  float64   `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
}

// RoutingLedgerEntry is one (event type, agent) cell of the adaptive routing
// ledger.
type RoutingLedgerEntry struct {
	EventType EventType `json:"event_type"`
	Agent     AgentType `json:"agent"`
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
}

// DispatchReceipt acknowledges handoff of a decision to an agent.
type DispatchReceipt struct {
	Agent     AgentType `json:"agent"`
	Action    Action    `json:"action"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

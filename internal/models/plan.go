package models

// PlanStep is one ordered action within a recovery plan.
type PlanStep struct {
	Order          int    `json:"step"`
	Action         string `json:"action"`
	EstDurationSec int    `json:"duration"`
}

// RecoveryPlan is the ordered, time-estimated execution plan derived from a
// Decision's action. Every plan has at least one step.
type RecoveryPlan struct {
	Action               Action     `json:"action"`
	Steps                []PlanStep `json:"steps"`
	EstimatedDurationSec int        `json:"estimated_duration"`
	Rollback             *PlanStep  `json:"rollback_plan,omitempty"`
}

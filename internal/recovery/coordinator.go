package recovery

import (
	"github.com/aegismesh/aegis-meta/internal/models"
)

// Coordinator derives execution plans from decided actions. Plans are a
// static mapping; the same action always yields the same plan.
type Coordinator struct{}

// NewCoordinator creates a plan coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// BuildPlan returns the recovery plan for a decision's action. Every action
// maps to exactly one plan with at least one step; actions without a
// dedicated plan fall back to monitoring.
func (c *Coordinator) BuildPlan(decision models.Decision) models.RecoveryPlan {
	plan := models.RecoveryPlan{Action: decision.Action}

	switch decision.Action {
	case models.ActionRestartPod:
		plan.Steps = []models.PlanStep{
			{Order: 1, Action: "identify_failed_pod", EstDurationSec: 5},
			{Order: 2, Action: "restart_pod", EstDurationSec: 30},
			{Order: 3, Action: "verify_health", EstDurationSec: 60},
		}
	case models.ActionScaleUp, models.ActionScaleDown:
		plan.Steps = []models.PlanStep{
			{Order: 1, Action: "calculate_target_replicas", EstDurationSec: 5},
			{Order: 2, Action: "scale_deployment", EstDurationSec: 60},
			{Order: 3, Action: "verify_scaling", EstDurationSec: 120},
		}
	case models.ActionRebuildDeployment:
		plan.Steps = []models.PlanStep{
			{Order: 1, Action: "backup_current_state", EstDurationSec: 30},
			{Order: 2, Action: "rebuild_deployment", EstDurationSec: 180},
			{Order: 3, Action: "verify_deployment", EstDurationSec: 120},
			{Order: 4, Action: "rollback_if_needed", EstDurationSec: 60},
		}
		plan.Rollback = &models.PlanStep{Action: "restore_backup", EstDurationSec: 120}
	default:
		plan.Steps = []models.PlanStep{
			{Order: 1, Action: "monitor_situation", EstDurationSec: 60},
		}
	}

	for _, step := range plan.Steps {
		plan.EstimatedDurationSec += step.EstDurationSec
	}
	return plan
}

package recovery

import (
	"testing"

	"github.com/aegismesh/aegis-meta/internal/models"
)

func TestBuildPlanRestartPod(t *testing.T) {
	c := NewCoordinator()

	plan := c.BuildPlan(models.Decision{Action: models.ActionRestartPod})
	if len(plan.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(plan.Steps))
	}
	if plan.EstimatedDurationSec != 95 {
		t.Errorf("estimated duration = %d, want 95", plan.EstimatedDurationSec)
	}
	if plan.Steps[0].Action != "identify_failed_pod" || plan.Steps[2].Action != "verify_health" {
		t.Errorf("unexpected step sequence: %+v", plan.Steps)
	}
	if plan.Rollback != nil {
		t.Error("restart plan must not carry a rollback step")
	}
}

func TestBuildPlanScaling(t *testing.T) {
	c := NewCoordinator()

	for _, action := range []models.Action{models.ActionScaleUp, models.ActionScaleDown} {
		plan := c.BuildPlan(models.Decision{Action: action})
		if len(plan.Steps) != 3 {
			t.Fatalf("%s: steps = %d, want 3", action, len(plan.Steps))
		}
		if plan.EstimatedDurationSec != 185 {
			t.Errorf("%s: estimated duration = %d, want 185", action, plan.EstimatedDurationSec)
		}
		if plan.Steps[1].Action != "scale_deployment" {
			t.Errorf("%s: second step = %q, want scale_deployment", action, plan.Steps[1].Action)
		}
	}
}

func TestBuildPlanRebuildCarriesRollback(t *testing.T) {
	c := NewCoordinator()

	plan := c.BuildPlan(models.Decision{Action: models.ActionRebuildDeployment})
	if len(plan.Steps) != 4 {
		t.Fatalf("steps = %d, want 4", len(plan.Steps))
	}
	if plan.EstimatedDurationSec != 390 {
		t.Errorf("estimated duration = %d, want 390", plan.EstimatedDurationSec)
	}
	if plan.Rollback == nil {
		t.Fatal("rebuild plan missing rollback step")
	}
	if plan.Rollback.Action != "restore_backup" || plan.Rollback.EstDurationSec != 120 {
		t.Errorf("rollback = %+v, want restore_backup for 120s", plan.Rollback)
	}
}

func TestBuildPlanFallbackMonitors(t *testing.T) {
	c := NewCoordinator()

	for _, action := range []models.Action{models.ActionDoNothing, models.ActionTriggerHeal, "unmapped_action"} {
		plan := c.BuildPlan(models.Decision{Action: action})
		if len(plan.Steps) != 1 {
			t.Fatalf("%s: steps = %d, want 1", action, len(plan.Steps))
		}
		if plan.Steps[0].Action != "monitor_situation" {
			t.Errorf("%s: step = %q, want monitor_situation", action, plan.Steps[0].Action)
		}
		if plan.EstimatedDurationSec != 60 {
			t.Errorf("%s: estimated duration = %d, want 60", action, plan.EstimatedDurationSec)
		}
	}
}

func TestEveryRemediationActionHasAPlan(t *testing.T) {
	c := NewCoordinator()

	for _, action := range models.RemediationActions() {
		plan := c.BuildPlan(models.Decision{Action: action})
		if len(plan.Steps) == 0 {
			t.Errorf("%s: plan has no steps", action)
		}
		total := 0
		for _, step := range plan.Steps {
			total += step.EstDurationSec
		}
		if plan.EstimatedDurationSec != total || total == 0 {
			t.Errorf("%s: estimated duration %d does not match step total %d", action, plan.EstimatedDurationSec, total)
		}
		if plan.Action != action {
			t.Errorf("%s: plan action = %q", action, plan.Action)
		}
	}
}

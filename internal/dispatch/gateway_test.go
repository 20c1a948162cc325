package dispatch

import (
	"context"
	"testing"

	"github.com/aegismesh/aegis-meta/internal/models"
)

func TestDispatchReturnsExecutedReceipt(t *testing.T) {
	g := NewGateway(nil)
	receipt, err := g.Dispatch(context.Background(), models.AgentScaling,
		models.Decision{ID: "dec-1", Action: models.ActionScaleUp},
		models.RecoveryPlan{Action: models.ActionScaleUp, Steps: []models.PlanStep{{Order: 1, Action: "scale_deployment"}}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if receipt.Status != StatusExecuted {
		t.Fatalf("status = %q, want executed", receipt.Status)
	}
	if receipt.Agent != models.AgentScaling || receipt.Action != models.ActionScaleUp {
		t.Fatalf("receipt = %+v", receipt)
	}
	if receipt.Timestamp.IsZero() {
		t.Fatal("receipt timestamp not set")
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	g := NewGateway(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Dispatch(ctx, models.AgentMonitoring, models.Decision{}, models.RecoveryPlan{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

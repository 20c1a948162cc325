// Package dispatch hands finished decisions to downstream remediation agents.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// StatusExecuted is the receipt status for an acknowledged handoff.
const StatusExecuted = "executed"

// Gateway acknowledges decisions in-process. Real agent transports replace it
// behind the engine's Dispatcher interface.
type Gateway struct {
	logger *slog.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{logger: logger}
}

// Dispatch records the handoff and returns an executed receipt. A cancelled
// context aborts before the handoff is acknowledged.
func (g *Gateway) Dispatch(ctx context.Context, agent models.AgentType, decision models.Decision, plan models.RecoveryPlan) (models.DispatchReceipt, error) {
	if err := ctx.Err(); err != nil {
		return models.DispatchReceipt{}, err
	}
	g.logger.Info("decision dispatched",
		"agent", agent,
		"action", decision.Action,
		"decision_id", decision.ID,
		"plan_steps", len(plan.Steps),
	)
	return models.DispatchReceipt{
		Agent:     agent,
		Action:    decision.Action,
		Status:    StatusExecuted,
		Timestamp: time.Now().UTC(),
	}, nil
}

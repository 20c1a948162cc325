package routing

import (
	"sync"
	"testing"

	"github.com/aegismesh/aegis-meta/internal/models"
)

func TestAdaptiveRouteFollowsStaticTableWithoutHistory(t *testing.T) {
	router := NewAdaptiveRouter("", nil)

	decision := router.Route(models.Event{Type: "overload"})
	if decision.TargetAgent != models.AgentScaling {
		t.Fatalf("expected static scaling route, got %s", decision.TargetAgent)
	}
}

func TestAdaptiveReroutesToOutperformingAgent(t *testing.T) {
	router := NewAdaptiveRouter("", nil)

	// Static target keeps failing, self-healing keeps succeeding.
	for i := 0; i < 4; i++ {
		router.RecordOutcome(models.EventTypeError, models.AgentCodeFix, false)
		router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, true)
	}

	decision := router.Route(models.Event{Type: "error"})
	if decision.TargetAgent != models.AgentSelfHealing {
		t.Fatalf("expected reroute to self healing agent, got %s", decision.TargetAgent)
	}
	if decision.Confidence != 1.0 {
		t.Fatalf("expected confidence equal to success ratio 1.0, got %f", decision.Confidence)
	}
}

func TestAdaptiveIgnoresWeakPerformers(t *testing.T) {
	router := NewAdaptiveRouter("", nil)

	// 2/3 success ratio stays under the reroute threshold.
	router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, true)
	router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, true)
	router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, false)

	decision := router.Route(models.Event{Type: "error"})
	if decision.TargetAgent != models.AgentCodeFix {
		t.Fatalf("expected static route to survive, got %s", decision.TargetAgent)
	}
}

func TestAdaptiveRequiresBeatingStaticTarget(t *testing.T) {
	router := NewAdaptiveRouter("", nil)

	// Candidate clears the threshold but the static target does even better.
	for i := 0; i < 4; i++ {
		router.RecordOutcome(models.EventTypeError, models.AgentCodeFix, true)
	}
	router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, true)
	router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, true)
	router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, true)
	router.RecordOutcome(models.EventTypeError, models.AgentSelfHealing, false)

	decision := router.Route(models.Event{Type: "error"})
	if decision.TargetAgent != models.AgentCodeFix {
		t.Fatalf("expected static target with better ratio to win, got %s", decision.TargetAgent)
	}
}

func TestRecordOutcomeConcurrent(t *testing.T) {
	router := NewAdaptiveRouter("", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				router.RecordOutcome(models.EventTypeCrash, models.AgentSelfHealing, success)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	entries := router.LedgerSnapshot()
	if len(entries) != 1 {
		t.Fatalf("expected one ledger cell, got %d", len(entries))
	}
	if total := entries[0].Successes + entries[0].Failures; total != 400 {
		t.Fatalf("expected 400 recorded outcomes, got %d", total)
	}
}

package routing

import (
	"testing"

	"github.com/aegismesh/aegis-meta/internal/models"
)

func TestClassifyKeywordTable(t *testing.T) {
	router := NewRouter("")
	cases := []struct {
		raw  string
		want models.EventType
	}{
		{"error", models.EventTypeError},
		{"code_error", models.EventTypeError},
		{"pod_crash", models.EventTypeCrash},
		{"node_failure", models.EventTypeCrash},
		{"resource_exhaustion", models.EventTypeOverload},
		{"high_load", models.EventTypeOverload},
		{"traffic_anomaly", models.EventTypeAnomaly},
		{"unusual_pattern", models.EventTypeAnomaly},
		{"security_breach", models.EventTypeAttack},
		{"ddos_attack", models.EventTypeAttack},
		{"unknown_xyz", models.EventTypeUnknown},
		{"", models.EventTypeUnknown},
	}
	for _, tc := range cases {
		got := router.Classify(models.Event{Type: tc.raw})
		if got != tc.want {
			t.Fatalf("classify %q: expected %s, got %s", tc.raw, tc.want, got)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	router := NewRouter("")
	event := models.Event{Type: "pod_crash"}
	first := router.Classify(event)
	for i := 0; i < 100; i++ {
		if got := router.Classify(event); got != first {
			t.Fatalf("classification changed between calls: %s then %s", first, got)
		}
	}
}

func TestRouteStaticTable(t *testing.T) {
	router := NewRouter("")

	decision := router.Route(models.Event{Type: "pod_crash"})
	if decision.TargetAgent != models.AgentSelfHealing {
		t.Fatalf("expected self healing agent, got %s", decision.TargetAgent)
	}
	if decision.Confidence != 1.0 {
		t.Fatalf("expected full routing confidence, got %f", decision.Confidence)
	}
}

func TestRouteUnknownUsesDefault(t *testing.T) {
	router := NewRouter(models.AgentSelfHealing)

	decision := router.Route(models.Event{Type: "unknown_xyz"})
	if decision.EventType != models.EventTypeUnknown {
		t.Fatalf("expected unknown event type, got %s", decision.EventType)
	}
	if decision.TargetAgent != models.AgentSelfHealing {
		t.Fatalf("expected default agent, got %s", decision.TargetAgent)
	}
	if decision.Confidence != 0.5 {
		t.Fatalf("expected reduced confidence 0.5, got %f", decision.Confidence)
	}
}

func TestSupportingAgents(t *testing.T) {
	router := NewRouter("")

	supporting := router.SupportingAgents(models.Event{Type: "error", Severity: models.SeverityLow})
	if !containsAgent(supporting, models.AgentMonitoring) {
		t.Fatalf("expected monitoring agent, got %v", supporting)
	}
	if containsAgent(supporting, models.AgentSecurity) {
		t.Fatalf("did not expect security agent for low severity")
	}

	supporting = router.SupportingAgents(models.Event{Type: "error", Severity: models.SeverityCritical})
	if !containsAgent(supporting, models.AgentSecurity) {
		t.Fatalf("expected security agent for critical severity, got %v", supporting)
	}

	supporting = router.SupportingAgents(models.Event{
		Type:     "pod_crash",
		Severity: models.SeverityMedium,
		Payload:  map[string]any{"reason": "out of memory"},
	})
	if !containsAgent(supporting, models.AgentScaling) {
		t.Fatalf("expected scaling agent for resource crash, got %v", supporting)
	}

	// The primary never appears in its own supporting set.
	supporting = router.SupportingAgents(models.Event{Type: "anomaly"})
	if containsAgent(supporting, models.AgentMonitoring) {
		t.Fatalf("monitoring is primary for anomalies, got %v", supporting)
	}
}

func containsAgent(agents []models.AgentType, target models.AgentType) bool {
	for _, a := range agents {
		if a == target {
			return true
		}
	}
	return false
}

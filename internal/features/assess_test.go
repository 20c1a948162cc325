package features

import (
	"testing"

	"github.com/aegismesh/aegis-meta/internal/models"
)

func TestComplexityAccumulates(t *testing.T) {
	scorer := NewComplexityScorer()

	plain := models.Event{Type: "error", Severity: models.SeverityLow}
	if got := scorer.Assess(plain, 1); got != 0 {
		t.Fatalf("expected zero complexity for plain event, got %f", got)
	}

	busy := models.Event{
		Type:     "crash",
		Severity: models.SeverityHigh,
		Payload: map[string]any{
			"failure_count":       3,
			"failure_propagation": map[string]any{"payments": 0.9, "checkout": 0.4},
		},
	}
	got := scorer.Assess(busy, 4)
	want := 0.3 + 0.3 + 0.9*0.4
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected complexity %f, got %f", want, got)
	}
}

func TestComplexityClamped(t *testing.T) {
	scorer := NewComplexityScorer()
	event := models.Event{Payload: map[string]any{
		"failure_count":       5,
		"failure_propagation": map[string]any{"a": 1.0, "b": 1.0},
	}}
	if got := scorer.Assess(event, 5); got > 1 {
		t.Fatalf("complexity exceeded 1: %f", got)
	}
}

func TestRiskSeverityWeighting(t *testing.T) {
	scorer := NewRiskScorer()
	cases := []struct {
		severity models.Severity
		want     float64
	}{
		{models.SeverityLow, 0.2 * 0.4},
		{models.SeverityMedium, 0.5 * 0.4},
		{models.SeverityHigh, 0.8 * 0.4},
		{models.SeverityCritical, 1.0 * 0.4},
	}
	for _, tc := range cases {
		got := scorer.Score(models.Event{Severity: tc.severity})
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("severity %s: expected %f, got %f", tc.severity, tc.want, got)
		}
	}
}

func TestRiskForecastBurst(t *testing.T) {
	scorer := NewRiskScorer()
	event := models.Event{
		Severity: models.SeverityMedium,
		Payload: map[string]any{
			"error_burst_forecast": []any{0.1, 0.7},
		},
	}
	got := scorer.Score(event)
	want := 0.5*0.4 + 0.3
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected risk %f, got %f", want, got)
	}
}

package features

import "github.com/aegismesh/aegis-meta/internal/models"

// RiskScorer estimates how risky acting on an event is, in [0,1].
type RiskScorer struct{}

// NewRiskScorer creates a risk scorer.
func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

// Score combines event severity, dependency propagation risk, and any
// forecasted error burst attached by upstream monitoring.
func (s *RiskScorer) Score(event models.Event) float64 {
	risk := severityWeight(event.Severity) * 0.4

	if propagation := floatMapField(event.Payload, "failure_propagation"); len(propagation) > 0 {
		total := 0.0
		for _, p := range propagation {
			total += p
		}
		risk += total / float64(len(propagation)) * 0.3
	}

	for _, v := range floatSliceField(event.Payload, "error_burst_forecast") {
		if v > 0.5 {
			risk += 0.3
			break
		}
	}

	if risk > 1 {
		risk = 1
	}
	return risk
}

func severityWeight(severity models.Severity) float64 {
	switch severity {
	case models.SeverityLow:
		return 0.2
	case models.SeverityMedium:
		return 0.5
	case models.SeverityHigh:
		return 0.8
	case models.SeverityCritical:
		return 1.0
	default:
		return 0.5
	}
}

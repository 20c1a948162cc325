package features

import "github.com/aegismesh/aegis-meta/internal/models"

// ComplexityScorer assesses how tangled a situation is, in [0,1]. Higher
// values reduce estimated decision confidence.
type ComplexityScorer struct{}

// NewComplexityScorer creates a complexity scorer.
func NewComplexityScorer() *ComplexityScorer {
	return &ComplexityScorer{}
}

// Assess scores complexity from the event and the number of advisors that
// produced a recommendation. Many advisors weighing in, repeated failures,
// and high propagation risk each raise the score.
func (s *ComplexityScorer) Assess(event models.Event, advisorCount int) float64 {
	complexity := 0.0

	if advisorCount > 2 {
		complexity += 0.3
	}
	if intField(event.Payload, "failure_count") > 1 {
		complexity += 0.3
	}
	if propagation := floatMapField(event.Payload, "failure_propagation"); len(propagation) > 0 {
		maxRisk := 0.0
		for _, risk := range propagation {
			if risk > maxRisk {
				maxRisk = risk
			}
		}
		complexity += maxRisk * 0.4
	}

	if complexity > 1 {
		complexity = 1
	}
	return complexity
}

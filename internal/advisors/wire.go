package advisors

import (
	"fmt"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// recommendRequest is the JSON body sent to an advisor service.
type recommendRequest struct {
	Event       models.Event       `json:"event"`
	SystemState models.SystemState `json:"system_state"`
}

// recommendResponse is an advisor's reply. Action names are not restricted to
// the engine's remediation set here; the safety layer decides what survives.
type recommendResponse struct {
	Action     string         `json:"action"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

func (r recommendResponse) toRecommendation(source string) (models.Recommendation, error) {
	if r.Action == "" {
		return models.Recommendation{}, fmt.Errorf("response carried no action")
	}
	confidence := r.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return models.Recommendation{
		Action:     models.Action(r.Action),
		Confidence: confidence,
		Source:     source,
		Reasoning:  r.Reasoning,
		Params:     r.Params,
	}, nil
}

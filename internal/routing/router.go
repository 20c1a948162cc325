package routing

import (
	"fmt"
	"strings"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// classificationRule maps raw event-type keywords to a classified EventType.
// Rules are evaluated in order; the first keyword hit wins.
type classificationRule struct {
	keywords  []string
	eventType models.EventType
}

var classificationRules = []classificationRule{
	{keywords: []string{"error", "code_error"}, eventType: models.EventTypeError},
	{keywords: []string{"crash", "pod_crash", "failure"}, eventType: models.EventTypeCrash},
	{keywords: []string{"overload", "high_load", "resource_exhaustion"}, eventType: models.EventTypeOverload},
	{keywords: []string{"anomaly", "unusual"}, eventType: models.EventTypeAnomaly},
	{keywords: []string{"attack", "security", "breach"}, eventType: models.EventTypeAttack},
}

var routingTable = map[models.EventType]models.AgentType{
	models.EventTypeError:    models.AgentCodeFix,
	models.EventTypeCrash:    models.AgentSelfHealing,
	models.EventTypeOverload: models.AgentScaling,
	models.EventTypeAnomaly:  models.AgentMonitoring,
	models.EventTypeAttack:   models.AgentSecurity,
}

// Router classifies events and selects a primary target agent from a static
// table. Classification and routing are pure functions of the event.
type Router struct {
	defaultAgent models.AgentType
}

// NewRouter creates a router falling back to defaultAgent for unknown events.
// An empty defaultAgent selects the self-healing agent.
func NewRouter(defaultAgent models.AgentType) *Router {
	if defaultAgent == "" {
		defaultAgent = models.AgentSelfHealing
	}
	return &Router{defaultAgent: defaultAgent}
}

// DefaultAgent returns the agent unknown events route to.
func (r *Router) DefaultAgent() models.AgentType { return r.defaultAgent }

// Classify maps the event's raw type label onto an EventType. Unmatched
// labels classify as unknown.
func (r *Router) Classify(event models.Event) models.EventType {
	raw := strings.ToLower(event.Type)
	for _, rule := range classificationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(raw, kw) {
				return rule.eventType
			}
		}
	}
	return models.EventTypeUnknown
}

// Route selects the primary agent for an event. Unknown events go to the
// default agent at reduced confidence; table hits carry full confidence.
func (r *Router) Route(event models.Event) models.RoutingDecision {
	eventType := r.Classify(event)

	agent, ok := routingTable[eventType]
	if !ok {
		return models.RoutingDecision{
			EventType:   eventType,
			TargetAgent: r.defaultAgent,
			Confidence:  0.5,
			Reasoning:   "unknown event type, using default agent",
		}
	}

	return models.RoutingDecision{
		EventType:   eventType,
		TargetAgent: agent,
		Confidence:  1.0,
		Reasoning:   fmt.Sprintf("routed %s to %s", eventType, agent),
	}
}

// SupportingAgents lists agents that should observe the event alongside the
// primary: monitoring always, security for high/critical severity, and
// scaling for resource-flavoured crashes.
func (r *Router) SupportingAgents(event models.Event) []models.AgentType {
	primary := r.Route(event).TargetAgent

	supporting := make([]models.AgentType, 0, 3)
	if primary != models.AgentMonitoring {
		supporting = append(supporting, models.AgentMonitoring)
	}
	if (event.Severity == models.SeverityHigh || event.Severity == models.SeverityCritical) && primary != models.AgentSecurity {
		supporting = append(supporting, models.AgentSecurity)
	}
	if r.Classify(event) == models.EventTypeCrash && primary != models.AgentScaling && mentionsResources(event.Payload) {
		supporting = append(supporting, models.AgentScaling)
	}
	return supporting
}

func mentionsResources(payload map[string]any) bool {
	text := strings.ToLower(fmt.Sprintf("%v", payload))
	for _, kw := range []string{"memory", "cpu", "resource"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

package routing

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aegismesh/aegis-meta/internal/metrics"
	"github.com/aegismesh/aegis-meta/internal/models"
)

type ledgerKey struct {
	eventType models.EventType
	agent     models.AgentType
}

type tally struct {
	successes int
	failures  int
}

func (t tally) total() int { return t.successes + t.failures }

func (t tally) ratio() float64 {
	if t.total() == 0 {
		return 0
	}
	return float64(t.successes) / float64(t.total())
}

// rerouteThreshold is the success ratio an agent must exceed before it can
// take over routing from the static table.
const rerouteThreshold = 0.7

// AdaptiveRouter layers a per-(event type, agent) success ledger over the
// static Router and reroutes to agents that outperform the table's choice.
// Safe for concurrent use.
type AdaptiveRouter struct {
	*Router

	logger *slog.Logger

	mu     sync.RWMutex
	ledger map[ledgerKey]*tally
}

// NewAdaptiveRouter creates an adaptive router over the static routing table.
func NewAdaptiveRouter(defaultAgent models.AgentType, logger *slog.Logger) *AdaptiveRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdaptiveRouter{
		Router: NewRouter(defaultAgent),
		logger: logger,
		ledger: make(map[ledgerKey]*tally),
	}
}

// Route selects the primary agent, preferring any agent whose recorded
// success ratio for this event type exceeds both the reroute threshold and
// the static target's own ratio.
func (a *AdaptiveRouter) Route(event models.Event) models.RoutingDecision {
	static := a.Router.Route(event)

	a.mu.RLock()
	defer a.mu.RUnlock()

	staticRatio := 0.0
	if t, ok := a.ledger[ledgerKey{static.EventType, static.TargetAgent}]; ok {
		staticRatio = t.ratio()
	}

	bestAgent := static.TargetAgent
	bestRatio := 0.0
	for key, t := range a.ledger {
		if key.eventType != static.EventType || key.agent == static.TargetAgent {
			continue
		}
		if t.total() == 0 {
			continue
		}
		ratio := t.ratio()
		// Ties resolve by agent name so routing stays deterministic.
		if ratio > bestRatio || (ratio == bestRatio && bestRatio > 0 && key.agent < bestAgent) {
			bestRatio = ratio
			bestAgent = key.agent
		}
	}

	if bestAgent != static.TargetAgent && bestRatio > rerouteThreshold && bestRatio > staticRatio {
		metrics.IncReroute()
		a.logger.Debug("adaptive reroute",
			slog.String("event_type", string(static.EventType)),
			slog.String("from", string(static.TargetAgent)),
			slog.String("to", string(bestAgent)),
			slog.Float64("ratio", bestRatio))
		return models.RoutingDecision{
			EventType:   static.EventType,
			TargetAgent: bestAgent,
			Confidence:  bestRatio,
			Reasoning:   fmt.Sprintf("adaptive reroute to %s (success ratio %.2f)", bestAgent, bestRatio),
		}
	}

	return static
}

// RecordOutcome feeds one handled event back into the ledger.
func (a *AdaptiveRouter) RecordOutcome(eventType models.EventType, agent models.AgentType, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := ledgerKey{eventType, agent}
	t, ok := a.ledger[key]
	if !ok {
		t = &tally{}
		a.ledger[key] = t
	}
	if success {
		t.successes++
	} else {
		t.failures++
	}
}

// LedgerSnapshot returns the current ledger, ordered by event type then agent
// for stable output.
func (a *AdaptiveRouter) LedgerSnapshot() []models.RoutingLedgerEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries := make([]models.RoutingLedgerEntry, 0, len(a.ledger))
	for key, t := range a.ledger {
		entries = append(entries, models.RoutingLedgerEntry{
			EventType: key.eventType,
			Agent:     key.agent,
			Successes: t.successes,
			Failures:  t.failures,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EventType != entries[j].EventType {
			return entries[i].EventType < entries[j].EventType
		}
		return entries[i].Agent < entries[j].Agent
	})
	return entries
}

package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aegismesh/aegis-meta/internal/models"
	"github.com/aegismesh/aegis-meta/pkg/ringbuf"
)

// Default short-term capacities.
const (
	DefaultMaxEvents    = 100
	DefaultMaxDecisions = 50
)

// defaultRecentLimit applies when a caller asks for recent entries without a
// positive limit.
const defaultRecentLimit = 10

// ActivePlan is a recovery plan currently in flight.
type ActivePlan struct {
	PlanID    string              `json:"plan_id"`
	Plan      models.RecoveryPlan `json:"plan"`
	CreatedAt time.Time           `json:"created_at"`
}

// ShortTerm holds the most recent events and decisions in fixed-capacity
// rings, plus the set of in-flight recovery plans. Plans are added and
// removed explicitly, never evicted by age.
type ShortTerm struct {
	logger *slog.Logger

	mu        sync.RWMutex
	events    *ringbuf.Ring[models.Event]
	decisions *ringbuf.Ring[models.Decision]
	plans     map[string]ActivePlan
}

// NewShortTerm creates a short-term store. Non-positive capacities fall back
// to the defaults.
func NewShortTerm(maxEvents, maxDecisions int, logger *slog.Logger) *ShortTerm {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if maxDecisions <= 0 {
		maxDecisions = DefaultMaxDecisions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShortTerm{
		logger:    logger,
		events:    ringbuf.New[models.Event](maxEvents),
		decisions: ringbuf.New[models.Decision](maxDecisions),
		plans:     make(map[string]ActivePlan),
	}
}

// StoreEvent appends an event, evicting the oldest when full.
func (s *ShortTerm) StoreEvent(event models.Event) {
	s.mu.Lock()
	s.events.Push(event)
	s.mu.Unlock()
	s.logger.Debug("event stored in short-term memory", "event_type", event.Type)
}

// StoreDecision appends a decision, evicting the oldest when full.
func (s *ShortTerm) StoreDecision(decision models.Decision) {
	s.mu.Lock()
	s.decisions.Push(decision)
	s.mu.Unlock()
	s.logger.Debug("decision stored in short-term memory", "action", decision.Action)
}

// RecentEvents returns up to limit recent events in insertion order, oldest
// of the window first. A non-empty eventType filters by the producer's raw
// type label before the window is taken.
func (s *ShortTerm) RecentEvents(eventType string, limit int) []models.Event {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	s.mu.RLock()
	all := s.events.Items()
	s.mu.RUnlock()

	if eventType != "" {
		filtered := all[:0:0]
		for _, event := range all {
			if event.Type == eventType {
				filtered = append(filtered, event)
			}
		}
		all = filtered
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// RecentDecisions returns up to limit recent decisions in insertion order.
func (s *ShortTerm) RecentDecisions(limit int) []models.Decision {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	s.mu.RLock()
	all := s.decisions.Items()
	s.mu.RUnlock()

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// AddActivePlan registers a plan as in flight.
func (s *ShortTerm) AddActivePlan(planID string, plan models.RecoveryPlan) {
	s.mu.Lock()
	s.plans[planID] = ActivePlan{PlanID: planID, Plan: plan, CreatedAt: time.Now()}
	s.mu.Unlock()
	s.logger.Debug("active plan added", "plan_id", planID, "action", plan.Action)
}

// RemoveActivePlan drops a completed or abandoned plan.
func (s *ShortTerm) RemoveActivePlan(planID string) {
	s.mu.Lock()
	_, ok := s.plans[planID]
	delete(s.plans, planID)
	s.mu.Unlock()
	if ok {
		s.logger.Debug("active plan removed", "plan_id", planID)
	}
}

// ActivePlans returns a copy of the in-flight plan set.
func (s *ShortTerm) ActivePlans() map[string]ActivePlan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make(map[string]ActivePlan, len(s.plans))
	for id, plan := range s.plans {
		plans[id] = plan
	}
	return plans
}

// Counts reports current occupancy of the three short-term stores.
func (s *ShortTerm) Counts() (events, decisions, plans int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events.Len(), s.decisions.Len(), len(s.plans)
}

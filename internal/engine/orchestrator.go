// Package engine coordinates the decision pipeline: route an event, gather
// advisor recommendations, fuse them into a safety-checked decision, archive
// it, build the recovery plan, and dispatch to the target agent.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aegismesh/aegis-meta/internal/cache"
	"github.com/aegismesh/aegis-meta/internal/confidence"
	"github.com/aegismesh/aegis-meta/internal/features"
	"github.com/aegismesh/aegis-meta/internal/memory"
	"github.com/aegismesh/aegis-meta/internal/metrics"
	"github.com/aegismesh/aegis-meta/internal/models"
	"github.com/aegismesh/aegis-meta/internal/patterns"
	"github.com/aegismesh/aegis-meta/internal/recovery"
	"github.com/aegismesh/aegis-meta/internal/routing"
	"github.com/aegismesh/aegis-meta/internal/safety"
)

// Advisor is one remote intelligence source consulted per event.
type Advisor interface {
	Name() string
	Recommend(ctx context.Context, event models.Event, state models.SystemState) (models.Recommendation, error)
}

// HealthChecker is optionally implemented by advisors that expose a
// liveness probe.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Dispatcher hands finished decisions to downstream agents.
type Dispatcher interface {
	Dispatch(ctx context.Context, agent models.AgentType, decision models.Decision, plan models.RecoveryPlan) (models.DispatchReceipt, error)
}

// Pipeline stages, in the order every event walks them.
const (
	StageReceived             = "received"
	StageRouted               = "routed"
	StageIntelligenceGathered = "intelligence_gathered"
	StageAggregated           = "aggregated"
	StageConfidenceEstimated  = "confidence_estimated"
	StageSafetyChecked        = "safety_checked"
	StageArchived             = "archived"
	StagePlanBuilt            = "plan_built"
	StageDispatched           = "dispatched"
)

// DefaultAdvisorTimeout bounds each advisor call within ProcessEvent.
const DefaultAdvisorTimeout = 5 * time.Second

// defaultPriority breaks confidence ties between advisor sources.
var defaultPriority = []string{"gnn", "rl", "transformer", "llm"}

// Outcome is everything ProcessEvent produced for one event. JSON keys match
// the archived decision document vocabulary.
type Outcome struct {
	DecisionID string                 `json:"decision_id"`
	Routing    models.RoutingDecision `json:"routing"`
	Decision   models.Decision        `json:"decision"`
	Plan       models.RecoveryPlan    `json:"recovery_plan"`
	Receipt    models.DispatchReceipt `json:"execution_result"`
}

// Status is the engine's liveness surface.
type Status struct {
	UptimeSeconds float64         `json:"uptime_seconds"`
	Decisions     int64           `json:"decisions"`
	Advisors      map[string]bool `json:"advisors"`
	QueueDepth    int             `json:"queue_depth"`
	DroppedEvents int64           `json:"dropped_events"`
}

// Options wires an Engine. Logger, Router, Estimator, Validator, Memory and
// Recovery fall back to working defaults; Dispatcher is required before
// ProcessEvent runs.
type Options struct {
	Logger           *slog.Logger
	Router           *routing.AdaptiveRouter
	Estimator        *confidence.Estimator
	Validator        *safety.Validator
	Memory           *memory.Memory
	Recovery         *recovery.Coordinator
	Dispatcher       Dispatcher
	Advisors         []Advisor
	Cache            cache.Provider
	AdvisorTimeout   time.Duration
	Priority         []string
	ComponentWeights map[string]float64
	IntakeCapacity   int
	HealthInterval   time.Duration
	SummaryInterval  time.Duration
	MiningInterval   time.Duration
}

// Engine is the meta-agent orchestrator.
type Engine struct {
	logger     *slog.Logger
	router     *routing.AdaptiveRouter
	estimator  *confidence.Estimator
	validator  *safety.Validator
	memory     *memory.Memory
	recovery   *recovery.Coordinator
	dispatcher Dispatcher
	advisors   []Advisor
	cache      cache.Provider
	miner      *patterns.Miner
	listener   *Listener

	advisorTimeout time.Duration
	priority       []string
	weights        map[string]float64
	healthEvery    time.Duration
	summaryEvery   time.Duration
	miningEvery    time.Duration
	instanceID     string

	complexity *features.ComplexityScorer
	risk       *features.RiskScorer

	decisions atomic.Int64
	startedAt time.Time

	availMu      sync.RWMutex
	availability map[string]bool

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewEngine assembles an engine from the options.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := opts.Router
	if router == nil {
		router = routing.NewAdaptiveRouter(models.AgentMonitoring, logger)
	}
	estimator := opts.Estimator
	if estimator == nil {
		estimator = confidence.NewEstimator(logger)
	}
	validator := opts.Validator
	if validator == nil {
		validator = safety.NewValidator(safety.DefaultPolicy(), logger)
	}
	mem := opts.Memory
	if mem == nil {
		mem = memory.NewMemory(memory.Options{Logger: logger})
	}
	coordinator := opts.Recovery
	if coordinator == nil {
		coordinator = recovery.NewCoordinator()
	}
	provider := opts.Cache
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	timeout := opts.AdvisorTimeout
	if timeout <= 0 {
		timeout = DefaultAdvisorTimeout
	}
	priority := opts.Priority
	if len(priority) == 0 {
		priority = defaultPriority
	}

	e := &Engine{
		logger:         logger,
		router:         router,
		estimator:      estimator,
		validator:      validator,
		memory:         mem,
		recovery:       coordinator,
		dispatcher:     opts.Dispatcher,
		advisors:       opts.Advisors,
		cache:          provider,
		advisorTimeout: timeout,
		priority:       priority,
		weights:        opts.ComponentWeights,
		healthEvery:    opts.HealthInterval,
		summaryEvery:   opts.SummaryInterval,
		miningEvery:    opts.MiningInterval,
		instanceID:     uuid.NewString(),
		complexity:     features.NewComplexityScorer(),
		risk:           features.NewRiskScorer(),
		availability:   make(map[string]bool),
		listener:       NewListener(opts.IntakeCapacity, logger),
		startedAt:      time.Now().UTC(),
	}
	e.miner = patterns.NewMiner(logger, patterns.StoreFunc(e.storePatterns))

	for _, advisor := range e.advisors {
		e.availability[advisor.Name()] = true
	}
	return e
}

// ProcessEvent walks one event through every pipeline stage and returns the
// resulting decision, plan, and dispatch receipt. An empty advisor set still
// completes the walk with a do_nothing decision at zero confidence.
func (e *Engine) ProcessEvent(ctx context.Context, event models.Event) (Outcome, error) {
	if e.dispatcher == nil {
		return Outcome{}, fmt.Errorf("dispatcher not configured")
	}
	start := time.Now()
	e.logger.Info("processing event",
		slog.String("event_id", event.ID),
		slog.String("type", event.Type),
		slog.String("severity", string(event.Severity)))

	e.memory.StoreEvent(event)
	e.stage(event.ID, StageReceived)

	route := e.router.Route(event)
	supporting := e.router.SupportingAgents(event)
	e.stage(event.ID, StageRouted)

	state := features.StateFromPayload(event.Payload)
	recs := e.gather(ctx, event, state)
	e.stage(event.ID, StageIntelligenceGathered)

	riskScore := e.risk.Score(event)
	decision := e.buildDecision(recs, riskScore)
	e.stage(event.ID, StageAggregated)

	situationComplexity := e.complexity.Assess(event, len(recs))
	estimate, details := e.estimator.Estimate(recs, situationComplexity, riskScore, e.weights)
	decision.Confidence = estimate
	if details.Reason != "" {
		e.logger.Debug("confidence estimate", slog.String("event_id", event.ID), slog.String("reason", details.Reason))
	}
	e.stage(event.ID, StageConfidenceEstimated)

	before := decision.Action
	decision = e.validator.ApplySafetyChecks(decision, state)
	if decision.SafetyCorrected {
		metrics.IncSafetyOutcome(true, decision.Action != before)
	}
	e.stage(event.ID, StageSafetyChecked)

	decisionID, err := e.memory.StoreDecision(decision, decisionContext(event, state, route, supporting))
	if err != nil {
		return Outcome{}, fmt.Errorf("store decision: %w", err)
	}
	decision.ID = decisionID
	e.stage(event.ID, StageArchived)

	plan := e.recovery.BuildPlan(decision)
	e.memory.AddActivePlan(decisionID, plan)
	e.stage(event.ID, StagePlanBuilt)

	receipt, err := e.dispatcher.Dispatch(ctx, route.TargetAgent, decision, plan)
	if err != nil {
		return Outcome{}, fmt.Errorf("dispatch decision %s: %w", decisionID, err)
	}
	e.stage(event.ID, StageDispatched)

	e.decisions.Add(1)
	e.logger.Info("event processed",
		slog.String("event_id", event.ID),
		slog.String("action", string(decision.Action)),
		slog.String("agent", string(route.TargetAgent)),
		slog.String("decision_id", decisionID),
		slog.Duration("duration", time.Since(start)))

	return Outcome{
		DecisionID: decisionID,
		Routing:    route,
		Decision:   decision,
		Plan:       plan,
		Receipt:    receipt,
	}, nil
}

// ReportOutcome feeds execution feedback for a dispatched decision back into
// the archive, the routing ledger, and the per-component reliability ledger.
func (e *Engine) ReportOutcome(id string, success bool, outcome map[string]any) error {
	entry, ok, err := e.memory.Entry(id)
	if err != nil {
		return fmt.Errorf("load decision %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("decision %s: %w", id, memory.ErrNotFound)
	}
	if err := e.memory.UpdateDecisionOutcome(id, outcome, success); err != nil {
		return fmt.Errorf("update decision %s: %w", id, err)
	}

	eventType, agent := routingFromContext(entry.Context)
	if eventType != "" && agent != "" {
		e.router.RecordOutcome(eventType, agent, success)
	}
	e.estimator.RecordDecisionOutcome(entry.Decision, success)
	e.memory.RemoveActivePlan(id)
	metrics.IncOutcome(success)

	e.logger.Info("outcome recorded",
		slog.String("decision_id", id),
		slog.Bool("success", success),
		slog.String("agent", string(agent)))
	return nil
}

// Submit queues an event for asynchronous processing.
func (e *Engine) Submit(event models.Event) {
	e.listener.Submit(event)
}

// Status reports uptime, decision count, advisor availability, and intake
// backlog.
func (e *Engine) Status() Status {
	e.availMu.RLock()
	avail := make(map[string]bool, len(e.availability))
	for name, ok := range e.availability {
		avail[name] = ok
	}
	e.availMu.RUnlock()

	return Status{
		UptimeSeconds: time.Since(e.startedAt).Seconds(),
		Decisions:     e.decisions.Load(),
		Advisors:      avail,
		QueueDepth:    e.listener.Depth(),
		DroppedEvents: e.listener.Dropped(),
	}
}

// RoutingLedger exposes the adaptive routing tallies.
func (e *Engine) RoutingLedger() []models.RoutingLedgerEntry {
	return e.router.LedgerSnapshot()
}

func (e *Engine) stage(eventID, name string) {
	e.logger.Debug("pipeline stage", slog.String("event_id", eventID), slog.String("stage", name))
}

func (e *Engine) storePatterns(ctx context.Context, mined []models.ActionPattern) error {
	for _, pattern := range mined {
		if err := e.memory.StorePattern(pattern); err != nil {
			return err
		}
	}
	return nil
}

// decisionContext builds the archive context a decision is stored with. Keys
// feed the embedding extractor and outcome feedback, so they stay stable.
func decisionContext(event models.Event, state models.SystemState, route models.RoutingDecision, supporting []models.AgentType) map[string]any {
	names := make([]string, 0, len(supporting))
	for _, agent := range supporting {
		names = append(names, string(agent))
	}
	return map[string]any{
		"event_id":          event.ID,
		"event_type":        string(route.EventType),
		"severity":          string(event.Severity),
		"target_agent":      string(route.TargetAgent),
		"supporting_agents": names,
		"cpu_usage":         state.CPUUsage,
		"memory_usage":      state.MemoryUsage,
		"error_rate":        state.ErrorRate,
	}
}

func routingFromContext(context map[string]any) (models.EventType, models.AgentType) {
	eventType, _ := context["event_type"].(string)
	agent, _ := context["target_agent"].(string)
	return models.EventType(eventType), models.AgentType(agent)
}

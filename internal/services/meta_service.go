// Package services exposes the decision engine to the surrounding platform as
// an in-process facade: request validation, latency accounting, and the
// aggregated statistics surface live here.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aegismesh/aegis-meta/internal/confidence"
	"github.com/aegismesh/aegis-meta/internal/engine"
	"github.com/aegismesh/aegis-meta/internal/memory"
	"github.com/aegismesh/aegis-meta/internal/metrics"
	"github.com/aegismesh/aegis-meta/internal/models"
	"github.com/aegismesh/aegis-meta/internal/safety"
	"github.com/aegismesh/aegis-meta/internal/utils"
)

// latencyLogEvery controls how often the p95 figure is logged.
const latencyLogEvery = 20

// Statistics aggregates every component's self-reported state.
type Statistics struct {
	Engine       engine.Status               `json:"engine"`
	Memory       memory.Stats                `json:"memory"`
	Estimator    confidence.Stats            `json:"estimator"`
	Safety       safety.Report               `json:"safety"`
	Routing      []models.RoutingLedgerEntry `json:"routing_ledger"`
	LatencyP95Ms float64                     `json:"latency_p95_ms"`
}

// MetaService fronts the engine for the surrounding platform.
type MetaService struct {
	logger    *slog.Logger
	engine    *engine.Engine
	memory    *memory.Memory
	estimator *confidence.Estimator
	validator *safety.Validator
	latencies *utils.LatencyTracker
}

// NewMetaService constructs the service facade.
func NewMetaService(logger *slog.Logger, eng *engine.Engine, mem *memory.Memory, estimator *confidence.Estimator, validator *safety.Validator) *MetaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetaService{
		logger:    logger,
		engine:    eng,
		memory:    mem,
		estimator: estimator,
		validator: validator,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// HandleEvent runs one event through the decision pipeline synchronously.
// Events without an id are assigned one at the door.
func (s *MetaService) HandleEvent(ctx context.Context, event models.Event) (engine.Outcome, error) {
	if s.engine == nil {
		return engine.Outcome{}, utils.WrapOp("handle_event", "engine not configured", nil)
	}
	if event.Type == "" {
		return engine.Outcome{}, utils.WrapOp("handle_event", "event type required", nil)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	start := time.Now()
	out, err := s.engine.ProcessEvent(ctx, event)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveDecision(duration, metrics.OutcomeError)
		s.logger.Error("event handling failed", slog.String("event_id", event.ID), slog.Any("error", err))
		return engine.Outcome{}, utils.WrapOp("handle_event", "pipeline failed", err)
	}
	s.latencies.Observe(duration)
	metrics.ObserveDecision(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= latencyLogEvery && count%latencyLogEvery == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("decision latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return out, nil
}

// SubmitEvent queues one event for asynchronous processing.
func (s *MetaService) SubmitEvent(event models.Event) error {
	if s.engine == nil {
		return utils.WrapOp("submit_event", "engine not configured", nil)
	}
	if event.Type == "" {
		return utils.WrapOp("submit_event", "event type required", nil)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.engine.Submit(event)
	return nil
}

// ReportOutcome feeds execution feedback for a dispatched decision back into
// the engine's ledgers.
func (s *MetaService) ReportOutcome(decisionID string, success bool, outcome map[string]any) error {
	if s.engine == nil {
		return utils.WrapOp("report_outcome", "engine not configured", nil)
	}
	if decisionID == "" {
		return utils.WrapOp("report_outcome", "decision id required", nil)
	}
	if err := s.engine.ReportOutcome(decisionID, success, outcome); err != nil {
		return utils.WrapOp("report_outcome", "feedback rejected", err)
	}
	return nil
}

// SimilarDecisions returns archived decisions resembling the given one,
// ranked by similarity.
func (s *MetaService) SimilarDecisions(ctx context.Context, decisionID string, topK int) ([]models.SimilarDecision, error) {
	if s.memory == nil {
		return nil, utils.WrapOp("similar_decisions", "memory not configured", nil)
	}
	entry, ok, err := s.memory.Entry(decisionID)
	if err != nil {
		return nil, utils.WrapOp("similar_decisions", "archive lookup failed", err)
	}
	if !ok {
		return nil, utils.WrapOp("similar_decisions", "unknown decision "+decisionID, memory.ErrNotFound)
	}
	similar, err := s.memory.RetrieveSimilarDecisions(ctx, entry.Decision, entry.Context, topK)
	if err != nil {
		return nil, utils.WrapOp("similar_decisions", "similarity search failed", err)
	}
	return similar, nil
}

// Statistics aggregates engine, memory, estimator, safety, and routing state
// into one snapshot.
func (s *MetaService) Statistics() (Statistics, error) {
	stats := Statistics{LatencyP95Ms: float64(s.latencies.Percentile(95)) / float64(time.Millisecond)}

	if s.engine != nil {
		stats.Engine = s.engine.Status()
		stats.Routing = s.engine.RoutingLedger()
	}
	if s.memory != nil {
		memStats, err := s.memory.Statistics()
		if err != nil {
			return Statistics{}, utils.WrapOp("statistics", "memory statistics failed", err)
		}
		stats.Memory = memStats
	}
	if s.estimator != nil {
		stats.Estimator = s.estimator.Statistics()
	}
	if s.validator != nil {
		stats.Safety = s.validator.Report()
	}
	return stats, nil
}

// LatencyP95 returns the current p95 decision latency.
func (s *MetaService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

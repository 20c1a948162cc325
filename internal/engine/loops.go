package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/aegismesh/aegis-meta/internal/metrics"
	"github.com/aegismesh/aegis-meta/internal/models"
)

// Default background loop cadences, applied when Options leaves them unset.
const (
	DefaultHealthInterval  = 30 * time.Second
	DefaultSummaryInterval = 60 * time.Second
	DefaultMiningInterval  = 5 * time.Minute
)

// minerLockKey elects one instance to mine patterns per interval.
const minerLockKey = "aegis:patterns:leader"

// healthProbeTimeout bounds each advisor liveness probe.
const healthProbeTimeout = 3 * time.Second

// Start launches the intake drain loop and the background maintenance loops.
// Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.startedAt = time.Now().UTC()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.listener.RegisterDefault(func(hCtx context.Context, event models.Event) {
		if _, err := e.ProcessEvent(hCtx, event); err != nil {
			e.logger.Error("event processing failed",
				slog.String("event_id", event.ID),
				slog.Any("error", err))
		}
	})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.listener.Run(runCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.healthLoop(runCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.summaryLoop(runCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.miningLoop(runCtx)
	}()

	e.logger.Info("engine started",
		slog.Int("advisors", len(e.advisors)),
		slog.String("instance_id", e.instanceID))
}

// Stop cancels the background loops and waits for them to drain.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.runMu.Unlock()

	cancel()
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// healthLoop probes advisors that expose a liveness check and tracks their
// availability, logging transitions in either direction.
func (e *Engine) healthLoop(ctx context.Context) {
	interval := e.healthEvery
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.probeAdvisors(ctx)
		}
	}
}

func (e *Engine) probeAdvisors(ctx context.Context) {
	for _, advisor := range e.advisors {
		checker, ok := advisor.(HealthChecker)
		if !ok {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		err := checker.Healthy(probeCtx)
		cancel()

		healthy := err == nil
		e.availMu.Lock()
		was := e.availability[advisor.Name()]
		e.availability[advisor.Name()] = healthy
		e.availMu.Unlock()

		if was && !healthy {
			e.logger.Warn("advisor unavailable",
				slog.String("advisor", advisor.Name()),
				slog.Any("error", err))
		} else if !was && healthy {
			e.logger.Info("advisor recovered", slog.String("advisor", advisor.Name()))
		}
	}
}

// summaryLoop periodically logs throughput and backlog figures and refreshes
// the gauges derived from them.
func (e *Engine) summaryLoop(ctx context.Context) {
	interval := e.summaryEvery
	if interval <= 0 {
		interval = DefaultSummaryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.logSummary()
		}
	}
}

func (e *Engine) logSummary() {
	depth := e.listener.Depth()
	metrics.SetIntakeDepth(depth)

	archived, err := e.memory.ArchiveLen()
	if err != nil {
		e.logger.Warn("archive size unavailable", slog.Any("error", err))
	} else {
		metrics.SetArchiveEntries(archived)
	}

	e.logger.Info("engine summary",
		slog.Int64("decisions", e.decisions.Load()),
		slog.Int("queue_depth", depth),
		slog.Int64("dropped_events", e.listener.Dropped()),
		slog.Int("archived_decisions", archived),
		slog.Int("active_plans", len(e.memory.ActivePlans())))
}

// miningLoop periodically distills the archive into action patterns. A cache
// lock elects a single mining instance per interval when several engines
// share a backend.
func (e *Engine) miningLoop(ctx context.Context) {
	interval := e.miningEvery
	if interval <= 0 {
		interval = DefaultMiningInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mineOnce(ctx)
		}
	}
}

func (e *Engine) mineOnce(ctx context.Context) {
	acquired, err := e.cache.SetNX(ctx, minerLockKey, []byte(e.instanceID), e.miningInterval())
	if err != nil {
		e.logger.Warn("miner lock unavailable", slog.Any("error", err))
		return
	}
	if !acquired {
		e.logger.Debug("pattern mining skipped, another instance holds the lock")
		return
	}

	entries, err := e.memory.SearchDecisions(models.ArchiveFilter{})
	if err != nil {
		e.logger.Warn("pattern mining aborted, archive search failed", slog.Any("error", err))
		return
	}
	mined, err := e.miner.Mine(ctx, entries)
	if err != nil {
		e.logger.Warn("pattern mining failed", slog.Any("error", err))
		return
	}
	if len(mined) > 0 {
		e.logger.Info("patterns mined",
			slog.Int("patterns", len(mined)),
			slog.Int("entries", len(entries)))
	}
}

func (e *Engine) miningInterval() time.Duration {
	if e.miningEvery > 0 {
		return e.miningEvery
	}
	return DefaultMiningInterval
}

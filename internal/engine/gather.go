package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aegismesh/aegis-meta/internal/metrics"
	"github.com/aegismesh/aegis-meta/internal/models"
)

// gather fans the event out to every advisor in parallel and collects the
// recommendations that arrive before the per-call timeout. Failures are
// logged and dropped; the pipeline proceeds with whatever came back.
func (e *Engine) gather(ctx context.Context, event models.Event, state models.SystemState) []models.Recommendation {
	if len(e.advisors) == 0 {
		return nil
	}

	results := make([]*models.Recommendation, len(e.advisors))
	var wg sync.WaitGroup
	for i, advisor := range e.advisors {
		wg.Add(1)
		go func(slot int, adv Advisor) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, e.advisorTimeout)
			defer cancel()

			start := time.Now()
			rec, err := adv.Recommend(callCtx, event, state)
			metrics.ObserveAdvisorRequest(adv.Name(), time.Since(start), err == nil)
			if err != nil {
				e.logger.Warn("advisor call failed",
					slog.String("advisor", adv.Name()),
					slog.String("event_id", event.ID),
					slog.Any("error", err))
				return
			}
			results[slot] = &rec
		}(i, advisor)
	}
	wg.Wait()

	// Collect in registration order so downstream tie-breaks are stable.
	recs := make([]models.Recommendation, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs
}

// buildDecision fuses the recommendation set into a single decision. With no
// recommendations the decision is do_nothing at zero confidence; the risk
// score is carried either way.
func (e *Engine) buildDecision(recs []models.Recommendation, riskScore float64) models.Decision {
	if len(recs) == 0 {
		return models.Decision{
			Action:          models.ActionDoNothing,
			Confidence:      0,
			Recommendations: []models.Recommendation{},
			RiskScore:       riskScore,
		}
	}

	best := e.selectBest(recs)
	return models.Decision{
		Action:          best.Action,
		Confidence:      best.Confidence,
		Recommendations: recs,
		RiskScore:       riskScore,
		Params:          best.Params,
	}
}

// selectBest picks the highest-confidence recommendation; exact ties resolve
// by source priority, with unknown sources ranked last.
func (e *Engine) selectBest(recs []models.Recommendation) models.Recommendation {
	best := recs[0]
	for _, rec := range recs[1:] {
		if rec.Confidence > best.Confidence {
			best = rec
			continue
		}
		if rec.Confidence == best.Confidence && e.sourceRank(rec.Source) < e.sourceRank(best.Source) {
			best = rec
		}
	}
	return best
}

func (e *Engine) sourceRank(source string) int {
	for i, name := range e.priority {
		if name == source {
			return i
		}
	}
	return len(e.priority)
}

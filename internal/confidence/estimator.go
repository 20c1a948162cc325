package confidence

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aegismesh/aegis-meta/internal/models"
	"github.com/aegismesh/aegis-meta/pkg/ringbuf"
)

// Factor weights. They sum to 1.0.
const (
	weightAgreement  = 0.3
	weightHistorical = 0.3
	weightComplexity = 0.2
	weightRisk       = 0.1
	weightWeighted   = 0.1
)

// outcomeHistorySize bounds the retained decision-outcome history.
const outcomeHistorySize = 10000

// unseenReliability is assumed for sources with no recorded outcomes.
const unseenReliability = 0.5

// Details breaks an estimate down into its factors.
type Details struct {
	AgreementScore      float64
	HistoricalAccuracy  float64
	ComplexityFactor    float64
	RiskFactor          float64
	WeightedConfidence  float64
	FinalConfidence     float64
	SituationComplexity float64
	RiskScore           float64
	Reason              string
}

// Stats is a point-in-time snapshot of estimator state.
type Stats struct {
	Estimates       int
	AvgConfidence   float64
	Reliabilities   map[string]float64
	OutcomesTracked int
}

type componentRecord struct {
	count         int
	successes     int
	confidenceSum float64
}

func (c *componentRecord) successRate() float64 {
	if c.count == 0 {
		return unseenReliability
	}
	return float64(c.successes) / float64(c.count)
}

func (c *componentRecord) avgConfidence() float64 {
	if c.count == 0 {
		return unseenReliability
	}
	return c.confidenceSum / float64(c.count)
}

type outcomeSample struct {
	action  models.Action
	success bool
	at      time.Time
}

// Estimator scores recommendation sets against situational factors and keeps
// a per-source reliability ledger fed by outcome reports. Safe for concurrent
// use.
type Estimator struct {
	logger *slog.Logger

	mu            sync.RWMutex
	components    map[string]*componentRecord
	history       *ringbuf.Ring[outcomeSample]
	estimates     int
	confidenceSum float64
}

// NewEstimator creates an estimator with an empty reliability ledger.
func NewEstimator(logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		logger:     logger,
		components: make(map[string]*componentRecord),
		history:    ringbuf.New[outcomeSample](outcomeHistorySize),
	}
}

// Estimate fuses the recommendations with situational complexity and risk
// into a single confidence in [0,1]. componentWeights adjusts the weighted
// confidence factor per source; missing sources weigh 1.0. Zero
// recommendations yield zero confidence with an explicit reason.
func (e *Estimator) Estimate(recs []models.Recommendation, situationComplexity, riskScore float64, componentWeights map[string]float64) (float64, Details) {
	if len(recs) == 0 {
		return 0, Details{
			SituationComplexity: situationComplexity,
			RiskScore:           riskScore,
			Reason:              "no recommendations to estimate",
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	details := Details{
		AgreementScore:      agreementScore(recs),
		HistoricalAccuracy:  e.historicalAccuracy(recs),
		ComplexityFactor:    1 - clamp01(situationComplexity),
		RiskFactor:          1 - clamp01(riskScore),
		WeightedConfidence:  weightedConfidence(recs, componentWeights),
		SituationComplexity: situationComplexity,
		RiskScore:           riskScore,
	}

	final := weightAgreement*details.AgreementScore +
		weightHistorical*details.HistoricalAccuracy +
		weightComplexity*details.ComplexityFactor +
		weightRisk*details.RiskFactor +
		weightWeighted*details.WeightedConfidence
	details.FinalConfidence = clamp01(final)

	e.estimates++
	e.confidenceSum += details.FinalConfidence

	return details.FinalConfidence, details
}

// RecordComponentOutcome feeds one observed outcome for a source into the
// reliability ledger.
func (e *Estimator) RecordComponentOutcome(source string, success bool, confidence float64) {
	if source == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.components[source]
	if !ok {
		rec = &componentRecord{}
		e.components[source] = rec
	}
	rec.count++
	if success {
		rec.successes++
	}
	rec.confidenceSum += clamp01(confidence)
}

// RecordDecisionOutcome attributes a decision's outcome to every source that
// contributed a recommendation and appends to the bounded history.
func (e *Estimator) RecordDecisionOutcome(decision models.Decision, success bool) {
	for _, rec := range decision.Recommendations {
		e.RecordComponentOutcome(rec.Source, success, rec.Confidence)
	}

	e.mu.Lock()
	e.history.Push(outcomeSample{action: decision.Action, success: success, at: time.Now()})
	e.mu.Unlock()
}

// ComponentReliability blends a source's success rate with its average
// reported confidence. Unseen sources score 0.5.
func (e *Estimator) ComponentReliability(source string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.components[source]
	if !ok || rec.count == 0 {
		return unseenReliability
	}
	return 0.7*rec.successRate() + 0.3*rec.avgConfidence()
}

// Statistics snapshots estimator counters and per-source reliabilities.
func (e *Estimator) Statistics() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{
		Estimates:       e.estimates,
		Reliabilities:   make(map[string]float64, len(e.components)),
		OutcomesTracked: e.history.Len(),
	}
	if e.estimates > 0 {
		stats.AvgConfidence = e.confidenceSum / float64(e.estimates)
	}
	for source, rec := range e.components {
		stats.Reliabilities[source] = 0.7*rec.successRate() + 0.3*rec.avgConfidence()
	}
	return stats
}

// historicalAccuracy averages the lifetime success rate of every source that
// contributed a recommendation. Callers hold the lock.
func (e *Estimator) historicalAccuracy(recs []models.Recommendation) float64 {
	total := 0.0
	for _, rec := range recs {
		if record, ok := e.components[rec.Source]; ok {
			total += record.successRate()
		} else {
			total += unseenReliability
		}
	}
	return total / float64(len(recs))
}

// agreementScore averages the majority-action fraction with the inverse
// spread of confidences. A single recommendation agrees with itself.
func agreementScore(recs []models.Recommendation) float64 {
	if len(recs) <= 1 {
		return 1.0
	}

	actionCounts := make(map[models.Action]int, len(recs))
	for _, rec := range recs {
		actionCounts[rec.Action]++
	}
	majority := 0
	for _, count := range actionCounts {
		if count > majority {
			majority = count
		}
	}
	majorityFraction := float64(majority) / float64(len(recs))

	spread := 1 - math.Min(1, confidenceStdDev(recs))
	return (majorityFraction + spread) / 2
}

func weightedConfidence(recs []models.Recommendation, weights map[string]float64) float64 {
	weightedSum := 0.0
	weightTotal := 0.0
	for _, rec := range recs {
		w := 1.0
		if custom, ok := weights[rec.Source]; ok && custom > 0 {
			w = custom
		}
		weightedSum += clamp01(rec.Confidence) * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}

func confidenceStdDev(recs []models.Recommendation) float64 {
	mean := 0.0
	for _, rec := range recs {
		mean += rec.Confidence
	}
	mean /= float64(len(recs))

	variance := 0.0
	for _, rec := range recs {
		diff := rec.Confidence - mean
		variance += diff * diff
	}
	variance /= float64(len(recs))
	return math.Sqrt(variance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

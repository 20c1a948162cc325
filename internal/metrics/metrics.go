package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels decisions whose pipeline completed.
	OutcomeSuccess = "success"
	// OutcomeError labels decisions that failed in the pipeline.
	OutcomeError = "error"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aegis_meta",
			Name:      "decisions_total",
			Help:      "Total number of events decided, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	decisionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aegis_meta",
			Name:      "decision_seconds",
			Help:      "End-to-end decision pipeline latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10},
		},
	)

	advisorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aegis_meta",
			Name:      "advisor_requests_total",
			Help:      "Advisor calls, partitioned by advisor and outcome.",
		},
		[]string{"advisor", "outcome"},
	)

	advisorRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aegis_meta",
			Name:      "advisor_request_seconds",
			Help:      "Advisor call latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"advisor"},
	)

	safetyCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aegis_meta",
			Name:      "safety_corrections_total",
			Help:      "Decisions altered by safety checks, partitioned by kind.",
		},
		[]string{"kind"},
	)

	reroutesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aegis_meta",
			Name:      "reroutes_total",
			Help:      "Events routed away from the static table by the ledger.",
		},
	)

	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aegis_meta",
			Name:      "outcomes_total",
			Help:      "Execution outcome reports, partitioned by result.",
		},
		[]string{"result"},
	)

	intakeDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aegis_meta",
			Name:      "intake_drops_total",
			Help:      "Events evicted from the intake ring at submission.",
		},
	)

	intakeDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aegis_meta",
			Name:      "intake_depth",
			Help:      "Events currently queued for processing.",
		},
	)

	archiveEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aegis_meta",
			Name:      "archive_entries",
			Help:      "Decisions currently held in the long-term archive.",
		},
	)
)

// Register attaches the meta-agent collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		decisionsTotal,
		decisionDurationSeconds,
		advisorRequestsTotal,
		advisorRequestSeconds,
		safetyCorrectionsTotal,
		reroutesTotal,
		outcomesTotal,
		intakeDropsTotal,
		intakeDepth,
		archiveEntries,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDecision records one pipeline run's duration and outcome label.
func ObserveDecision(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	decisionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	decisionDurationSeconds.Observe(duration.Seconds())
}

// ObserveAdvisorRequest records one advisor call.
func ObserveAdvisorRequest(advisor string, duration time.Duration, ok bool) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeError
	}
	advisorRequestsTotal.WithLabelValues(advisor, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	advisorRequestSeconds.WithLabelValues(advisor).Observe(duration.Seconds())
}

// IncSafetyOutcome counts a safety intervention; actionChanged marks
// corrections that replaced the action rather than adjusting parameters.
func IncSafetyOutcome(corrected, actionChanged bool) {
	if !corrected {
		return
	}
	kind := "params_corrected"
	if actionChanged {
		kind = "action_replaced"
	}
	safetyCorrectionsTotal.WithLabelValues(kind).Inc()
}

// IncReroute counts an adaptive reroute away from the static table.
func IncReroute() {
	reroutesTotal.Inc()
}

// IncOutcome counts one execution outcome report.
func IncOutcome(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	outcomesTotal.WithLabelValues(result).Inc()
}

// IncIntakeDrop counts an event evicted from a full intake ring.
func IncIntakeDrop() {
	intakeDropsTotal.Inc()
}

// SetIntakeDepth refreshes the queued-event gauge.
func SetIntakeDepth(n int) {
	intakeDepth.Set(float64(n))
}

// SetArchiveEntries refreshes the archived-decision gauge.
func SetArchiveEntries(n int) {
	archiveEntries.Set(float64(n))
}

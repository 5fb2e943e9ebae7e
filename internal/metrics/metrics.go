package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gate metrics
	ReflectionEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_evaluations_total",
			Help: "Total number of gate evaluations by outcome",
		},
		[]string{"outcome"},
	)

	ReflectionTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_triggers_total",
			Help: "Total number of triggered reviews by signal (tool or pattern)",
		},
		[]string{"signal"},
	)

	ReflectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reflection_duration_ms",
			Help:    "Gate evaluation duration in milliseconds for evaluations that ran a review",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		},
		[]string{"outcome"},
	)

	ReflectionIssues = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reflection_issue_count",
			Help:    "Number of issues reported per completed review",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)

	AdmissionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reflection_admission_rejections_total",
			Help: "Reviews skipped because no concurrency slot was free in time",
		},
	)

	ReviewsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reflection_reviews_in_flight",
			Help: "Number of review calls currently outstanding",
		},
	)

	// Review transport metrics
	ReviewRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_review_requests_total",
			Help: "Total number of review calls by provider and status",
		},
		[]string{"provider", "status"},
	)

	ReviewLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reflection_review_latency_seconds",
			Help:    "Review call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ReviewTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_review_tokens_total",
			Help: "Tokens consumed by review calls",
		},
		[]string{"model", "direction"},
	)

	ReviewCostUSD = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reflection_review_cost_usd",
			Help:    "Estimated cost in USD per review call",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_rate_limit_rejections_total",
			Help: "Review calls refused by the local rate limiter",
		},
		[]string{"provider"},
	)

	// Outcome reporting metrics
	OutcomeReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_outcome_reports_total",
			Help: "Outcome records written to the reporter",
		},
		[]string{"sink", "status"},
	)

	// Pricing fallback metrics
	PricingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_pricing_fallback_total",
			Help: "Total number of pricing fallbacks (missing/unknown model)",
		},
		[]string{"reason"},
	)
)

// RecordEvaluation records one gate evaluation. durationMs is only observed
// when a review actually ran.
func RecordEvaluation(outcome string, ran bool, durationMs int64, issueCount int) {
	ReflectionEvaluations.WithLabelValues(outcome).Inc()
	if ran {
		ReflectionDuration.WithLabelValues(outcome).Observe(float64(durationMs))
		ReflectionIssues.Observe(float64(issueCount))
	}
}

// RecordTrigger records which signal fired ("tool" or "pattern").
func RecordTrigger(signal string) {
	if signal != "" {
		ReflectionTriggers.WithLabelValues(signal).Inc()
	}
}

// RecordReviewCall records metrics for a review transport call
func RecordReviewCall(provider, status string, durationSeconds float64) {
	ReviewRequests.WithLabelValues(provider, status).Inc()
	if durationSeconds > 0 {
		ReviewLatency.WithLabelValues(provider).Observe(durationSeconds)
	}
}

// RecordReviewUsage records token usage and estimated cost of a review
func RecordReviewUsage(model string, inputTokens, outputTokens int, costUSD float64) {
	if inputTokens > 0 {
		ReviewTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		ReviewTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
	if costUSD > 0 {
		ReviewCostUSD.Observe(costUSD)
	}
}

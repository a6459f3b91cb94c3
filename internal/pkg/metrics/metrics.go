package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "minutes", Name: "pipeline_runs_total", Help: "Number of pipeline runs by kind and outcome."},
		[]string{"kind", "outcome"},
	)
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "minutes", Name: "llm_requests_total", Help: "Number of generation service calls by role and outcome."},
		[]string{"role", "outcome"},
	)
	LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "minutes", Name: "llm_request_duration_seconds", Help: "Latency of generation service calls.", Buckets: prometheus.ExponentialBuckets(0.5, 2, 10)},
		[]string{"role"},
	)
	CritiqueVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "minutes", Name: "critique_verdicts_total", Help: "Critic verdicts (approved or critique)."},
		[]string{"verdict"},
	)
	UntrackedCommitments = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "minutes", Name: "untracked_commitments_total", Help: "next_meeting items without a matching task."},
	)
	RateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "minutes", Name: "rate_limit_rejected_total", Help: "Requests rejected by the rate limiter."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(PipelineRuns)
	reg.MustRegister(LLMRequests)
	reg.MustRegister(LLMDuration)
	reg.MustRegister(CritiqueVerdicts)
	reg.MustRegister(UntrackedCommitments)
	reg.MustRegister(RateLimitRejected)
}

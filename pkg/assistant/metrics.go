package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "console_assistant"

var (
	discoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "discovery_total",
		Help:      "Backend discovery requests by outcome.",
	}, []string{"backend", "result"})

	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "job_submissions_total",
		Help:      "Queries posted to backend jobs endpoints by outcome.",
	}, []string{"backend", "result"})

	pollAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "job_poll_attempts_total",
		Help:      "Poll requests against backend jobs endpoints by observed state.",
	}, []string{"backend", "state"})

	jobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "job_duration_seconds",
		Help:      "Time from first poll to a terminal poll outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"backend", "result"})

	feedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "feedback_total",
		Help:      "Feedback votes posted to backends by outcome.",
	}, []string{"backend", "vote", "result"})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

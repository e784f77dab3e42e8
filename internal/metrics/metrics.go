// Package metrics registers the Prometheus collectors of the outreach engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_dispatch_total",
			Help: "Outreach dispatch attempts by outcome (sent, failed, claim_lost)",
		},
		[]string{"outcome"},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outreach_delivery_duration_seconds",
			Help:    "Time spent in the delivery provider",
			Buckets: prometheus.DefBuckets,
		},
	)

	staleClaimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_stale_claims_total",
			Help: "Send claims that expired and were marked as failed",
		},
	)

	followUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_followups_total",
			Help: "Follow-up processing by outcome (sent, stopped, failed)",
		},
		[]string{"outcome"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_email_events_total",
			Help: "Tracking events recorded by type",
		},
		[]string{"type"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_jobs_total",
			Help: "Background jobs by type and outcome (done, retry, dead_letter)",
		},
		[]string{"type", "outcome"},
	)

	tickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_tick_duration_seconds",
			Help:    "Duration of scheduler ticks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)
)

func ObserveHTTP(method, route, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func RecordDispatch(outcome string) {
	dispatchTotal.WithLabelValues(outcome).Inc()
}

func ObserveDelivery(seconds float64) {
	dispatchDuration.Observe(seconds)
}

func RecordStaleClaims(n int64) {
	if n > 0 {
		staleClaimsTotal.Add(float64(n))
	}
}

func RecordFollowUp(outcome string) {
	followUpsTotal.WithLabelValues(outcome).Inc()
}

func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

func RecordJob(jobType, outcome string) {
	jobsTotal.WithLabelValues(jobType, outcome).Inc()
}

func ObserveTick(task string, seconds float64) {
	tickDuration.WithLabelValues(task).Observe(seconds)
}

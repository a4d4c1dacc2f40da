// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SessionsActive tracks live sessions per channel.
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of sessions currently connected",
		},
		[]string{"channel"},
	)

	// SessionsTotal tracks sessions started per org and channel.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_total",
			Help: "Total sessions started",
		},
		[]string{"org_id", "channel"},
	)

	// MessagesTotal tracks messages appended to the session log.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"org_id", "role"},
	)

	// WebhookEventsTotal tracks lifecycle webhook events by type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total provider lifecycle webhook events processed",
		},
		[]string{"event", "outcome"},
	)

	// FunctionCallsTotal tracks remote function invocations by name and outcome.
	FunctionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "function_calls_total",
			Help: "Total booking function invocations",
		},
		[]string{"function", "outcome"},
	)

	// FunctionCallDuration tracks booking function invocation latency.
	FunctionCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "function_call_duration_seconds",
			Help:    "Booking function invocation duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"function"},
	)

	// LLMCompletionDuration tracks model completion latency.
	LLMCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "agent", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ConfigCacheLookups tracks channel config cache hits and misses.
	ConfigCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_cache_lookups_total",
			Help: "Channel config cache lookups",
		},
		[]string{"result"},
	)

	// OrgFallbacksTotal counts sessions routed to the default organization.
	OrgFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "org_fallbacks_total",
			Help: "Sessions attributed to the default organization because resolution failed",
		},
	)

	// NotificationsTotal tracks post-session notifications by outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Post-session notifications",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCompletion records metrics for one model completion.
func RecordLLMCompletion(model, agent, status string, duration float64, tokensIn, tokensOut int) {
	LLMCompletionDuration.WithLabelValues(model, agent, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordFunctionCall records metrics for one booking function invocation.
func RecordFunctionCall(function, outcome string, duration float64) {
	FunctionCallsTotal.WithLabelValues(function, outcome).Inc()
	FunctionCallDuration.WithLabelValues(function).Observe(duration)
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
// Helper methods are safe on a nil *Metrics so callers and tests may omit it.
type Metrics struct {
	SlackEvents     *prometheus.CounterVec
	SlackAPICalls   *prometheus.CounterVec
	SlackAPILatency *prometheus.HistogramVec
	Tips            *prometheus.CounterVec
	Configurations  *prometheus.CounterVec
	QRCache         *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
	Errors          *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			SlackEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slack_events_total",
				Help:      "Inbound Slack events by kind and outcome.",
			}, []string{"kind", "outcome"}),
			SlackAPICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slack_api_calls_total",
				Help:      "Slack Web API calls by method and status.",
			}, []string{"method", "status"}),
			SlackAPILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "slack_api_call_duration_seconds",
				Help:      "Latency distribution for Slack Web API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			Tips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tips_total",
				Help:      "Tip announcements by amount.",
			}, []string{"amount"}),
			Configurations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "configurations_total",
				Help:      "Payment URL submissions by outcome.",
			}, []string{"outcome"}),
			QRCache: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "qr_cache_lookups_total",
				Help:      "QR image cache lookups by result.",
			}, []string{"result"}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by server, route and status code.",
			}, []string{"server", "route", "status"}),
			HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by server and route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"server", "route"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors grouped by error code.",
			}, []string{"code"}),
		}

		prometheus.MustRegister(
			metricsInstance.SlackEvents,
			metricsInstance.SlackAPICalls,
			metricsInstance.SlackAPILatency,
			metricsInstance.Tips,
			metricsInstance.Configurations,
			metricsInstance.QRCache,
			metricsInstance.HTTPRequests,
			metricsInstance.HTTPLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

func (m *Metrics) SlackEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.SlackEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SlackAPICall(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.SlackAPICalls.WithLabelValues(method, status).Inc()
	m.SlackAPILatency.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) Tip(amount string) {
	if m == nil {
		return
	}
	m.Tips.WithLabelValues(amount).Inc()
}

func (m *Metrics) Configuration(outcome string) {
	if m == nil {
		return
	}
	m.Configurations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QRCacheLookup(result string) {
	if m == nil {
		return
	}
	m.QRCache.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(server, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(server, route, status).Inc()
	m.HTTPLatency.WithLabelValues(server, route).Observe(seconds)
}

func (m *Metrics) Error(code string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "crmconsole"

	PollOutcomeSuccess = "success"
	PollOutcomeFailure = "failure"
)

// Registry owns the console's Prometheus collectors.
type Registry struct {
	registry            *prometheus.Registry
	crmRequestsTotal    *prometheus.CounterVec
	crmRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	cacheInvalidations  *prometheus.CounterVec
	emailLogPolls       *prometheus.CounterVec
	emailLogStreamsOpen prometheus.Gauge
}

// NewRegistry builds a registry with process and Go runtime collectors.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	metricsRegistry := &Registry{
		registry: registry,
		crmRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "crm_requests_total",
				Help:      "Outbound CRM API requests by endpoint, method and status.",
			},
			[]string{"endpoint", "method", "status"},
		),
		crmRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "crm_request_duration_seconds",
				Help:      "Latency of outbound CRM API requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Console HTTP requests by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		cacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "query_cache_invalidations_total",
				Help:      "Explicit response cache evictions by query name.",
			},
			[]string{"query"},
		),
		emailLogPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "email_log_polls_total",
				Help:      "Email log poll ticks by outcome.",
			},
			[]string{"outcome"},
		),
		emailLogStreamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "email_log_streams_open",
			Help:      "Open email log event streams.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metricsRegistry.crmRequestsTotal,
		metricsRegistry.crmRequestDuration,
		metricsRegistry.httpRequestsTotal,
		metricsRegistry.cacheInvalidations,
		metricsRegistry.emailLogPolls,
		metricsRegistry.emailLogStreamsOpen,
	)
	return metricsRegistry
}

// Gatherer exposes the underlying registry for tests and exporters.
func (metricsRegistry *Registry) Gatherer() prometheus.Gatherer {
	return metricsRegistry.registry
}

// ObserveCRMRequest records one outbound CRM call. A zero status marks a transport failure.
func (metricsRegistry *Registry) ObserveCRMRequest(endpoint string, method string, statusCode int, duration time.Duration) {
	if metricsRegistry == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	metricsRegistry.crmRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	metricsRegistry.crmRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// ObserveCacheInvalidation records an explicit cache eviction.
func (metricsRegistry *Registry) ObserveCacheInvalidation(name string) {
	if metricsRegistry == nil {
		return
	}
	metricsRegistry.cacheInvalidations.WithLabelValues(name).Inc()
}

// ObserveEmailLogPoll records one poll tick.
func (metricsRegistry *Registry) ObserveEmailLogPoll(outcome string) {
	if metricsRegistry == nil {
		return
	}
	metricsRegistry.emailLogPolls.WithLabelValues(outcome).Inc()
}

// EmailLogStreamOpened and EmailLogStreamClosed track live event streams.
func (metricsRegistry *Registry) EmailLogStreamOpened() {
	if metricsRegistry == nil {
		return
	}
	metricsRegistry.emailLogStreamsOpen.Inc()
}

func (metricsRegistry *Registry) EmailLogStreamClosed() {
	if metricsRegistry == nil {
		return
	}
	metricsRegistry.emailLogStreamsOpen.Dec()
}

// Middleware counts console requests by matched route.
func (metricsRegistry *Registry) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Next()
		if metricsRegistry == nil {
			return
		}
		route := context.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsRegistry.httpRequestsTotal.WithLabelValues(route, context.Request.Method, strconv.Itoa(context.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (metricsRegistry *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry.registry, promhttp.HandlerOpts{})
}

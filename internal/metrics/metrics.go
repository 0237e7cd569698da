package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "slotswap"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	namespace string

	// Application metrics
	AppInfo             *prometheus.GaugeVec
	AppStartTimeSeconds prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPRequestsInFlight       prometheus.Gauge

	// Domain metrics
	SwapCommandsTotal       *prometheus.CounterVec
	SlotCommandsTotal       *prometheus.CounterVec
	SwapEventsPublishFailed prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own registry.
func New(namespace string, buildInfo map[string]string) *Metrics {
	m := &Metrics{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}

	m.AppInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "app_info",
			Help:      "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)

	m.AppStartTimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "app_start_time_seconds",
			Help:      "Unix timestamp of service start",
		},
	)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	m.SwapCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_commands_total",
			Help:      "Swap engine commands by command and outcome kind",
		},
		[]string{"command", "result"},
	)

	m.SlotCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_commands_total",
			Help:      "Slot service writes by command and outcome kind",
		},
		[]string{"command", "result"},
	)

	m.SwapEventsPublishFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_events_publish_failed_total",
			Help:      "Swap events that could not be handed to the broker",
		},
	)

	m.registry.MustRegister(
		m.AppInfo,
		m.AppStartTimeSeconds,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPRequestsInFlight,
		m.SwapCommandsTotal,
		m.SlotCommandsTotal,
		m.SwapEventsPublishFailed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.AppInfo.WithLabelValues(buildInfo["version"], buildInfo["commit"], runtime.Version()).Set(1)
	m.AppStartTimeSeconds.Set(float64(time.Now().Unix()))
	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSwapCommand counts one engine command outcome.
func (m *Metrics) ObserveSwapCommand(command, result string) {
	if m == nil {
		return
	}
	m.SwapCommandsTotal.WithLabelValues(command, result).Inc()
}

// ObserveSlotCommand counts one slot service write outcome.
func (m *Metrics) ObserveSlotCommand(command, result string) {
	if m == nil {
		return
	}
	m.SlotCommandsTotal.WithLabelValues(command, result).Inc()
}

// PublishFailed counts a swap event that was dropped.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.SwapEventsPublishFailed.Inc()
}

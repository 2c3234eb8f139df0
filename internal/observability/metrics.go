package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "hostkernel"

// Metrics groups the collectors of one application instance. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	serviceRestarts  *prometheus.CounterVec
	serviceState     *prometheus.GaugeVec
	pluginEvents     *prometheus.CounterVec
	stateMutations   *prometheus.CounterVec
	stateSubscribers *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewMetrics builds and registers the collectors for app.
func NewMetrics(app string) *Metrics {
	labels := prometheus.Labels{"app": app}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		serviceRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "service",
				Name:        "restarts_total",
				Help:        "Service run-loop restarts by exit reason.",
				ConstLabels: labels,
			},
			[]string{"service", "reason"},
		),
		serviceState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "service",
				Name:        "state",
				Help:        "Current supervisor state per service (1 for the active state).",
				ConstLabels: labels,
			},
			[]string{"service", "state"},
		),
		pluginEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "plugin",
				Name:        "lifecycle_total",
				Help:        "Plugin lifecycle hook invocations by phase and outcome.",
				ConstLabels: labels,
			},
			[]string{"plugin", "phase", "outcome"},
		),
		stateMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "state",
				Name:        "mutations_total",
				Help:        "State slice mutations.",
				ConstLabels: labels,
			},
			[]string{"slice"},
		),
		stateSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "state",
				Name:        "subscribers",
				Help:        "Live subscriptions per state slice.",
				ConstLabels: labels,
			},
			[]string{"slice"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "Total admin HTTP requests.",
				ConstLabels: labels,
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "Admin HTTP request duration in seconds.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"method", "route", "status"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.serviceRestarts,
		m.serviceState,
		m.pluginEvents,
		m.stateMutations,
		m.stateSubscribers,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Gatherer exposes the registry for scraping.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) RecordRestart(service, reason string) {
	if m == nil {
		return
	}
	m.serviceRestarts.WithLabelValues(service, reason).Inc()
}

// SetServiceState marks state as the active one for service.
func (m *Metrics) SetServiceState(service, state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.serviceState.WithLabelValues(service, s).Set(v)
	}
}

func (m *Metrics) RecordPlugin(plugin, phase string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.pluginEvents.WithLabelValues(plugin, phase, outcome).Inc()
}

func (m *Metrics) RecordMutation(slice string) {
	if m == nil {
		return
	}
	m.stateMutations.WithLabelValues(slice).Inc()
}

func (m *Metrics) AddSubscribers(slice string, delta int) {
	if m == nil {
		return
	}
	m.stateSubscribers.WithLabelValues(slice).Add(float64(delta))
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// Package metrics records session and request counters for runcheck.
// Counters are mirrored into atomics for cheap snapshots and exported through a
// private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
)

// Metrics holds application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	logins              prometheus.Counter
	logouts             prometheus.Counter
	refreshes           *prometheus.CounterVec
	refreshSeconds      prometheus.Histogram
	apiRequests         *prometheus.CounterVec
	unauthorizedRetries prometheus.Counter
	storeErrors         *prometheus.CounterVec

	loginsTotal          atomic.Int64
	logoutsTotal         atomic.Int64
	refreshSuccess       atomic.Int64
	refreshFailure       atomic.Int64
	refreshDiscarded     atomic.Int64
	refreshLatencyNanos  atomic.Int64
	apiRequestsTotal     atomic.Int64
	apiErrorsTotal       atomic.Int64
	unauthorizedRetryCnt atomic.Int64
	storeErrorsTotal     atomic.Int64
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.logins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runcheck_session_logins_total",
		Help: "Sessions established by login.",
	})
	m.logouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runcheck_session_logouts_total",
		Help: "Sessions cleared by logout or refresh failure.",
	})
	m.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runcheck_session_refreshes_total",
		Help: "Access token refresh attempts by outcome.",
	}, []string{"outcome"})
	m.refreshSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "runcheck_session_refresh_seconds",
		Help:    "Refresh call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	m.apiRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runcheck_api_requests_total",
		Help: "API requests sent through the authenticated client.",
	}, []string{"method", "code"})
	m.unauthorizedRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runcheck_api_unauthorized_retries_total",
		Help: "Requests replayed after a 401 triggered a refresh.",
	})
	m.storeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runcheck_store_errors_total",
		Help: "Credential store operations that failed.",
	}, []string{"op"})

	reg.MustRegister(
		m.logins, m.logouts, m.refreshes, m.refreshSeconds,
		m.apiRequests, m.unauthorizedRetries, m.storeErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLogin records an established session.
func (m *Metrics) RecordLogin() {
	if m == nil {
		return
	}
	m.logins.Inc()
	m.loginsTotal.Add(1)
}

// RecordLogout records a cleared session.
func (m *Metrics) RecordLogout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
	m.logoutsTotal.Add(1)
}

// RecordRefresh records a completed refresh call and its outcome.
func (m *Metrics) RecordRefresh(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	m.refreshSeconds.Observe(duration.Seconds())
	m.refreshLatencyNanos.Add(duration.Nanoseconds())

	switch outcome {
	case OutcomeSuccess:
		m.refreshSuccess.Add(1)
	case OutcomeDiscarded:
		m.refreshDiscarded.Add(1)
	default:
		m.refreshFailure.Add(1)
	}
}

// RecordAPIRequest records one request. code is 0 when no response arrived.
func (m *Metrics) RecordAPIRequest(method string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.apiRequests.WithLabelValues(method, label).Inc()
	m.apiRequestsTotal.Add(1)
	if code == 0 || code >= http.StatusBadRequest {
		m.apiErrorsTotal.Add(1)
	}
}

// RecordUnauthorizedRetry records a replay after a 401.
func (m *Metrics) RecordUnauthorizedRetry() {
	if m == nil {
		return
	}
	m.unauthorizedRetries.Inc()
	m.unauthorizedRetryCnt.Add(1)
}

// RecordStoreError records a failed credential store operation.
func (m *Metrics) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
	m.storeErrorsTotal.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Logins              int64 `json:"logins"`
	Logouts             int64 `json:"logouts"`
	RefreshSuccess      int64 `json:"refresh_success"`
	RefreshFailure      int64 `json:"refresh_failure"`
	RefreshDiscarded    int64 `json:"refresh_discarded"`
	RefreshLatencyNanos int64 `json:"refresh_latency_nanos"`
	APIRequests         int64 `json:"api_requests"`
	APIErrors           int64 `json:"api_errors"`
	UnauthorizedRetries int64 `json:"unauthorized_retries"`
	StoreErrors         int64 `json:"store_errors"`
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Logins:              m.loginsTotal.Load(),
		Logouts:             m.logoutsTotal.Load(),
		RefreshSuccess:      m.refreshSuccess.Load(),
		RefreshFailure:      m.refreshFailure.Load(),
		RefreshDiscarded:    m.refreshDiscarded.Load(),
		RefreshLatencyNanos: m.refreshLatencyNanos.Load(),
		APIRequests:         m.apiRequestsTotal.Load(),
		APIErrors:           m.apiErrorsTotal.Load(),
		UnauthorizedRetries: m.unauthorizedRetryCnt.Load(),
		StoreErrors:         m.storeErrorsTotal.Load(),
	}
}

// RefreshLatencyAvgMs returns the average refresh latency in milliseconds.
// Returns 0 if no refresh has completed.
func (s Snapshot) RefreshLatencyAvgMs() float64 {
	calls := s.RefreshSuccess + s.RefreshFailure + s.RefreshDiscarded
	if calls == 0 {
		return 0
	}
	return float64(s.RefreshLatencyNanos) / float64(calls) / 1e6
}

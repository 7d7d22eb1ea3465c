package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
// Record methods are safe on a nil *Registry so components can run
// without metrics wired.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Engine metrics
	syncRuns        *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	syncPhase       prometheus.Gauge
	accountFailures prometheus.Counter
	retryAttempts   prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	cacheRefreshes  *prometheus.CounterVec
	signalsDetected *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stonks_sync_runs_total",
			Help: "Total number of portfolio syncs by result",
		},
		[]string{"result"},
	)
	r.syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stonks_sync_duration_seconds",
			Help:    "Portfolio sync duration in seconds, retries included",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900},
		},
	)
	r.syncPhase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stonks_sync_phase",
			Help: "Current pipeline phase (0 idle, 1 fetching, 2 analyzing, 3 retrying)",
		},
	)
	r.accountFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stonks_account_failures_total",
			Help: "Total number of accounts that failed to process",
		},
	)
	r.retryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stonks_retry_attempts_total",
			Help: "Total number of enrichment retry attempts",
		},
	)
	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stonks_cache_lookups_total",
			Help: "Cache lookups by result (fresh, stale, miss)",
		},
		[]string{"result"},
	)
	r.cacheRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stonks_cache_refreshes_total",
			Help: "Background stale-while-revalidate refreshes by result",
		},
		[]string{"result"},
	)
	r.signalsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stonks_signals_detected_total",
			Help: "Total number of signal events detected",
		},
		[]string{"kind"},
	)

	reg.MustRegister(r.syncRuns)
	reg.MustRegister(r.syncDuration)
	reg.MustRegister(r.syncPhase)
	reg.MustRegister(r.accountFailures)
	reg.MustRegister(r.retryAttempts)
	reg.MustRegister(r.cacheLookups)
	reg.MustRegister(r.cacheRefreshes)
	reg.MustRegister(r.signalsDetected)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordSync records a finished sync run.
func (r *Registry) RecordSync(result string, duration float64) {
	if r == nil {
		return
	}
	r.syncRuns.WithLabelValues(result).Inc()
	r.syncDuration.Observe(duration)
}

// SetPhase publishes the current pipeline phase.
func (r *Registry) SetPhase(phase int) {
	if r == nil {
		return
	}
	r.syncPhase.Set(float64(phase))
}

// RecordAccountFailure counts one failed account.
func (r *Registry) RecordAccountFailure() {
	if r == nil {
		return
	}
	r.accountFailures.Inc()
}

// RecordRetry counts one enrichment retry attempt.
func (r *Registry) RecordRetry() {
	if r == nil {
		return
	}
	r.retryAttempts.Inc()
}

// RecordCacheLookup counts a lookup as "fresh", "stale" or "miss".
func (r *Registry) RecordCacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// RecordRefresh counts a background refresh as "ok" or "error".
func (r *Registry) RecordRefresh(result string) {
	if r == nil {
		return
	}
	r.cacheRefreshes.WithLabelValues(result).Inc()
}

// RecordSignals adds n detected events of a kind.
func (r *Registry) RecordSignals(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.signalsDetected.WithLabelValues(kind).Add(float64(n))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	runsActive       prometheus.Gauge
	signalsGenerated *prometheus.CounterVec
	tradesExecuted   *prometheus.CounterVec
	barsFetched      *prometheus.CounterVec
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

	// Business metrics
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestd_backtests_total",
			Help: "Total number of backtests by terminal status",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backtestd_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
	r.runsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backtestd_runs_active",
			Help: "Number of pending or running backtests",
		},
	)
	r.signalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestd_signals_generated_total",
			Help: "Total number of signals generated",
		},
		[]string{"strategy", "side"},
	)
	r.tradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestd_trades_executed_total",
			Help: "Total number of simulated trades executed",
		},
		[]string{"side"},
	)
	r.barsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestd_bars_fetched_total",
			Help: "Total number of daily bars fetched from providers",
		},
		[]string{"provider"},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.runsActive)
	reg.MustRegister(r.signalsGenerated)
	reg.MustRegister(r.tradesExecuted)
	reg.MustRegister(r.barsFetched)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBacktest records a backtest reaching a terminal status.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// SetRunsActive sets the number of non-terminal backtests.
func (r *Registry) SetRunsActive(count int) {
	r.runsActive.Set(float64(count))
}

// RecordSignal records a generated signal.
func (r *Registry) RecordSignal(strategy, side string) {
	r.signalsGenerated.WithLabelValues(strategy, side).Inc()
}

// RecordTrade records an executed simulated trade.
func (r *Registry) RecordTrade(side string) {
	r.tradesExecuted.WithLabelValues(side).Inc()
}

// RecordBarsFetched records bars returned by a history provider.
func (r *Registry) RecordBarsFetched(provider string, count int) {
	r.barsFetched.WithLabelValues(provider).Add(float64(count))
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

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec

	admissionTotal      *prometheus.CounterVec
	throttleTotal       *prometheus.CounterVec
	dispatchTotal       *prometheus.CounterVec
	dispatchLatency     *prometheus.HistogramVec
	reconciledTotal     *prometheus.CounterVec
	judgeResultsTotal   *prometheus.CounterVec
	pendingUndispatched prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the judge worker.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ops_http_requests_total",
			Help: "Total number of requests served by the ops server.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ops_http_latency_seconds",
			Help:    "Latency distribution for ops server requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "route"})

		admissionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_admission_total",
			Help: "Admission decisions by outcome code.",
		}, []string{"code"})

		throttleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_throttle_total",
			Help: "Token bucket decisions for submitting actors.",
		}, []string{"outcome"})

		dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_dispatch_total",
			Help: "Judge dispatch attempts by transport and outcome.",
		}, []string{"transport", "outcome"})

		dispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "submission_dispatch_latency_seconds",
			Help:    "Time until the judge transport accepted a submission.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"transport"})

		reconciledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_reconciled_total",
			Help: "Orphaned submissions handled by the reconciler.",
		}, []string{"outcome"})

		judgeResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_results_total",
			Help: "Judge result messages consumed by outcome.",
		}, []string{"outcome"})

		pendingUndispatched = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "submission_undispatched_stale",
			Help: "Stale submissions found without a confirmed dispatch during the last sweep.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			admissionTotal,
			throttleTotal,
			dispatchTotal,
			dispatchLatency,
			reconciledTotal,
			judgeResultsTotal,
			pendingUndispatched,
		)
	})
}

// HTTPRequests exposes the counter for ops server requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for ops server requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// Admissions exposes the admission decision counter.
func Admissions() *prometheus.CounterVec {
	RegisterMetrics()
	return admissionTotal
}

// Throttles exposes the token bucket decision counter.
func Throttles() *prometheus.CounterVec {
	RegisterMetrics()
	return throttleTotal
}

// Dispatches exposes the dispatch attempt counter.
func Dispatches() *prometheus.CounterVec {
	RegisterMetrics()
	return dispatchTotal
}

// DispatchLatency exposes the dispatch latency histogram.
func DispatchLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return dispatchLatency
}

// Reconciled exposes the reconciler outcome counter.
func Reconciled() *prometheus.CounterVec {
	RegisterMetrics()
	return reconciledTotal
}

// JudgeResults exposes the judge result counter.
func JudgeResults() *prometheus.CounterVec {
	RegisterMetrics()
	return judgeResultsTotal
}

// StaleUndispatched exposes the gauge updated by each reconciler sweep.
func StaleUndispatched() prometheus.Gauge {
	RegisterMetrics()
	return pendingUndispatched
}

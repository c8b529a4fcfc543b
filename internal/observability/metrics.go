// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Data hook metrics
	RefreshesTotal   *prometheus.CounterVec
	RefreshDuration  *prometheus.HistogramVec
	RecordsFetched   *prometheus.GaugeVec
	CoalescedTotal   prometheus.Counter
	InvalidatedTotal *prometheus.CounterVec

	// Config metrics
	ConfigLoadsTotal *prometheus.CounterVec

	// Solana metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec
	WSDropped      prometheus.Counter

	// Session metrics
	ActiveSessions prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_manager_dashboard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datahook",
			Name:      "refreshes_total",
			Help:      "Total number of token manager fetches by source and result",
		}, []string{"cluster", "source", "result"}),
		RefreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "datahook",
			Name:      "refresh_duration_seconds",
			Help:      "Token manager fetch duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		RecordsFetched: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "datahook",
			Name:      "records_fetched",
			Help:      "Number of records returned by the last successful fetch",
		}, []string{"cluster"}),
		CoalescedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datahook",
			Name:      "coalesced_triggers_total",
			Help:      "Refresh triggers that joined an in-flight fetch",
		}),
		InvalidatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datahook",
			Name:      "invalidations_total",
			Help:      "Live invalidation triggers by outcome",
		}, []string{"outcome"}),

		ConfigLoadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "loads_total",
			Help:      "Remote project config loads by result",
		}, []string{"result"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),
		WSDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_dropped_total",
			Help:      "Log notifications dropped because the subscriber was slow",
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live sessions",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last successful token manager fetch",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRefresh records a completed fetch.
func RecordRefresh(cluster, source string, elapsed time.Duration, records int, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	DefaultMetrics.RefreshesTotal.WithLabelValues(cluster, source, result).Inc()
	DefaultMetrics.RefreshDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if err == nil {
		DefaultMetrics.RecordsFetched.WithLabelValues(cluster).Set(float64(records))
		DefaultMetrics.LastSuccessfulRefresh.SetToCurrentTime()
	}
}

// RecordCoalesced increments the coalesced trigger counter.
func RecordCoalesced() {
	DefaultMetrics.CoalescedTotal.Inc()
}

// RecordInvalidation records a live invalidation trigger.
// outcome is "triggered" or "debounced".
func RecordInvalidation(outcome string) {
	DefaultMetrics.InvalidatedTotal.WithLabelValues(outcome).Inc()
}

// RecordConfigLoad records a remote config load.
func RecordConfigLoad(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	DefaultMetrics.ConfigLoadsTotal.WithLabelValues(result).Inc()
}

// RecordRPCCall records RPC call latency and failures.
// Its signature matches solana.CallObserver.
func RecordRPCCall(method string, elapsed time.Duration, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordWSDropped adds n dropped notifications.
func RecordWSDropped(n uint64) {
	DefaultMetrics.WSDropped.Add(float64(n))
}

// SetActiveSessions sets the live session gauge.
func SetActiveSessions(n int) {
	DefaultMetrics.ActiveSessions.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

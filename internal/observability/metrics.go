package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gemchat"

type moduleMetrics struct {
	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter
	historyLength   prometheus.Histogram

	exchangeTotal    *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec
	ignoredInput     prometheus.Counter

	connectedClients prometheus.Gauge
	rateLimited      prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_sessions",
					Help:      "Chat sessions held by live runtime instances.",
				},
			),
			sessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sessions_created_total",
					Help:      "Chat sessions created.",
				},
			),
			historyLength: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "history_length_messages",
					Help:      "Session history length after each exchange.",
					Buckets:   prometheus.ExponentialBuckets(2, 2, 8),
				},
			),
			exchangeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "exchange_total",
					Help:      "Message exchanges by provider and status.",
				},
				[]string{"provider", "status"},
			),
			exchangeDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "exchange_duration_seconds",
					Help:      "Completion provider call duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "provider_errors_total",
					Help:      "Completion provider failures by provider and kind.",
				},
				[]string{"provider", "kind"},
			),
			ignoredInput: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "ignored_input_total",
					Help:      "Empty or whitespace-only submissions ignored.",
				},
			),
			connectedClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "connected_clients",
					Help:      "Open websocket connections.",
				},
			),
			rateLimited: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rate_limited_total",
					Help:      "Requests rejected by the per-connection rate limiter.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsCreated,
			m.historyLength,
			m.exchangeTotal,
			m.exchangeDuration,
			m.providerErrors,
			m.ignoredInput,
			m.connectedClients,
			m.rateLimited,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSessionCreated() {
	m := getMetrics()
	m.sessionsCreated.Inc()
	m.activeSessions.Inc()
}

func RecordSessionClosed() {
	getMetrics().activeSessions.Dec()
}

func RecordExchange(provider string, duration time.Duration, success bool, historyLen int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.exchangeTotal.WithLabelValues(provider, status).Inc()
	m.exchangeDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.historyLength.Observe(float64(historyLen))
}

func RecordProviderError(provider, kind string) {
	getMetrics().providerErrors.WithLabelValues(provider, kind).Inc()
}

func RecordIgnoredInput() {
	getMetrics().ignoredInput.Inc()
}

func SetConnectedClients(count int) {
	getMetrics().connectedClients.Set(float64(count))
}

func RecordRateLimited() {
	getMetrics().rateLimited.Inc()
}

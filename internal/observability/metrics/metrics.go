package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Success                  Outcome       = "success"
	Error                    Outcome       = "error"
	MetricRequestTimeout     time.Duration = 5 * time.Second
	MetricRequestIdleTimeout time.Duration = 10 * time.Second
)

func (O Outcome) String() string {
	return string(O)
}

var defaultHistogramBucketsSeconds = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10}

// Collectors are created eagerly so that recording works before Init, which
// only registers them and starts the http endpoint.
var (
	once          sync.Once
	metricsRouter *chi.Mux

	queueSendErrorCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_send_error_count",
			Help: "The total number of errors when sending messages to the queue",
		},
	)

	pollerDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poller_duration_seconds",
			Help:    "Histogram of poller durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"type", "status"},
	)

	dbLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "db_latency_seconds",
			Help: "DB latency in seconds splitted by method and execution status",
		},
		[]string{"method", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Ledger operation duration in seconds splitted by operation and error code.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"operation", "status", "error_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of incoming api request durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"method", "route", "status"},
	)

	totalStakeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_total_stake",
			Help: "Registry total stake in base units",
		},
	)

	totalUsersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_total_users",
			Help: "Registry total users",
		},
	)

	serversGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_servers_count",
			Help: "Number of live server records",
		},
	)

	delegationsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_delegations_count",
			Help: "Number of live delegation records",
		},
	)

	invariantViolationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_invariant_violation_count",
			Help: "Number of invariant violations found by the stats poller",
		},
		[]string{"invariant"},
	)
)

// Init initializes the metrics package.
func Init(metricsPort int) {
	once.Do(func() {
		initMetricsRouter(metricsPort)
		registerMetrics()
	})
}

// initMetricsRouter initializes the metrics router.
func initMetricsRouter(metricsPort int) {
	metricsRouter = chi.NewRouter()
	metricsRouter.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	// Create a custom server with timeout settings
	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	server := &http.Server{
		Addr:         metricsAddr,
		Handler:      metricsRouter,
		ReadTimeout:  MetricRequestTimeout,
		WriteTimeout: MetricRequestTimeout,
		IdleTimeout:  MetricRequestIdleTimeout,
	}

	// Start the server in a separate goroutine
	go func() {
		log.Printf("Starting metrics server on %s", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("Error starting metrics server on %s", metricsAddr)
		}
	}()
}

// registerMetrics registers the Prometheus metrics.
func registerMetrics() {
	prometheus.MustRegister(
		queueSendErrorCounter,
		pollerDurationHistogram,
		dbLatency,
		operationDuration,
		httpRequestDuration,
		totalStakeGauge,
		totalUsersGauge,
		serversGauge,
		delegationsGauge,
		invariantViolationCounter,
	)
}

func RecordDbLatency(d time.Duration, method string, failure bool) {
	status := Success
	if failure {
		status = Error
	}

	dbLatency.WithLabelValues(method, status.String()).Observe(d.Seconds())
}

// RecordOperationDuration records a ledger operation, errorCode is empty on success
func RecordOperationDuration(d time.Duration, operation string, errorCode string) {
	status := Success
	if errorCode != "" {
		status = Error
	}

	operationDuration.WithLabelValues(operation, status.String(), errorCode).Observe(d.Seconds())
}

// StartHttpRequestDurationTimer starts a timer to measure incoming api request duration.
// The route is only known once the router matched the request, so it is
// passed when the timer stops.
func StartHttpRequestDurationTimer(method string) func(route string, statusCode int) {
	startTime := time.Now()
	return func(route string, statusCode int) {
		duration := time.Since(startTime).Seconds()
		httpRequestDuration.WithLabelValues(
			method,
			route,
			fmt.Sprintf("%d", statusCode),
		).Observe(duration)
	}
}

func RecordQueueSendError() {
	queueSendErrorCounter.Inc()
}

func RecordLedgerTotals(totalStake uint64, totalUsers uint32, servers, delegations uint64) {
	totalStakeGauge.Set(float64(totalStake))
	totalUsersGauge.Set(float64(totalUsers))
	serversGauge.Set(float64(servers))
	delegationsGauge.Set(float64(delegations))
}

func IncInvariantViolation(invariant string) {
	invariantViolationCounter.WithLabelValues(invariant).Inc()
}

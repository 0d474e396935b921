package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics
type Collector struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ProxyErrors     *prometheus.CounterVec

	// Backend metrics
	BackendLiveness      *prometheus.GaugeVec
	BackendInFlight      *prometheus.GaugeVec
	PoolHealthyEndpoints *prometheus.GaugeVec

	// Health check metrics
	HealthCheckTotal    *prometheus.CounterVec
	HealthCheckDuration *prometheus.HistogramVec

	// Retry metrics
	RetriesTotal      *prometheus.CounterVec
	RetryBudgetTokens prometheus.Gauge

	// Rate limit metrics
	RateLimitedTotal *prometheus.CounterVec
}

// NewCollector creates and registers all metrics
func NewCollector() *Collector {
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostgate_requests_total",
				Help: "Total number of proxied requests",
			},
			[]string{"pool", "backend", "method", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostgate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pool", "method"},
		),

		ActiveRequests: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostgate_active_requests",
				Help: "Number of active requests per backend",
			},
			[]string{"pool", "backend"},
		),

		ProxyErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostgate_proxy_errors_total",
				Help: "Request-path failures by kind",
			},
			[]string{"kind"},
		),

		BackendLiveness: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostgate_backend_liveness",
				Help: "Backend liveness state (0=UNKNOWN, 1=HEALTHY, 2=UNHEALTHY, 3=DRAINING)",
			},
			[]string{"pool", "backend"},
		),

		BackendInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostgate_backend_in_flight",
				Help: "In-flight requests per backend",
			},
			[]string{"pool", "backend"},
		),

		PoolHealthyEndpoints: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostgate_pool_healthy_endpoints",
				Help: "Number of healthy endpoints per pool",
			},
			[]string{"pool"},
		),

		HealthCheckTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostgate_health_checks_total",
				Help: "Total number of health probes",
			},
			[]string{"backend", "result"},
		),

		HealthCheckDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostgate_health_check_duration_seconds",
				Help:    "Health probe duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"backend"},
		),

		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostgate_retries_total",
				Help: "Total number of internal retries",
			},
			[]string{"reason"},
		),

		RetryBudgetTokens: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hostgate_retry_budget_tokens",
				Help: "Available retry budget tokens",
			},
		),

		RateLimitedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostgate_rate_limited_total",
				Help: "Requests rejected by per-route rate limits",
			},
			[]string{"pool"},
		),
	}
}
